package grading

import "strings"

type band struct {
	min    float64
	letter string
}

// highest first
var letterBands = []band{
	{98, "A+"},
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{63, "D"},
	{60, "D-"},
}

// letterValues is the value stored when a letter grade is picked.
var letterValues = map[string]float64{
	"A+": 98,
	"A":  95,
	"A-": 91,
	"B+": 88,
	"B":  85,
	"B-": 81,
	"C+": 78,
	"C":  75,
	"C-": 71,
	"D+": 68,
	"D":  65,
	"D-": 61,
	"F":  50,
}

// Letters lists the known letter grades, best first.
var Letters = []string{"A+", "A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D+", "D", "D-", "F"}

// GPAToLetter maps a grade on the 0-100 scale to its letter band.
func GPAToLetter(gpa float64) string {
	for _, b := range letterBands {
		if gpa >= b.min {
			return b.letter
		}
	}
	return "F"
}

// LetterToNumeric returns the stored value of a letter grade.
func LetterToNumeric(label string) (float64, bool) {
	v, ok := letterValues[NormalizeLetter(label)]
	return v, ok
}

// NormalizeLetter upper-cases a label and drops surrounding whitespace.
func NormalizeLetter(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// IsLetter reports whether label is a known letter grade.
func IsLetter(label string) bool {
	_, ok := letterValues[NormalizeLetter(label)]
	return ok
}
