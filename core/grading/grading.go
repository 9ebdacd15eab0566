// Package grading converts letter grades and computes subject and overall GPAs.
// Everything here is pure and works on data that is already loaded.
package grading

import (
	"strings"

	"github.com/trezcool/homeschool/core"
)

// Category groups assignments for weighting.
type Category string

const (
	CategoryTest     Category = "TEST"
	CategoryQuiz     Category = "QUIZ"
	CategoryHomework Category = "HOMEWORK"
	CategoryProject  Category = "PROJECT"
)

var AllCategories = []Category{CategoryTest, CategoryQuiz, CategoryHomework, CategoryProject}

func (c Category) IsValid() bool {
	switch c {
	case CategoryTest, CategoryQuiz, CategoryHomework, CategoryProject:
		return true
	}
	return false
}

// ParseCategory parses a category case-insensitively.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(core.CleanString(s)))
	return c, c.IsValid()
}

// Weights maps a category to its percentage (0-100) of a subject grade.
type Weights map[Category]float64

// Item is the part of an assignment the calculator needs.
type Item struct {
	Category *Category
	Grade    *float64
}

type bucket struct {
	sum   float64
	count int
}

func (b bucket) mean() float64 { return b.sum / float64(b.count) }

// ComputeSubjectGPA returns the subject average of the graded items, or nil when nothing is graded.
//
// Without weights it is the plain mean. With weights, each weighted category present contributes its mean scaled
// by its weight; items without a category, or whose category has no weight, are averaged apart. When both kinds
// are present, the two averages are blended by their item counts so that unweighted work is never dropped.
func ComputeSubjectGPA(items []Item, weights Weights) *float64 {
	var graded []Item
	for _, it := range items {
		if it.Grade != nil {
			graded = append(graded, it)
		}
	}
	if len(graded) == 0 {
		return nil
	}

	if len(weights) == 0 {
		var all bucket
		for _, it := range graded {
			all.sum += *it.Grade
			all.count++
		}
		gpa := core.Round1(all.mean())
		return &gpa
	}

	byCategory := make(map[Category]*bucket)
	var uncategorized bucket
	for _, it := range graded {
		if it.Category != nil {
			if _, ok := weights[*it.Category]; ok {
				b, ok := byCategory[*it.Category]
				if !ok {
					b = new(bucket)
					byCategory[*it.Category] = b
				}
				b.sum += *it.Grade
				b.count++
				continue
			}
		}
		uncategorized.sum += *it.Grade
		uncategorized.count++
	}

	var weightedSum, totalWeightUsed float64
	var weightedCount int
	for cat, b := range byCategory {
		w := weights[cat]
		weightedSum += b.mean() * w / 100
		totalWeightUsed += w
		weightedCount += b.count
	}

	var gpa float64
	switch {
	case totalWeightUsed == 0 && uncategorized.count == 0:
		// only zero-weighted categories were graded
		var all bucket
		for _, b := range byCategory {
			all.sum += b.sum
			all.count += b.count
		}
		gpa = all.mean()
	case totalWeightUsed == 0:
		gpa = uncategorized.mean()
	case uncategorized.count == 0:
		gpa = weightedSum / totalWeightUsed * 100
	default:
		weightedAvg := weightedSum / totalWeightUsed * 100
		total := float64(weightedCount + uncategorized.count)
		gpa = weightedAvg*float64(weightedCount)/total + uncategorized.mean()*float64(uncategorized.count)/total
	}
	gpa = core.Round1(gpa)
	return &gpa
}

// ComputeOverallGPA is the mean of the available subject GPAs, or nil when there are none.
func ComputeOverallGPA(subjectGPAs []*float64) *float64 {
	var all bucket
	for _, gpa := range subjectGPAs {
		if gpa != nil {
			all.sum += *gpa
			all.count++
		}
	}
	if all.count == 0 {
		return nil
	}
	overall := core.Round1(all.mean())
	return &overall
}
