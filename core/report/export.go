package report

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/homeschool/core"
)

const (
	summarySheet  = "Summary"
	subjectsSheet = "Subjects"
	goalsSheet    = "Goals"

	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FileName is the name suggested for an exported report.
func (rep Report) FileName() string {
	return fmt.Sprintf("report_%s_%s.xlsx", core.CleanString(rep.Student.Name, true), rep.GeneratedAt.Format("20060102"))
}

type sheetWriter struct {
	f    *excelize.File
	bold int
	err  error
}

func (sw *sheetWriter) row(sheet string, row int, values ...interface{}) {
	for i, v := range values {
		if sw.err != nil {
			return
		}
		var cell string
		if cell, sw.err = excelize.CoordinatesToCellName(i+1, row); sw.err != nil {
			return
		}
		sw.err = sw.f.SetCellValue(sheet, cell, v)
	}
}

func (sw *sheetWriter) header(sheet string, titles ...string) {
	values := make([]interface{}, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	sw.row(sheet, 1, values...)
	if sw.err != nil || len(titles) == 0 {
		return
	}
	end, err := excelize.CoordinatesToCellName(len(titles), 1)
	if err != nil {
		sw.err = err
		return
	}
	sw.err = sw.f.SetCellStyle(sheet, "A1", end, sw.bold)
}

func gpaCell(gpa *float64) interface{} {
	if gpa == nil {
		return "-"
	}
	return *gpa
}

func dayCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(core.DateLayout)
}

// ExportXLSX writes rep as a workbook with a summary, a subjects and a goals sheet.
func ExportXLSX(rep Report, w io.Writer) error {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	sw := &sheetWriter{f: f, bold: bold}

	f.SetSheetName(f.GetSheetName(0), summarySheet)
	sw.header(summarySheet, "Student", rep.Student.Name)
	sw.row(summarySheet, 2, "Grade level", rep.Student.GradeLevel.String)
	sw.row(summarySheet, 3, "From", dayCell(rep.Range.From.Time))
	sw.row(summarySheet, 4, "To", dayCell(rep.Range.To.Time))
	sw.row(summarySheet, 5, "Overall GPA", gpaCell(rep.OverallGPA))
	sw.row(summarySheet, 6, "Overall letter", rep.OverallLetter)
	sw.row(summarySheet, 7, "Completed", rep.Completed)
	sw.row(summarySheet, 8, "Total", rep.Total)
	sw.row(summarySheet, 9, "Completion rate (%)", rep.CompletionRate)
	sw.row(summarySheet, 10, "Attendance days", rep.AttendanceDays)
	sw.row(summarySheet, 11, "Generated at", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))

	f.NewSheet(subjectsSheet)
	sw.header(subjectsSheet, "Subject", "GPA", "Letter", "Completed", "Total", "Completion rate (%)")
	for i, sub := range rep.Subjects {
		sw.row(subjectsSheet, i+2, sub.Name, gpaCell(sub.GPA), sub.Letter, sub.Completed, sub.Total, sub.CompletionRate)
	}

	f.NewSheet(goalsSheet)
	sw.header(goalsSheet, "Goal", "Current", "Target", "Progress (%)", "Term start", "Term end")
	for i, g := range rep.Goals {
		sw.row(goalsSheet, i+2, g.Title, g.CurrentCount, g.TargetCount, g.Progress,
			dayCell(g.TermStart), dayCell(g.TermEnd))
	}
	if sw.err != nil {
		return errors.Wrap(sw.err, "filling workbook")
	}

	for _, sheet := range []string{summarySheet, subjectsSheet, goalsSheet} {
		if err = f.SetColWidth(sheet, "A", "A", 28); err != nil {
			return errors.Wrap(err, "sizing columns")
		}
	}
	f.SetActiveSheet(0)
	return errors.Wrap(f.Write(w), "writing workbook")
}
