package assignment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
)

// Import columns. Headers match case-insensitively.
const (
	ColTitle            = "title"
	ColStudent          = "student"
	ColDescription      = "description"
	ColSubject          = "subject"
	ColDueDate          = "due_date"
	ColPriority         = "priority"
	ColEstimatedMinutes = "estimated_minutes"
	ColCategory         = "category"
)

var (
	requiredColumns = []string{ColTitle, ColStudent}

	// accepted due date layouts, tried in order
	importDateLayouts = []string{core.DateLayout, "01/02/2006"}

	ErrNoRows = errors.New("the file has no rows to import")
)

// ImportRow is one data row of an import file. Line is its 1-based row number, header included.
type ImportRow struct {
	Line   int
	Values map[string]string
}

func (r ImportRow) get(col string) string { return core.CleanString(r.Values[col]) }

// RowError lists what is wrong with one row.
type RowError struct {
	Line   int      `json:"line"`
	Errors []string `json:"errors"`
}

// ImportError reports every invalid row of a batch. Nothing was imported.
type ImportError struct {
	Rows []RowError
}

func (err ImportError) Error() string {
	if len(err.Rows) == 1 {
		return fmt.Sprintf("row %d: %s", err.Rows[0].Line, strings.Join(err.Rows[0].Errors, "; "))
	}
	return fmt.Sprintf("%d invalid rows; nothing was imported", len(err.Rows))
}

// validationError exposes the rows as field errors keyed "row N".
func (err *ImportError) validationError() error {
	flds := make([]core.FieldError, 0, len(err.Rows))
	for _, r := range err.Rows {
		flds = append(flds, core.FieldError{Field: fmt.Sprintf("row %d", r.Line), Error: strings.Join(r.Errors, "; ")})
	}
	return core.NewValidationError(err, flds...)
}

// ReadCSV reads comma-delimited import rows. The first row is the header.
func ReadCSV(r io.Reader) ([]ImportRow, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	var records [][]string
	var lines []int
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewValidationError(errors.Wrap(err, "reading csv"))
		}
		line, _ := rdr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return parseRecords(records, lines)
}

// ReadXLSX reads import rows from the first sheet of a workbook. The first row is the header.
func ReadXLSX(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "reading xlsx"))
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewValidationError(ErrNoRows)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "reading xlsx"))
	}
	return parseRecords(records, nil)
}

// parseRecords turns records into rows. lines holds the file line of each record; without it the
// record index is used.
func parseRecords(records [][]string, lines []int) ([]ImportRow, error) {
	if len(records) == 0 {
		return nil, core.NewValidationError(ErrNoRows)
	}

	header := make([]string, len(records[0]))
	present := make(map[string]bool, len(header))
	for i, h := range records[0] {
		h = core.CleanString(strings.TrimPrefix(h, "\uFEFF"), true /* lower */)
		h = strings.ReplaceAll(h, " ", "_")
		header[i] = h
		present[h] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		msg := "missing required columns: " + strings.Join(missing, ", ")
		return nil, core.NewValidationError(nil, core.FieldError{Field: "header", Error: msg})
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		if len(lines) == len(records) {
			line = lines[i+1]
		}
		row := ImportRow{Line: line, Values: make(map[string]string, len(header))}
		blank := true
		for j, val := range rec {
			if j >= len(header) || header[j] == "" {
				continue
			}
			row.Values[header[j]] = val
			if core.CleanString(val) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, core.NewValidationError(ErrNoRows)
	}
	return rows, nil
}

func parseImportDate(s string) (time.Time, error) {
	var err error
	for _, layout := range importDateLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// Import creates one assignment per row, all or none. Any invalid row blocks the whole batch
// and every invalid row is reported.
func (svc *Service) Import(ctx context.Context, actor core.Actor, rows []ImportRow) ([]Assignment, error) {
	if err := actor.RequireManager(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, core.NewValidationError(ErrNoRows)
	}

	students, err := svc.Students.QueryStudents(ctx, actor.FamilyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	subjects, err := svc.Subjects.QuerySubjects(ctx, actor.FamilyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}

	now := core.NowFunc()
	importErr := new(ImportError)
	assignments := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		a, errs := svc.parseRow(row, students, subjects)
		if len(errs) > 0 {
			importErr.Rows = append(importErr.Rows, RowError{Line: row.Line, Errors: errs})
			continue
		}
		a.FamilyID = actor.FamilyID
		a.Status = StatusAssigned
		a.AssignedDate = now
		a.CreatedAt = now
		a.UpdatedAt = now
		assignments = append(assignments, a)
	}
	if len(importErr.Rows) > 0 {
		return nil, importErr.validationError()
	}

	created, err := svc.repo.CreateAssignments(ctx, assignments...)
	if err != nil {
		return nil, errors.Wrap(err, "creating assignments")
	}
	if err = svc.afterCreate(ctx, actor, created, activity.ActionImported); err != nil {
		return nil, err
	}
	return created, nil
}

func (svc *Service) parseRow(row ImportRow, students []student.Student, subjects []subject.Subject) (Assignment, []string) {
	var a Assignment
	var errs []string

	if a.Title = row.get(ColTitle); a.Title == "" {
		errs = append(errs, "title is required")
	} else if utf8.RuneCountInString(a.Title) > 200 {
		errs = append(errs, "title is too long")
	}

	if name := row.get(ColStudent); name == "" {
		errs = append(errs, "student is required")
	} else if std, ok := student.FindByName(students, name); ok {
		a.StudentID = std.ID
	} else {
		errs = append(errs, fmt.Sprintf("unknown student %q", name))
	}

	if desc := row.get(ColDescription); desc != "" {
		a.Description = null.StringFrom(desc)
	}

	if name := row.get(ColSubject); name != "" {
		if sub, ok := findSubject(subjects, name); ok {
			a.SubjectID = null.StringFrom(sub.ID)
		} else {
			errs = append(errs, fmt.Sprintf("unknown subject %q", name))
		}
	}

	if due := row.get(ColDueDate); due != "" {
		if d, err := parseImportDate(due); err == nil {
			a.DueDate = null.TimeFrom(d)
		} else {
			errs = append(errs, fmt.Sprintf("invalid due date %q (expected YYYY-MM-DD)", due))
		}
	}

	var ok bool
	if a.Priority, ok = ParsePriority(row.get(ColPriority)); !ok {
		errs = append(errs, fmt.Sprintf("invalid priority %q", row.get(ColPriority)))
	}

	if mins := row.get(ColEstimatedMinutes); mins != "" {
		if m, err := strconv.Atoi(mins); err == nil && m > 0 && m <= 1440 {
			a.EstimatedMinutes = null.IntFrom(m)
		} else {
			errs = append(errs, fmt.Sprintf("invalid estimated minutes %q", mins))
		}
	}

	if cat := row.get(ColCategory); cat != "" {
		if c, ok := ParseCategoryString(cat); ok {
			a.Category = null.StringFrom(c)
		} else {
			errs = append(errs, fmt.Sprintf("invalid category %q", cat))
		}
	}
	return a, errs
}

func findSubject(subjects []subject.Subject, name string) (subject.Subject, bool) {
	for _, sub := range subjects {
		if strings.EqualFold(sub.Name, name) {
			return sub, true
		}
	}
	return subject.Subject{}, false
}
