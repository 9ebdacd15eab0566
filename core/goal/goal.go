// Package goal tracks targets of completed assignments within a term.
package goal

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
)

var ErrNotFound = core.NewNotFoundError("goal")

// Goal is a target count of completed assignments for a student within [TermStart, TermEnd],
// optionally scoped to a subject. CurrentCount is always derived from assignments.
type Goal struct {
	ID           string      `json:"id"`
	FamilyID     string      `json:"family_id"`
	StudentID    string      `json:"student_id"`
	SubjectID    null.String `json:"subject_id"`
	Title        string      `json:"title"`
	TargetCount  int         `json:"target_count"`
	CurrentCount int         `json:"current_count"`
	TermStart    time.Time   `json:"term_start"` // UTC midnight
	TermEnd      time.Time   `json:"term_end"`   // UTC midnight
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

// Progress is the share of the target reached, in percent.
func (g Goal) Progress() float64 {
	if g.TargetCount <= 0 {
		return 0
	}
	return core.Round1(float64(g.CurrentCount) / float64(g.TargetCount) * 100)
}

// CompletedFilter selects completed assignments. SubjectID restricts to one subject when set.
// Completion must fall within [CompletedFrom, CompletedBefore).
type CompletedFilter struct {
	FamilyID        string
	StudentID       string
	SubjectID       *string
	CompletedFrom   time.Time
	CompletedBefore time.Time
}

// completedFilter returns the assignments counted by g. Both term ends are inclusive calendar days.
func (g Goal) completedFilter() CompletedFilter {
	return CompletedFilter{
		FamilyID:        g.FamilyID,
		StudentID:       g.StudentID,
		SubjectID:       g.SubjectID.Ptr(),
		CompletedFrom:   core.StartOfDay(g.TermStart),
		CompletedBefore: core.StartOfDay(g.TermEnd).AddDate(0, 0, 1),
	}
}

type NewGoal struct {
	StudentID   string  `json:"student_id" validate:"required,uuid"`
	SubjectID   *string `json:"subject_id" validate:"omitempty,uuid"`
	Title       string  `json:"title" validate:"required,notblank,max=200"`
	TargetCount int     `json:"target_count" validate:"required,min=1"`
	TermStart   string  `json:"term_start" validate:"required,datetime=2006-01-02"`
	TermEnd     string  `json:"term_end" validate:"required,datetime=2006-01-02"`

	termStart, termEnd time.Time
}

func (ng *NewGoal) Validate(validate *validator.Validate) error {
	ng.Title = core.CleanString(ng.Title)
	ng.SubjectID = core.CleanStringPtr(ng.SubjectID)
	ng.TermStart = core.CleanString(ng.TermStart)
	ng.TermEnd = core.CleanString(ng.TermEnd)
	if err := validate.Struct(ng); err != nil {
		return err
	}
	var err error
	if ng.termStart, ng.termEnd, err = parseTerm(ng.TermStart, ng.TermEnd); err != nil {
		return err
	}
	return nil
}

// UpdateGoal defines what may change on a goal. An empty SubjectID drops the subject scope.
type UpdateGoal struct {
	SubjectID   *string `json:"subject_id" validate:"omitempty,uuid"`
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	TargetCount *int    `json:"target_count" validate:"omitempty,min=1"`
	TermStart   *string `json:"term_start" validate:"omitempty,datetime=2006-01-02"`
	TermEnd     *string `json:"term_end" validate:"omitempty,datetime=2006-01-02"`

	dropSubject bool
}

func (ug *UpdateGoal) Validate(validate *validator.Validate) error {
	ug.Title = core.CleanStringPtr(ug.Title)
	if ug.SubjectID != nil && core.CleanString(*ug.SubjectID) == "" {
		ug.SubjectID = nil
		ug.dropSubject = true
	}
	ug.TermStart = core.CleanStringPtr(ug.TermStart)
	ug.TermEnd = core.CleanStringPtr(ug.TermEnd)
	return validate.Struct(ug)
}

func parseTerm(start, end string) (time.Time, time.Time, error) {
	termStart, err := core.ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, core.NewValidationError(err, core.FieldError{Field: "term_start", Error: "invalid date"})
	}
	termEnd, err := core.ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, core.NewValidationError(err, core.FieldError{Field: "term_end", Error: "invalid date"})
	}
	if termEnd.Before(termStart) {
		return time.Time{}, time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "term_end", Error: "term end must not be before term start"})
	}
	return termStart, termEnd, nil
}

type QueryFilter struct {
	FamilyID  string
	StudentID string
}
