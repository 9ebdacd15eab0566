// Package assignment implements the assignment lifecycle: creation, status transitions,
// grading, comments and bulk import.
package assignment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/grading"
)

var ErrNotFound = core.NewNotFoundError("assignment")

type Status string

const (
	StatusAssigned  Status = "ASSIGNED"
	StatusCompleted Status = "COMPLETED"

	// Legacy statuses. Some clients still send them but no transition reaches or leaves them.
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusReturned   Status = "RETURNED"
)

var AllStatuses = []Status{StatusAssigned, StatusCompleted, StatusInProgress, StatusSubmitted, StatusReturned}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority parses a priority case-insensitively. Blank values are MEDIUM.
func ParsePriority(s string) (Priority, bool) {
	s = core.CleanString(s)
	if s == "" {
		return PriorityMedium, true
	}
	p := Priority(strings.ToUpper(s))
	return p, p.IsValid()
}

// ParseCategoryString parses a category and returns it as stored.
func ParseCategoryString(s string) (string, bool) {
	cat, ok := grading.ParseCategory(s)
	return string(cat), ok
}

// Assignment is a unit of schoolwork. It always belongs to one student and one family.
type Assignment struct {
	ID               string       `json:"id"`
	FamilyID         string       `json:"family_id"`
	StudentID        string       `json:"student_id"`
	SubjectID        null.String  `json:"subject_id"`
	Title            string       `json:"title"`
	Description      null.String  `json:"description"`
	Status           Status       `json:"status"`
	Priority         Priority     `json:"priority"`
	Category         null.String  `json:"category"`
	DueDate          null.Time    `json:"due_date"`      // UTC midnight
	AssignedDate     time.Time    `json:"assigned_date"` // UTC
	CompletedDate    null.Time    `json:"completed_date"`
	EstimatedMinutes null.Int     `json:"estimated_minutes"`
	GradeValue       null.Float64 `json:"grade_value"`
	GradeLabel       null.String  `json:"grade_label"`
	CreatedAt        time.Time    `json:"created_at"` // UTC
	UpdatedAt        time.Time    `json:"updated_at"` // UTC
}

func (a Assignment) IsCompleted() bool { return a.Status == StatusCompleted }

// GradingItem returns what the grading calculator needs from a.
func (a Assignment) GradingItem() grading.Item {
	var item grading.Item
	if cat, ok := grading.ParseCategory(a.Category.String); a.Category.Valid && ok {
		item.Category = &cat
	}
	item.Grade = a.GradeValue.Ptr()
	return item
}

// EffectiveDate is the due date, or the assigned date of work without one.
func (a Assignment) EffectiveDate() time.Time {
	if a.DueDate.Valid {
		return a.DueDate.Time
	}
	return a.AssignedDate
}

// NewAssignment creates one assignment per student.
type NewAssignment struct {
	StudentIDs       []string `json:"student_ids" validate:"required,min=1,dive,uuid"`
	Title            string   `json:"title" validate:"required,notblank,max=200"`
	Description      *string  `json:"description" validate:"omitempty,max=5000"`
	SubjectID        *string  `json:"subject_id" validate:"omitempty,uuid"`
	Priority         string   `json:"priority" validate:"omitempty,priority"`
	Category         *string  `json:"category" validate:"omitempty,category"`
	DueDate          *string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	EstimatedMinutes *int     `json:"estimated_minutes" validate:"omitempty,min=1,max=1440"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanStringPtr(na.Description)
	na.SubjectID = core.CleanStringPtr(na.SubjectID)
	na.Priority = core.CleanString(na.Priority)
	na.Category = core.CleanStringPtr(na.Category)
	na.DueDate = core.CleanStringPtr(na.DueDate)
	for i, id := range na.StudentIDs {
		na.StudentIDs[i] = core.CleanString(id)
	}
	return validate.Struct(na)
}

// UpdateAssignment defines what may change on an assignment.
// Empty SubjectID, Category and DueDate clear them.
type UpdateAssignment struct {
	Title            *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=5000"`
	SubjectID        *string `json:"subject_id" validate:"omitempty,uuid"`
	Priority         *string `json:"priority" validate:"omitempty,priority"`
	Category         *string `json:"category" validate:"omitempty,category"`
	DueDate          *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	EstimatedMinutes *int    `json:"estimated_minutes" validate:"omitempty,min=1,max=1440"`

	clearSubject, clearCategory, clearDueDate bool
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	clear := func(s **string) bool {
		if *s != nil && core.CleanString(**s) == "" {
			*s = nil
			return true
		}
		*s = core.CleanStringPtr(*s)
		return false
	}
	ua.Title = core.CleanStringPtr(ua.Title)
	if ua.Description != nil {
		desc := core.CleanString(*ua.Description)
		ua.Description = &desc
	}
	ua.clearSubject = clear(&ua.SubjectID)
	ua.clearCategory = clear(&ua.Category)
	ua.clearDueDate = clear(&ua.DueDate)
	ua.Priority = core.CleanStringPtr(ua.Priority)
	return validate.Struct(ua)
}

// StatusUpdate requests a transition. The grade pair is only accepted while completing,
// and a return for revision must carry a comment.
type StatusUpdate struct {
	Status     Status   `json:"status" validate:"required,status"`
	Comment    *string  `json:"comment" validate:"omitempty,max=5000"`
	GradeLabel *string  `json:"grade_label" validate:"omitempty,letter"`
	GradeValue *float64 `json:"grade_value" validate:"omitempty,min=0,max=100"`
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	su.Status = Status(strings.ToUpper(core.CleanString(string(su.Status))))
	su.Comment = core.CleanStringPtr(su.Comment)
	su.GradeLabel = core.CleanStringPtr(su.GradeLabel)
	return validate.Struct(su)
}

// GradeInput grades completed work. One of Label or Value is required; the other is derived.
type GradeInput struct {
	GradeLabel *string  `json:"grade_label" validate:"required_without=GradeValue,omitempty,letter"`
	GradeValue *float64 `json:"grade_value" validate:"required_without=GradeLabel,omitempty,min=0,max=100"`
	Comment    *string  `json:"comment" validate:"omitempty,max=5000"`
}

func (gi *GradeInput) Validate(validate *validator.Validate) error {
	gi.GradeLabel = core.CleanStringPtr(gi.GradeLabel)
	gi.Comment = core.CleanStringPtr(gi.Comment)
	return validate.Struct(gi)
}

type NewComment struct {
	Body string `json:"body" validate:"required,notblank,max=5000"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Body = core.CleanString(nc.Body)
	return validate.Struct(nc)
}

// QueryFilter applies AND operation on the set fields. Date ranges are [From, Before).
type QueryFilter struct {
	FamilyID        string
	StudentID       string
	SubjectID       string
	Status          Status
	Category        string
	Search          string // case-insensitive match on the title
	DueFrom         time.Time
	DueBefore       time.Time
	CompletedFrom   time.Time
	CompletedBefore time.Time
}

// OrderingFields maps the API ordering fields to columns.
var OrderingFields = map[string]string{
	"title":          "title",
	"status":         "status",
	"priority":       "priority",
	"due_date":       "due_date",
	"assigned_date":  "assigned_date",
	"completed_date": "completed_date",
	"created_at":     "created_at",
}

// resolveGrade completes a grade pair: a label alone takes its value from the letter table,
// a value alone takes the letter of its band.
func resolveGrade(label *string, value *float64) (null.String, null.Float64, error) {
	switch {
	case label == nil && value == nil:
		return null.String{}, null.Float64{}, nil
	case label != nil:
		l := grading.NormalizeLetter(*label)
		v, ok := grading.LetterToNumeric(l)
		if !ok {
			return null.String{}, null.Float64{}, core.NewValidationError(nil, core.FieldError{Field: "grade_label", Error: "invalid letter grade"})
		}
		if value != nil {
			v = *value
		}
		return null.StringFrom(l), null.Float64From(v), nil
	default:
		return null.StringFrom(grading.GPAToLetter(*value)), null.Float64From(*value), nil
	}
}
