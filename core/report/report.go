// Package report aggregates the completion, grade, goal and attendance data of students.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/grading"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
)

const noSubjectName = "No subject"

// Range bounds a report by calendar day. Both ends are inclusive and optional.
type Range struct {
	From null.Time `json:"from"`
	To   null.Time `json:"to"`
}

// ParseRange parses optional YYYY-MM-DD bounds.
func ParseRange(from, to string) (Range, error) {
	var rng Range
	if from = core.CleanString(from); from != "" {
		d, err := core.ParseDate(from)
		if err != nil {
			return Range{}, core.NewValidationError(err, core.FieldError{Field: "from", Error: "invalid date"})
		}
		rng.From = null.TimeFrom(d)
	}
	if to = core.CleanString(to); to != "" {
		d, err := core.ParseDate(to)
		if err != nil {
			return Range{}, core.NewValidationError(err, core.FieldError{Field: "to", Error: "invalid date"})
		}
		rng.To = null.TimeFrom(d)
	}
	if rng.From.Valid && rng.To.Valid && rng.To.Time.Before(rng.From.Time) {
		return Range{}, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "the end must not be before the start"})
	}
	return rng, nil
}

// Contains reports whether t falls on a day of the range.
func (rng Range) Contains(t time.Time) bool {
	day := core.StartOfDay(t)
	if rng.From.Valid && day.Before(core.StartOfDay(rng.From.Time)) {
		return false
	}
	if rng.To.Valid && day.After(core.StartOfDay(rng.To.Time)) {
		return false
	}
	return true
}

type SubjectSummary struct {
	SubjectID      null.String `json:"subject_id"`
	Name           string      `json:"name"`
	Color          string      `json:"color"`
	GPA            *float64    `json:"gpa"`
	Letter         string      `json:"letter"`
	Completed      int         `json:"completed"`
	Total          int         `json:"total"`
	CompletionRate float64     `json:"completion_rate"` // percent
}

type GoalSummary struct {
	goal.Goal
	Progress float64 `json:"progress"` // percent
}

// Report is the progress of one student over a range.
type Report struct {
	Student        student.Student  `json:"student"`
	Range          Range            `json:"range"`
	Subjects       []SubjectSummary `json:"subjects"`
	OverallGPA     *float64         `json:"overall_gpa"`
	OverallLetter  string           `json:"overall_letter"`
	Completed      int              `json:"completed"`
	Total          int              `json:"total"`
	CompletionRate float64          `json:"completion_rate"` // percent
	AttendanceDays int              `json:"attendance_days"`
	Goals          []GoalSummary    `json:"goals"`
	GeneratedAt    time.Time        `json:"generated_at"` // UTC
}

type Service struct {
	assignments assignment.Repository
	students    student.Repository
	subjects    subject.Repository
	goals       goal.Repository
}

func NewService(assignments assignment.Repository, students student.Repository, subjects subject.Repository, goals goal.Repository) *Service {
	return &Service{assignments: assignments, students: students, subjects: subjects, goals: goals}
}

// StudentReport builds the report of one student. Students may only see their own report.
func (svc *Service) StudentReport(ctx context.Context, actor core.Actor, studentID string, rng Range) (Report, error) {
	std, err := svc.students.GetStudent(ctx, actor.FamilyID, studentID)
	if err != nil {
		return Report{}, err
	}
	if actor.Role == core.RoleStudent && std.UserID.String != actor.UserID {
		return Report{}, student.ErrNotFound
	}
	subjects, err := svc.subjects.QuerySubjects(ctx, actor.FamilyID)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying subjects")
	}
	return svc.build(ctx, std, subjects, rng)
}

// FamilyReport builds the report of every student of the actor's family. Parents only.
func (svc *Service) FamilyReport(ctx context.Context, actor core.Actor, rng Range) ([]Report, error) {
	if err := actor.RequireManager(); err != nil {
		return nil, err
	}
	students, err := svc.students.QueryStudents(ctx, actor.FamilyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	subjects, err := svc.subjects.QuerySubjects(ctx, actor.FamilyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	reports := make([]Report, 0, len(students))
	for _, std := range students {
		rep, err := svc.build(ctx, std, subjects, rng)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

type bucket struct {
	summary SubjectSummary
	weights grading.Weights
	items   []grading.Item
}

func (svc *Service) build(ctx context.Context, std student.Student, subjects []subject.Subject, rng Range) (Report, error) {
	all, err := svc.assignments.QueryAssignments(ctx, assignment.QueryFilter{FamilyID: std.FamilyID, StudentID: std.ID}, nil)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying assignments")
	}
	goals, err := svc.goals.QueryGoals(ctx, goal.QueryFilter{FamilyID: std.FamilyID, StudentID: std.ID})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying goals")
	}

	bySubject := make(map[string]subject.Subject, len(subjects))
	for _, sub := range subjects {
		bySubject[sub.ID] = sub
	}

	rep := Report{Student: std, Range: rng, GeneratedAt: core.NowFunc()}
	buckets := make(map[string]*bucket)
	days := make(map[time.Time]bool)
	for _, a := range all {
		if a.IsCompleted() && a.CompletedDate.Valid && rng.Contains(a.CompletedDate.Time) {
			days[core.StartOfDay(a.CompletedDate.Time)] = true
		}
		if !rng.Contains(a.EffectiveDate()) {
			continue
		}

		b, ok := buckets[a.SubjectID.String]
		if !ok {
			b = &bucket{summary: SubjectSummary{SubjectID: a.SubjectID, Name: noSubjectName}}
			if sub, found := bySubject[a.SubjectID.String]; found {
				b.summary.Name, b.summary.Color = sub.Name, sub.Color
				b.weights = sub.WeightMap()
			}
			buckets[a.SubjectID.String] = b
		}
		b.summary.Total++
		rep.Total++
		if a.IsCompleted() {
			b.summary.Completed++
			rep.Completed++
			b.items = append(b.items, a.GradingItem())
		}
	}

	gpas := make([]*float64, 0, len(buckets))
	rep.Subjects = make([]SubjectSummary, 0, len(buckets))
	for _, b := range buckets {
		b.summary.GPA = grading.ComputeSubjectGPA(b.items, b.weights)
		if b.summary.GPA != nil {
			b.summary.Letter = grading.GPAToLetter(*b.summary.GPA)
		}
		b.summary.CompletionRate = rate(b.summary.Completed, b.summary.Total)
		gpas = append(gpas, b.summary.GPA)
		rep.Subjects = append(rep.Subjects, b.summary)
	}
	sort.Slice(rep.Subjects, func(i, j int) bool {
		si, sj := rep.Subjects[i], rep.Subjects[j]
		if si.SubjectID.Valid != sj.SubjectID.Valid {
			return si.SubjectID.Valid // work without a subject goes last
		}
		return si.Name < sj.Name
	})

	rep.OverallGPA = grading.ComputeOverallGPA(gpas)
	if rep.OverallGPA != nil {
		rep.OverallLetter = grading.GPAToLetter(*rep.OverallGPA)
	}
	rep.CompletionRate = rate(rep.Completed, rep.Total)
	rep.AttendanceDays = len(days)

	rep.Goals = make([]GoalSummary, 0, len(goals))
	for _, g := range goals {
		rep.Goals = append(rep.Goals, GoalSummary{Goal: g, Progress: g.Progress()})
	}
	return rep, nil
}

func rate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return core.Round1(float64(completed) / float64(total) * 100)
}
