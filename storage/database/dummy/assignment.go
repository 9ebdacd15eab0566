package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignments(_ context.Context, assignments ...assignment.Assignment) ([]assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if std, ok := repo.db.students[a.StudentID]; !ok || std.FamilyID != a.FamilyID {
			return nil, assignment.ErrNotFound
		}
	}
	created := make([]assignment.Assignment, 0, len(assignments))
	for _, a := range assignments {
		a := a
		a.ID = newID()
		repo.db.assignments[a.ID] = &a
		created = append(created, a)
	}
	return created, nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, familyID, id string) (assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.assignments[id]; ok && a.FamilyID == familyID {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func inRange(t null.Time, from, before time.Time) bool {
	if from.IsZero() && before.IsZero() {
		return true
	}
	if !t.Valid {
		return false
	}
	if !from.IsZero() && t.Time.Before(from) {
		return false
	}
	if !before.IsZero() && !t.Time.Before(before) {
		return false
	}
	return true
}

func matches(a *assignment.Assignment, filter assignment.QueryFilter) bool {
	switch {
	case a.FamilyID != filter.FamilyID:
		return false
	case filter.StudentID != "" && a.StudentID != filter.StudentID:
		return false
	case filter.SubjectID != "" && a.SubjectID.String != filter.SubjectID:
		return false
	case filter.Status != "" && a.Status != filter.Status:
		return false
	case filter.Category != "" && !strings.EqualFold(a.Category.String, filter.Category):
		return false
	case filter.Search != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(filter.Search)):
		return false
	}
	return inRange(a.DueDate, filter.DueFrom, filter.DueBefore) &&
		inRange(a.CompletedDate, filter.CompletedFrom, filter.CompletedBefore)
}

var priorityRank = map[assignment.Priority]int{
	assignment.PriorityLow:    0,
	assignment.PriorityMedium: 1,
	assignment.PriorityHigh:   2,
}

// compareNullTime orders null values last.
func compareNullTime(a, b null.Time) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return 1
	case !b.Valid:
		return -1
	}
	return compareTime(a.Time, b.Time)
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareAssignments(a, b assignment.Assignment, field string) int {
	switch field {
	case "title":
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "priority":
		return priorityRank[a.Priority] - priorityRank[b.Priority]
	case "due_date":
		return compareNullTime(a.DueDate, b.DueDate)
	case "assigned_date":
		return compareTime(a.AssignedDate, b.AssignedDate)
	case "completed_date":
		return compareNullTime(a.CompletedDate, b.CompletedDate)
	case "created_at":
		return compareTime(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

// defaultOrderings sorts by due date (undated last), then by creation.
var defaultOrderings = []core.DBOrdering{{Field: "due_date", Ascending: true}, {Field: "created_at", Ascending: true}}

func (repo *assignmentRepository) QueryAssignments(_ context.Context, filter assignment.QueryFilter, orderings []core.DBOrdering) ([]assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]assignment.Assignment, 0)
	for _, a := range repo.db.assignments {
		if matches(a, filter) {
			assignments = append(assignments, *a)
		}
	}
	if len(orderings) == 0 {
		orderings = defaultOrderings
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		for _, ord := range orderings {
			c := compareAssignments(assignments[i], assignments[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return assignments[i].Title < assignments[j].Title
	})
	return assignments, nil
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.assignments[a.ID]
	if !ok || orig.FamilyID != a.FamilyID {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	a.StudentID = orig.StudentID
	a.CreatedAt = orig.CreatedAt
	*orig = a
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, ok := repo.db.assignments[id]
	if !ok || a.FamilyID != familyID {
		return assignment.ErrNotFound
	}
	delete(repo.db.assignments, id)

	comments := repo.db.comments[:0]
	for _, cmt := range repo.db.comments {
		if cmt.AssignmentID != id {
			comments = append(comments, cmt)
		}
	}
	repo.db.comments = comments

	logs := repo.db.logs[:0]
	for _, l := range repo.db.logs {
		if l.AssignmentID.String != id {
			logs = append(logs, l)
		}
	}
	repo.db.logs = logs

	for _, n := range repo.db.notifications {
		if n.AssignmentID.String == id {
			n.AssignmentID = null.String{}
		}
	}
	return nil
}

// countCompleted counts the completed assignments matching filter. Callers hold the lock.
func (db *DB) countCompleted(filter goal.CompletedFilter) int {
	var count int
	for _, a := range db.assignments {
		if a.FamilyID != filter.FamilyID || a.StudentID != filter.StudentID || !a.IsCompleted() {
			continue
		}
		if filter.SubjectID != nil && a.SubjectID.String != *filter.SubjectID {
			continue
		}
		if a.CompletedDate.Valid && inRange(a.CompletedDate, filter.CompletedFrom, filter.CompletedBefore) {
			count++
		}
	}
	return count
}
