package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/assignment"
)

const (
	assignmentColumns = `id, family_id, student_id, subject_id, title, description, status, priority, category,
		due_date, assigned_date, completed_date, estimated_minutes, grade_value, grade_label, created_at, updated_at`

	insertAssignment = `INSERT INTO assignment (` + assignmentColumns + `)
		VALUES (:id, :family_id, :student_id, :subject_id, :title, :description, :status, :priority, :category,
		:due_date, :assigned_date, :completed_date, :estimated_minutes, :grade_value, :grade_label, :created_at, :updated_at)`
)

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignments(ctx context.Context, assignments ...assignment.Assignment) ([]assignment.Assignment, error) {
	created := make([]assignment.Assignment, 0, len(assignments))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, a := range assignments {
			a.ID = newID()
			if _, err := tx.NamedExecContext(ctx, insertAssignment, a); err != nil {
				if pqCode(err) == foreignKeyViolation {
					return assignment.ErrNotFound
				}
				return errors.Wrap(err, "inserting assignment")
			}
			created = append(created, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, familyID, id string) (assignment.Assignment, error) {
	if !validID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var a assignment.Assignment
	err := repo.db.GetContext(ctx, &a, `SELECT `+assignmentColumns+` FROM assignment WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return assignment.Assignment{}, trapNoRows(err, assignment.ErrNotFound, "getting assignment")
	}
	return a, nil
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter assignment.QueryFilter, orderings []core.DBOrdering) ([]assignment.Assignment, error) {
	w := new(where)
	w.add("family_id = ?", filter.FamilyID)
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return []assignment.Assignment{}, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.SubjectID != "" {
		if !validID(filter.SubjectID) {
			return []assignment.Assignment{}, nil
		}
		w.add("subject_id = ?", filter.SubjectID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Category != "" {
		w.add("upper(category) = upper(?)", filter.Category)
	}
	if filter.Search != "" {
		w.add("title ILIKE ?", "%"+filter.Search+"%")
	}
	if !filter.DueFrom.IsZero() {
		w.add("due_date >= ?", filter.DueFrom)
	}
	if !filter.DueBefore.IsZero() {
		w.add("due_date < ?", filter.DueBefore)
	}
	if !filter.CompletedFrom.IsZero() {
		w.add("completed_date >= ?", filter.CompletedFrom)
	}
	if !filter.CompletedBefore.IsZero() {
		w.add("completed_date < ?", filter.CompletedBefore)
	}

	assignments := make([]assignment.Assignment, 0)
	q := `SELECT ` + assignmentColumns + ` FROM assignment` + w.String() +
		orderBy(orderings, "due_date ASC NULLS LAST, created_at, title")
	if err := repo.db.SelectContext(ctx, &assignments, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return assignments, nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	res, err := repo.db.NamedExecContext(ctx, `UPDATE assignment
		SET subject_id = :subject_id, title = :title, description = :description, status = :status,
		    priority = :priority, category = :category, due_date = :due_date, completed_date = :completed_date,
		    estimated_minutes = :estimated_minutes, grade_value = :grade_value, grade_label = :grade_label,
		    updated_at = :updated_at
		WHERE family_id = :family_id AND id = :id`, a)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return repo.GetAssignment(ctx, a.FamilyID, a.ID)
}

// DeleteAssignment relies on the schema: comments and activity cascade, notifications lose the reference.
func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, familyID, id string) error {
	if !validID(id) {
		return assignment.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assignment.ErrNotFound
	}
	return nil
}
