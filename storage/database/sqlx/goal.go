package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
)

const goalColumns = `id, family_id, student_id, subject_id, title, target_count, current_count, term_start, term_end,
	created_at, updated_at`

type goalRepository struct {
	db *sqlx.DB
}

var _ goal.Repository = (*goalRepository)(nil) // interface compliance check

func NewGoalRepository(db *sqlx.DB) goal.Repository {
	return &goalRepository{db: db}
}

func (repo *goalRepository) CreateGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	g.ID = newID()
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO goal (`+goalColumns+`)
		VALUES (:id, :family_id, :student_id, :subject_id, :title, :target_count, :current_count, :term_start, :term_end,
		:created_at, :updated_at)`, g)
	if err != nil {
		return goal.Goal{}, errors.Wrap(err, "inserting goal")
	}
	return g, nil
}

func (repo *goalRepository) GetGoal(ctx context.Context, familyID, id string) (goal.Goal, error) {
	if !validID(id) {
		return goal.Goal{}, goal.ErrNotFound
	}
	var g goal.Goal
	err := repo.db.GetContext(ctx, &g, `SELECT `+goalColumns+` FROM goal WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return goal.Goal{}, trapNoRows(err, goal.ErrNotFound, "getting goal")
	}
	return g, nil
}

func (repo *goalRepository) QueryGoals(ctx context.Context, filter goal.QueryFilter) ([]goal.Goal, error) {
	w := new(where)
	w.add("family_id = ?", filter.FamilyID)
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return []goal.Goal{}, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}

	goals := make([]goal.Goal, 0)
	q := repo.db.Rebind(`SELECT ` + goalColumns + ` FROM goal` + w.String() + ` ORDER BY term_start, title`)
	if err := repo.db.SelectContext(ctx, &goals, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying goals")
	}
	return goals, nil
}

func (repo *goalRepository) UpdateGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	res, err := repo.db.NamedExecContext(ctx, `UPDATE goal
		SET subject_id = :subject_id, title = :title, target_count = :target_count,
		    term_start = :term_start, term_end = :term_end, updated_at = :updated_at
		WHERE family_id = :family_id AND id = :id`, g)
	if err != nil {
		return goal.Goal{}, errors.Wrap(err, "updating goal")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goal.Goal{}, goal.ErrNotFound
	}
	return repo.GetGoal(ctx, g.FamilyID, g.ID)
}

func (repo *goalRepository) SetGoalCount(ctx context.Context, familyID, id string, count int) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE goal SET current_count = $1 WHERE family_id = $2 AND id = $3`, count, familyID, id)
	if err != nil {
		return errors.Wrap(err, "setting goal count")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goal.ErrNotFound
	}
	return nil
}

func (repo *goalRepository) DeleteGoal(ctx context.Context, familyID, id string) error {
	if !validID(id) {
		return goal.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM goal WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return errors.Wrap(err, "deleting goal")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goal.ErrNotFound
	}
	return nil
}

func (repo *goalRepository) CountCompletedAssignments(ctx context.Context, filter goal.CompletedFilter) (int, error) {
	w := new(where)
	w.add("family_id = ?", filter.FamilyID)
	w.add("student_id = ?", filter.StudentID)
	w.add("status = ?", assignment.StatusCompleted)
	w.add("completed_date IS NOT NULL")
	if filter.SubjectID != nil {
		w.add("subject_id = ?", *filter.SubjectID)
	}
	if !filter.CompletedFrom.IsZero() {
		w.add("completed_date >= ?", filter.CompletedFrom)
	}
	if !filter.CompletedBefore.IsZero() {
		w.add("completed_date < ?", filter.CompletedBefore)
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(`SELECT count(*) FROM assignment`+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting completed assignments")
	}
	return count, nil
}
