package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/grading"
	"github.com/trezcool/homeschool/core/subject"
)

const (
	subjectColumns = `id, family_id, name, color, created_at, updated_at`

	// weights are ordered like grading.AllCategories
	weightOrder = `CASE category WHEN 'TEST' THEN 0 WHEN 'QUIZ' THEN 1 WHEN 'HOMEWORK' THEN 2 ELSE 3 END`
)

type subjectRepository struct {
	db *sqlx.DB
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *sqlx.DB) subject.Repository {
	return &subjectRepository{db: db}
}

type weightRow struct {
	SubjectID string
	Category  grading.Category
	Weight    float64
}

// loadWeights fills the weights of subjects.
func (repo *subjectRepository) loadWeights(ctx context.Context, subjects []subject.Subject) error {
	if len(subjects) == 0 {
		return nil
	}
	idx := make(map[string]int, len(subjects))
	ids := make([]string, 0, len(subjects))
	for i := range subjects {
		subjects[i].Weights = []subject.Weight{}
		idx[subjects[i].ID] = i
		ids = append(ids, subjects[i].ID)
	}

	q, args, err := sqlx.In(`SELECT subject_id, category, weight FROM subject_weight WHERE subject_id IN (?) ORDER BY `+weightOrder, ids)
	if err != nil {
		return errors.Wrap(err, "building weights query")
	}
	var rows []weightRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "querying weights")
	}
	for _, r := range rows {
		i := idx[r.SubjectID]
		subjects[i].Weights = append(subjects[i].Weights, subject.Weight{Category: r.Category, Weight: r.Weight})
	}
	return nil
}

func (repo *subjectRepository) CreateSubject(ctx context.Context, sub subject.Subject) (subject.Subject, error) {
	sub.ID = newID()
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO subject (`+subjectColumns+`)
		VALUES (:id, :family_id, :name, :color, :created_at, :updated_at)`, sub)
	if err != nil {
		return subject.Subject{}, errors.Wrap(err, "inserting subject")
	}
	sub.Weights = []subject.Weight{}
	return sub, nil
}

func (repo *subjectRepository) GetSubject(ctx context.Context, familyID, id string) (subject.Subject, error) {
	if !validID(id) {
		return subject.Subject{}, subject.ErrNotFound
	}
	var sub subject.Subject
	err := repo.db.GetContext(ctx, &sub, `SELECT `+subjectColumns+` FROM subject WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return subject.Subject{}, trapNoRows(err, subject.ErrNotFound, "getting subject")
	}
	subjects := []subject.Subject{sub}
	if err = repo.loadWeights(ctx, subjects); err != nil {
		return subject.Subject{}, err
	}
	return subjects[0], nil
}

func (repo *subjectRepository) QuerySubjects(ctx context.Context, familyID string) ([]subject.Subject, error) {
	subjects := make([]subject.Subject, 0)
	err := repo.db.SelectContext(ctx, &subjects, `SELECT `+subjectColumns+` FROM subject WHERE family_id = $1 ORDER BY lower(name)`, familyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	if err = repo.loadWeights(ctx, subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

func (repo *subjectRepository) UpdateSubject(ctx context.Context, sub subject.Subject) (subject.Subject, error) {
	res, err := repo.db.NamedExecContext(ctx, `UPDATE subject SET name = :name, color = :color, updated_at = :updated_at
		WHERE family_id = :family_id AND id = :id`, sub)
	if err != nil {
		return subject.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subject.Subject{}, subject.ErrNotFound
	}
	return repo.GetSubject(ctx, sub.FamilyID, sub.ID)
}

// DeleteSubject relies on the schema: weights cascade, assignments and goals lose their subject.
func (repo *subjectRepository) DeleteSubject(ctx context.Context, familyID, id string) error {
	if !validID(id) {
		return subject.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM subject WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subject.ErrNotFound
	}
	return nil
}

func (repo *subjectRepository) ReplaceWeights(ctx context.Context, subjectID string, weights []subject.Weight) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subject_weight WHERE subject_id = $1`, subjectID); err != nil {
			return errors.Wrap(err, "deleting weights")
		}
		for _, w := range weights {
			_, err := tx.ExecContext(ctx, `INSERT INTO subject_weight (subject_id, category, weight) VALUES ($1, $2, $3)`,
				subjectID, w.Category, w.Weight)
			if err != nil {
				return errors.Wrap(err, "inserting weight")
			}
		}
		return nil
	})
}
