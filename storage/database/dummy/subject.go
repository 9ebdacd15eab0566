package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core/grading"
	"github.com/trezcool/homeschool/core/subject"
)

type subjectRepository struct {
	db *DB
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *DB) subject.Repository {
	return &subjectRepository{db: db}
}

// cp copies a subject with its weights, ordered by category.
func cp(sub *subject.Subject) subject.Subject {
	c := *sub
	c.Weights = make([]subject.Weight, len(sub.Weights))
	copy(c.Weights, sub.Weights)
	order := make(map[grading.Category]int, len(grading.AllCategories))
	for i, cat := range grading.AllCategories {
		order[cat] = i
	}
	sort.Slice(c.Weights, func(i, j int) bool { return order[c.Weights[i].Category] < order[c.Weights[j].Category] })
	return c
}

func (repo *subjectRepository) CreateSubject(_ context.Context, sub subject.Subject) (subject.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = newID()
	sub.Weights = []subject.Weight{}
	repo.db.subjects[sub.ID] = &sub
	return cp(&sub), nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, familyID, id string) (subject.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok && sub.FamilyID == familyID {
		return cp(sub), nil
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) QuerySubjects(_ context.Context, familyID string) ([]subject.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]subject.Subject, 0)
	for _, sub := range repo.db.subjects {
		if sub.FamilyID == familyID {
			subjects = append(subjects, cp(sub))
		}
	}
	sort.Slice(subjects, func(i, j int) bool {
		return strings.ToLower(subjects[i].Name) < strings.ToLower(subjects[j].Name)
	})
	return subjects, nil
}

func (repo *subjectRepository) UpdateSubject(_ context.Context, sub subject.Subject) (subject.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.subjects[sub.ID]
	if !ok || orig.FamilyID != sub.FamilyID {
		return subject.Subject{}, subject.ErrNotFound
	}
	orig.Name = sub.Name
	orig.Color = sub.Color
	orig.UpdatedAt = sub.UpdatedAt
	return cp(orig), nil
}

func (repo *subjectRepository) DeleteSubject(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.subjects[id]
	if !ok || sub.FamilyID != familyID {
		return subject.ErrNotFound
	}
	for _, a := range repo.db.assignments {
		if a.SubjectID.Valid && a.SubjectID.String == id {
			a.SubjectID = null.String{}
		}
	}
	for _, g := range repo.db.goals {
		if g.SubjectID.Valid && g.SubjectID.String == id {
			g.SubjectID = null.String{}
		}
	}
	delete(repo.db.subjects, id)
	return nil
}

func (repo *subjectRepository) ReplaceWeights(_ context.Context, subjectID string, weights []subject.Weight) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.subjects[subjectID]
	if !ok {
		return subject.ErrNotFound
	}
	if err := repo.db.takeFailure(); err != nil {
		return err
	}
	sub.Weights = make([]subject.Weight, len(weights))
	copy(sub.Weights, weights)
	return nil
}
