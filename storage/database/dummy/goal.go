package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/homeschool/core/goal"
)

type goalRepository struct {
	db *DB
}

var _ goal.Repository = (*goalRepository)(nil) // interface compliance check

func NewGoalRepository(db *DB) goal.Repository {
	return &goalRepository{db: db}
}

func (repo *goalRepository) CreateGoal(_ context.Context, g goal.Goal) (goal.Goal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	g.ID = newID()
	repo.db.goals[g.ID] = &g
	return g, nil
}

func (repo *goalRepository) GetGoal(_ context.Context, familyID, id string) (goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if g, ok := repo.db.goals[id]; ok && g.FamilyID == familyID {
		return *g, nil
	}
	return goal.Goal{}, goal.ErrNotFound
}

func (repo *goalRepository) QueryGoals(_ context.Context, filter goal.QueryFilter) ([]goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	goals := make([]goal.Goal, 0)
	for _, g := range repo.db.goals {
		if g.FamilyID != filter.FamilyID || (filter.StudentID != "" && g.StudentID != filter.StudentID) {
			continue
		}
		goals = append(goals, *g)
	}
	sort.Slice(goals, func(i, j int) bool {
		if !goals[i].TermStart.Equal(goals[j].TermStart) {
			return goals[i].TermStart.Before(goals[j].TermStart)
		}
		return goals[i].Title < goals[j].Title
	})
	return goals, nil
}

func (repo *goalRepository) UpdateGoal(_ context.Context, g goal.Goal) (goal.Goal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.goals[g.ID]
	if !ok || orig.FamilyID != g.FamilyID {
		return goal.Goal{}, goal.ErrNotFound
	}
	g.StudentID = orig.StudentID
	g.CurrentCount = orig.CurrentCount
	g.CreatedAt = orig.CreatedAt
	*orig = g
	return g, nil
}

func (repo *goalRepository) SetGoalCount(_ context.Context, familyID, id string, count int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	g, ok := repo.db.goals[id]
	if !ok || g.FamilyID != familyID {
		return goal.ErrNotFound
	}
	g.CurrentCount = count
	return nil
}

func (repo *goalRepository) DeleteGoal(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	g, ok := repo.db.goals[id]
	if !ok || g.FamilyID != familyID {
		return goal.ErrNotFound
	}
	delete(repo.db.goals, id)
	return nil
}

func (repo *goalRepository) CountCompletedAssignments(_ context.Context, filter goal.CompletedFilter) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.countCompleted(filter), nil
}
