package goal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
)

type (
	Repository interface {
		CreateGoal(ctx context.Context, g Goal) (Goal, error)
		GetGoal(ctx context.Context, familyID, id string) (Goal, error)
		QueryGoals(ctx context.Context, filter QueryFilter) ([]Goal, error)
		UpdateGoal(ctx context.Context, g Goal) (Goal, error)
		// SetGoalCount only writes CurrentCount.
		SetGoalCount(ctx context.Context, familyID, id string, count int) error
		DeleteGoal(ctx context.Context, familyID, id string) error
		CountCompletedAssignments(ctx context.Context, filter CompletedFilter) (int, error)
	}

	Service struct {
		repo     Repository
		students student.Repository
		subjects subject.Repository
	}
)

func NewService(repo Repository, students student.Repository, subjects subject.Repository) *Service {
	return &Service{repo: repo, students: students, subjects: subjects}
}

func (svc *Service) checkRefs(ctx context.Context, familyID, studentID string, subjectID *string) error {
	if _, err := svc.students.GetStudent(ctx, familyID, studentID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: "student not found"})
		}
		return err
	}
	if subjectID != nil {
		if _, err := svc.subjects.GetSubject(ctx, familyID, *subjectID); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: "subject not found"})
			}
			return err
		}
	}
	return nil
}

// Create adds a goal and computes its progress.
func (svc *Service) Create(ctx context.Context, actor core.Actor, ng NewGoal) (Goal, error) {
	if err := actor.RequireManager(); err != nil {
		return Goal{}, err
	}
	if err := svc.checkRefs(ctx, actor.FamilyID, ng.StudentID, ng.SubjectID); err != nil {
		return Goal{}, err
	}
	now := core.NowFunc()
	g, err := svc.repo.CreateGoal(ctx, Goal{
		FamilyID:    actor.FamilyID,
		StudentID:   ng.StudentID,
		SubjectID:   null.StringFromPtr(ng.SubjectID),
		Title:       ng.Title,
		TargetCount: ng.TargetCount,
		TermStart:   ng.termStart,
		TermEnd:     ng.termEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Goal{}, errors.Wrap(err, "creating goal")
	}
	return svc.Recalculate(ctx, g)
}

// Get returns a goal of the actor's family. Students only see their own goals.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Goal, error) {
	g, err := svc.repo.GetGoal(ctx, actor.FamilyID, id)
	if err != nil {
		return Goal{}, err
	}
	if actor.Role == core.RoleStudent {
		std, err := svc.students.GetStudentByUser(ctx, actor.FamilyID, actor.UserID)
		if err != nil || std.ID != g.StudentID {
			return Goal{}, ErrNotFound
		}
	}
	return g, nil
}

// List returns the goals of the actor's family, optionally of one student.
// Students only see their own goals.
func (svc *Service) List(ctx context.Context, actor core.Actor, studentID string) ([]Goal, error) {
	if actor.Role == core.RoleStudent {
		std, err := svc.students.GetStudentByUser(ctx, actor.FamilyID, actor.UserID)
		if err != nil {
			if core.IsNotFound(err) {
				return []Goal{}, nil
			}
			return nil, err
		}
		studentID = std.ID
	}
	return svc.repo.QueryGoals(ctx, QueryFilter{FamilyID: actor.FamilyID, StudentID: studentID})
}

// Update modifies a goal and recomputes its progress.
func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ug UpdateGoal) (Goal, error) {
	if err := actor.RequireManager(); err != nil {
		return Goal{}, err
	}
	g, err := svc.repo.GetGoal(ctx, actor.FamilyID, id)
	if err != nil {
		return Goal{}, err
	}

	switch {
	case ug.dropSubject:
		g.SubjectID = null.String{}
	case ug.SubjectID != nil:
		if err = svc.checkRefs(ctx, actor.FamilyID, g.StudentID, ug.SubjectID); err != nil {
			return Goal{}, err
		}
		g.SubjectID = null.StringFrom(*ug.SubjectID)
	}
	if ug.Title != nil {
		g.Title = *ug.Title
	}
	if ug.TargetCount != nil {
		g.TargetCount = *ug.TargetCount
	}
	start, end := g.TermStart.Format(core.DateLayout), g.TermEnd.Format(core.DateLayout)
	if ug.TermStart != nil {
		start = *ug.TermStart
	}
	if ug.TermEnd != nil {
		end = *ug.TermEnd
	}
	if g.TermStart, g.TermEnd, err = parseTerm(start, end); err != nil {
		return Goal{}, err
	}
	g.UpdatedAt = core.NowFunc()

	if g, err = svc.repo.UpdateGoal(ctx, g); err != nil {
		return Goal{}, errors.Wrap(err, "updating goal")
	}
	return svc.Recalculate(ctx, g)
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if err := actor.RequireManager(); err != nil {
		return err
	}
	return svc.repo.DeleteGoal(ctx, actor.FamilyID, id)
}

// Recalculate recomputes the goal progress from the assignments:
// CurrentCount = min(completed assignments matching the goal, TargetCount).
// It always derives the value from source rows, so redundant calls converge.
func (svc *Service) Recalculate(ctx context.Context, g Goal) (Goal, error) {
	count, err := svc.repo.CountCompletedAssignments(ctx, g.completedFilter())
	if err != nil {
		return Goal{}, errors.Wrap(err, "counting completed assignments")
	}
	if count > g.TargetCount {
		count = g.TargetCount
	}
	if count != g.CurrentCount {
		if err = svc.repo.SetGoalCount(ctx, g.FamilyID, g.ID, count); err != nil {
			return Goal{}, errors.Wrap(err, "setting goal count")
		}
		g.CurrentCount = count
	}
	return g, nil
}

// RecalculateForAssignment recomputes every goal of the student an assignment may count toward:
// goals without a subject and goals of the assignment's subject.
func (svc *Service) RecalculateForAssignment(ctx context.Context, studentID, familyID string, subjectID *string) error {
	goals, err := svc.repo.QueryGoals(ctx, QueryFilter{FamilyID: familyID, StudentID: studentID})
	if err != nil {
		return errors.Wrap(err, "querying goals")
	}
	for _, g := range goals {
		if g.SubjectID.Valid && (subjectID == nil || g.SubjectID.String != *subjectID) {
			continue
		}
		if _, err = svc.Recalculate(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// RecalculateUnscoped recomputes every goal of the family without a subject.
// Deleting a subject detaches its goals, which then count completions of any subject.
func (svc *Service) RecalculateUnscoped(ctx context.Context, familyID string) error {
	goals, err := svc.repo.QueryGoals(ctx, QueryFilter{FamilyID: familyID})
	if err != nil {
		return errors.Wrap(err, "querying goals")
	}
	for _, g := range goals {
		if g.SubjectID.Valid {
			continue
		}
		if _, err = svc.Recalculate(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
