package goal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/testutil"
)

func TestGoal_Progress(t *testing.T) {
	assert.Equal(t, 0.0, goal.Goal{TargetCount: 0, CurrentCount: 3}.Progress())
	assert.Equal(t, 71.4, goal.Goal{TargetCount: 7, CurrentCount: 5}.Progress())
	assert.Equal(t, 100.0, goal.Goal{TargetCount: 4, CurrentCount: 4}.Progress())
}

func TestNewGoal_Validate(t *testing.T) {
	validate := testutil.NewValidator()
	base := func() goal.NewGoal {
		return goal.NewGoal{
			StudentID:   "9a4ed6a8-0f3c-4c3e-9d5b-2a3a1e9f1b11",
			Title:       "Read 10 books",
			TargetCount: 10,
			TermStart:   "2024-01-08",
			TermEnd:     "2024-06-14",
		}
	}

	ng := base()
	assert.NoError(t, ng.Validate(validate))

	ng = base()
	ng.TermEnd = "2024-01-07"
	err := ng.Validate(validate)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	assert.Equal(t, "term_end", vErr.Fields[0].Field)

	ng = base()
	ng.TermEnd = ng.TermStart
	assert.NoError(t, ng.Validate(validate), "a one-day term is valid")

	ng = base()
	ng.TargetCount = 0
	assert.Error(t, ng.Validate(validate))

	ng = base()
	ng.TermStart = "01/08/2024"
	assert.Error(t, ng.Validate(validate))
}

func TestService_Recalculate(t *testing.T) {
	testutil.FreezeTime(t, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	parent := fam.ParentActor()
	std := testutil.CreateStudent(t, env.Repos.Students, fam.ID, "Ada", "")
	math := testutil.CreateSubject(t, env.Repos.Subjects, fam.ID, "Math")
	art := testutil.CreateSubject(t, env.Repos.Subjects, fam.ID, "Art")

	day := func(s string) time.Time { return testutil.Date(t, s) }
	create := func(title, subjectID, start, end string, target int) goal.Goal {
		ng := goal.NewGoal{StudentID: std.ID, Title: title, TargetCount: target, TermStart: start, TermEnd: end}
		if subjectID != "" {
			ng.SubjectID = &subjectID
		}
		require.NoError(t, ng.Validate(env.Validate))
		g, err := env.Goals.Create(ctx, parent, ng)
		require.NoError(t, err)
		return g
	}

	// 7 completed math assignments in March, the last one late on term_end
	for i := 1; i <= 6; i++ {
		testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, math.ID, "Math", day("2024-03-01").AddDate(0, 0, i*3), nil, ""))
	}
	testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, math.ID, "Math late", day("2024-03-31").Add(23*time.Hour+59*time.Minute), nil, ""))
	// outside the term
	testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, math.ID, "Math April", day("2024-04-01"), nil, ""))
	testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, math.ID, "Math Feb", day("2024-02-29"), nil, ""))
	// another subject
	testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, art.ID, "Art", day("2024-03-10"), nil, ""))
	// not completed
	testutil.CreateAssignment(t, env.Repos.Assignments, assignment.Assignment{
		FamilyID:  fam.ID,
		StudentID: std.ID,
		SubjectID: null.StringFrom(math.ID),
	})

	t.Run("clamped to target", func(t *testing.T) {
		g := create("Math five", math.ID, "2024-03-01", "2024-03-31", 5)
		assert.Equal(t, 5, g.CurrentCount, "7 of 5 is clamped")
		assert.Equal(t, 100.0, g.Progress())
	})

	t.Run("term end is inclusive", func(t *testing.T) {
		g := create("Math ten", math.ID, "2024-03-01", "2024-03-31", 10)
		assert.Equal(t, 7, g.CurrentCount)
	})

	t.Run("day after term end is excluded", func(t *testing.T) {
		g := create("Math until 30", math.ID, "2024-03-01", "2024-03-30", 10)
		assert.Equal(t, 6, g.CurrentCount)
	})

	t.Run("goal without subject counts every subject", func(t *testing.T) {
		g := create("Anything", "", "2024-03-01", "2024-03-31", 20)
		assert.Equal(t, 8, g.CurrentCount)
	})

	t.Run("redundant recalculations converge", func(t *testing.T) {
		g := create("Converge", math.ID, "2024-03-01", "2024-03-31", 10)
		for i := 0; i < 3; i++ {
			var err error
			g, err = env.Goals.Recalculate(ctx, g)
			require.NoError(t, err)
		}
		assert.Equal(t, 7, g.CurrentCount)
	})

	t.Run("update recomputes", func(t *testing.T) {
		g := create("Shrinking", math.ID, "2024-03-01", "2024-03-31", 10)
		ug := goal.UpdateGoal{TermEnd: testutil.StrPtr("2024-03-15")}
		require.NoError(t, ug.Validate(env.Validate))
		g, err := env.Goals.Update(ctx, parent, g.ID, ug)
		require.NoError(t, err)
		assert.Equal(t, 4, g.CurrentCount) // days 4, 7, 10, 13

		ug = goal.UpdateGoal{SubjectID: testutil.StrPtr("")}
		require.NoError(t, ug.Validate(env.Validate))
		g, err = env.Goals.Update(ctx, parent, g.ID, ug)
		require.NoError(t, err)
		assert.False(t, g.SubjectID.Valid)
		assert.Equal(t, 5, g.CurrentCount) // + art on the 10th

		ug = goal.UpdateGoal{TermStart: testutil.StrPtr("2024-03-20")}
		require.NoError(t, ug.Validate(env.Validate))
		_, err = env.Goals.Update(ctx, parent, g.ID, ug)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), "got %v", err)
		assert.Equal(t, "term_end", vErr.Fields[0].Field)
	})
}

func TestService_access(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	ada, adaUser := testutil.CreateLinkedStudent(t, env, fam.ID, "Ada", "ada@doe.test")
	bob, _ := testutil.CreateLinkedStudent(t, env, fam.ID, "Bob", "bob@doe.test")

	newGoal := func(studentID string) goal.NewGoal {
		ng := goal.NewGoal{StudentID: studentID, Title: "Goal", TargetCount: 3, TermStart: "2024-01-01", TermEnd: "2024-12-31"}
		require.NoError(t, ng.Validate(env.Validate))
		return ng
	}
	adaGoal, err := env.Goals.Create(ctx, fam.ParentActor(), newGoal(ada.ID))
	require.NoError(t, err)
	bobGoal, err := env.Goals.Create(ctx, fam.ParentActor(), newGoal(bob.ID))
	require.NoError(t, err)

	_, err = env.Goals.Create(ctx, adaUser.Actor(), newGoal(ada.ID))
	assert.IsType(t, &core.PermissionError{}, err)

	other := testutil.CreateFamily(t, env.Repos.Users, "Roe", "rick@roe.test")
	_, err = env.Goals.Create(ctx, other.ParentActor(), newGoal(ada.ID))
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	assert.Equal(t, "student_id", vErr.Fields[0].Field)

	goals, err := env.Goals.List(ctx, adaUser.Actor(), bob.ID)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, adaGoal.ID, goals[0].ID)

	_, err = env.Goals.Get(ctx, adaUser.Actor(), bobGoal.ID)
	assert.True(t, core.IsNotFound(err))

	goals, err = env.Goals.List(ctx, fam.ParentActor(), "")
	require.NoError(t, err)
	assert.Len(t, goals, 2)

	require.NoError(t, env.Goals.Delete(ctx, fam.ParentActor(), bobGoal.ID))
	assert.True(t, core.IsNotFound(env.Goals.Delete(ctx, fam.ParentActor(), bobGoal.ID)))
}

func TestService_RecalculateUnscoped(t *testing.T) {
	testutil.FreezeTime(t, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	parent := fam.ParentActor()
	std := testutil.CreateStudent(t, env.Repos.Students, fam.ID, "Ada", "")
	math := testutil.CreateSubject(t, env.Repos.Subjects, fam.ID, "Math")
	art := testutil.CreateSubject(t, env.Repos.Subjects, fam.ID, "Art")

	testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, math.ID, "Fractions", testutil.Date(t, "2024-03-04"), nil, ""))
	testutil.CreateAssignment(t, env.Repos.Assignments, testutil.Completed(std, art.ID, "Sketch", testutil.Date(t, "2024-03-05"), nil, ""))

	ng := goal.NewGoal{StudentID: std.ID, SubjectID: &math.ID, Title: "Math", TargetCount: 5, TermStart: "2024-03-01", TermEnd: "2024-03-31"}
	require.NoError(t, ng.Validate(env.Validate))
	g, err := env.Goals.Create(ctx, parent, ng)
	require.NoError(t, err)
	require.Equal(t, 1, g.CurrentCount)

	require.NoError(t, env.Subjects.Delete(ctx, parent, math.ID))

	g, err = env.Goals.Get(ctx, parent, g.ID)
	require.NoError(t, err)
	assert.False(t, g.SubjectID.Valid)
	assert.Equal(t, 2, g.CurrentCount, "a detached goal counts every subject")

	again, err := env.Goals.Recalculate(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, g.CurrentCount, again.CurrentCount)
}

type failingGoalRepo struct {
	goal.Repository
	err error
}

func (repo failingGoalRepo) CountCompletedAssignments(context.Context, goal.CompletedFilter) (int, error) {
	return 0, repo.err
}

func (repo failingGoalRepo) QueryGoals(context.Context, goal.QueryFilter) ([]goal.Goal, error) {
	return nil, repo.err
}

func TestService_storageErrors(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	std := testutil.CreateStudent(t, env.Repos.Students, fam.ID, "Ada", "")
	cause := errors.New("connection reset")
	svc := goal.NewService(failingGoalRepo{Repository: env.Repos.Goals, err: cause}, env.Repos.Students, env.Repos.Subjects)

	ng := goal.NewGoal{StudentID: std.ID, Title: "March work", TargetCount: 3, TermStart: "2024-03-01", TermEnd: "2024-03-31"}
	require.NoError(t, ng.Validate(env.Validate))
	_, err := svc.Create(ctx, fam.ParentActor(), ng)
	assert.True(t, errors.Is(err, cause), "got %v", err)
	assert.Contains(t, err.Error(), "counting completed assignments")

	err = svc.RecalculateForAssignment(ctx, std.ID, fam.ID, nil)
	assert.True(t, errors.Is(err, cause), "got %v", err)
	assert.Contains(t, err.Error(), "querying goals")

	err = svc.RecalculateUnscoped(ctx, fam.ID)
	assert.True(t, errors.Is(err, cause), "got %v", err)
}
