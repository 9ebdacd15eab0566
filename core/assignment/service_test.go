package assignment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/user"
	"github.com/trezcool/homeschool/testutil"
)

var now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	env       *testutil.Env
	fam       testutil.Family
	parent2   user.User
	std       student.Student
	stdUser   user.User
	unlinked  student.Student
	assigned  assignment.Assignment
	termGoal  goal.Goal
	ctx       context.Context
	parentAct core.Actor
	stdAct    core.Actor
}

func setup(t *testing.T) *fixture {
	testutil.FreezeTime(t, now)
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	parent2 := testutil.CreateUser(t, env.Repos.Users, fam.ID, "John Doe", "john@doe.test", core.RoleParent, true)
	testutil.CreateUser(t, env.Repos.Users, fam.ID, "Gone Doe", "gone@doe.test", core.RoleParent, false)
	std, stdUser := testutil.CreateLinkedStudent(t, env, fam.ID, "Ada", "ada@doe.test")
	unlinked := testutil.CreateStudent(t, env.Repos.Students, fam.ID, "Bob", "")

	f := &fixture{
		env:       env,
		fam:       fam,
		parent2:   parent2,
		std:       std,
		stdUser:   stdUser,
		unlinked:  unlinked,
		ctx:       context.Background(),
		parentAct: fam.ParentActor(),
		stdAct:    stdUser.Actor(),
	}
	f.assigned = testutil.CreateAssignment(t, env.Repos.Assignments, assignment.Assignment{
		FamilyID:  fam.ID,
		StudentID: std.ID,
		Title:     "Fractions worksheet",
	})

	ng := goal.NewGoal{StudentID: std.ID, Title: "March work", TargetCount: 3, TermStart: "2024-03-01", TermEnd: "2024-03-31"}
	require.NoError(t, ng.Validate(env.Validate))
	var err error
	f.termGoal, err = env.Goals.Create(f.ctx, f.parentAct, ng)
	require.NoError(t, err)
	return f
}

func (f *fixture) goalCount(t *testing.T) int {
	g, err := f.env.Repos.Goals.GetGoal(f.ctx, f.fam.ID, f.termGoal.ID)
	require.NoError(t, err)
	return g.CurrentCount
}

func (f *fixture) notifications(t *testing.T, usr user.User) []activity.Notification {
	notifs, err := f.env.Activity.Notifications(f.ctx, usr.Actor(), false, 0)
	require.NoError(t, err)
	return notifs
}

func TestService_Create(t *testing.T) {
	f := setup(t)

	na := assignment.NewAssignment{
		StudentIDs: []string{f.std.ID, f.unlinked.ID, f.std.ID},
		Title:      "  Read chapter 3 ",
		Priority:   "high",
		Category:   testutil.StrPtr("homework"),
		DueDate:    testutil.StrPtr("2024-03-20"),
	}
	require.NoError(t, na.Validate(f.env.Validate))

	before := f.env.DB.Counts()
	created, err := f.env.Assignments.Create(f.ctx, f.parentAct, na)
	require.NoError(t, err)
	require.Len(t, created, 2, "duplicate student ids create one assignment")

	for _, a := range created {
		assert.Equal(t, "Read chapter 3", a.Title)
		assert.Equal(t, assignment.StatusAssigned, a.Status)
		assert.Equal(t, assignment.PriorityHigh, a.Priority)
		assert.Equal(t, "HOMEWORK", a.Category.String)
		assert.True(t, a.DueDate.Time.Equal(testutil.Date(t, "2024-03-20")))
		assert.True(t, a.AssignedDate.Equal(now))
	}
	after := f.env.DB.Counts()
	assert.Equal(t, before["logs"]+2, after["logs"])
	assert.Equal(t, before["notifications"]+1, after["notifications"], "only linked students are notified")

	notifs := f.notifications(t, f.stdUser)
	require.Len(t, notifs, 1)
	assert.Equal(t, activity.NotificationAssignmentCreated, notifs[0].Type)
}

func TestService_Create_errors(t *testing.T) {
	f := setup(t)

	_, err := f.env.Assignments.Create(f.ctx, f.stdAct, assignment.NewAssignment{StudentIDs: []string{f.std.ID}, Title: "Nope"})
	assert.IsType(t, &core.PermissionError{}, err)

	other := testutil.CreateFamily(t, f.env.Repos.Users, "Roe", "rick@roe.test")
	stranger := testutil.CreateStudent(t, f.env.Repos.Students, other.ID, "Stranger", "")
	before := f.env.DB.Counts()

	_, err = f.env.Assignments.Create(f.ctx, f.parentAct, assignment.NewAssignment{
		StudentIDs: []string{f.std.ID, stranger.ID},
		Title:      "Cross family",
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "student_ids[1]", vErr.Fields[0].Field)
	assert.Equal(t, before, f.env.DB.Counts(), "nothing written")
}

func TestService_UpdateStatus_complete(t *testing.T) {
	f := setup(t)
	require.Equal(t, 0, f.goalCount(t))
	logsBefore := f.env.DB.Counts()["logs"]

	a, err := f.env.Assignments.UpdateStatus(f.ctx, f.stdAct, f.assigned.ID, assignment.StatusUpdate{
		Status:     assignment.StatusCompleted,
		GradeLabel: testutil.StrPtr("A"),
	})
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCompleted, a.Status)
	assert.True(t, a.CompletedDate.Valid)
	assert.True(t, a.CompletedDate.Time.Equal(now))
	assert.Equal(t, "A", a.GradeLabel.String)
	assert.Equal(t, 95.0, a.GradeValue.Float64)

	assert.Equal(t, logsBefore+1, f.env.DB.Counts()["logs"], "exactly one activity entry")
	history, err := f.env.Assignments.History(f.ctx, f.parentAct, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, activity.ActionStatusChanged, history[0].Action)
	assert.Equal(t, "ASSIGNED → COMPLETED", history[0].Details)

	// every active parent, nobody else
	for _, parent := range []user.User{f.fam.Parent, f.parent2} {
		notifs := f.notifications(t, parent)
		require.Len(t, notifs, 1, parent.Email)
		assert.Equal(t, activity.NotificationAssignmentCompleted, notifs[0].Type)
		assert.Equal(t, a.ID, notifs[0].AssignmentID.String)
		assert.Equal(t, "Ada", notifs[0].ActorName)
	}
	assert.Empty(t, f.notifications(t, f.stdUser))
	assert.Len(t, f.env.Mailer.SentMessages(), 2)

	assert.Equal(t, 1, f.goalCount(t))
}

func TestService_UpdateStatus_return(t *testing.T) {
	f := setup(t)
	_, err := f.env.Assignments.UpdateStatus(f.ctx, f.stdAct, f.assigned.ID, assignment.StatusUpdate{Status: assignment.StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, 1, f.goalCount(t))

	t.Run("feedback is required", func(t *testing.T) {
		before := f.env.DB.Counts()
		_, err := f.env.Assignments.UpdateStatus(f.ctx, f.parentAct, f.assigned.ID, assignment.StatusUpdate{Status: assignment.StatusAssigned})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), "got %v", err)
		assert.Equal(t, "comment", vErr.Fields[0].Field)
		assert.Equal(t, before, f.env.DB.Counts())
	})

	t.Run("no grade on return", func(t *testing.T) {
		_, err := f.env.Assignments.UpdateStatus(f.ctx, f.parentAct, f.assigned.ID, assignment.StatusUpdate{
			Status:     assignment.StatusAssigned,
			Comment:    testutil.StrPtr("Show your work"),
			GradeValue: testutil.FloatPtr(70),
		})
		assert.IsType(t, &core.ValidationError{}, err)
	})

	t.Run("returned with feedback", func(t *testing.T) {
		a, err := f.env.Assignments.UpdateStatus(f.ctx, f.parentAct, f.assigned.ID, assignment.StatusUpdate{
			Status:  assignment.StatusAssigned,
			Comment: testutil.StrPtr("Show your work"),
		})
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusAssigned, a.Status)
		assert.False(t, a.CompletedDate.Valid)

		comments, err := f.env.Assignments.Comments(f.ctx, f.stdAct, a.ID)
		require.NoError(t, err)
		require.Len(t, comments, 1)
		assert.Equal(t, "Show your work", comments[0].Body)
		assert.Equal(t, f.fam.Parent.ID, comments[0].AuthorID)

		notifs := f.notifications(t, f.stdUser)
		require.Len(t, notifs, 1)
		assert.Equal(t, activity.NotificationAssignmentReturned, notifs[0].Type)

		assert.Equal(t, 0, f.goalCount(t))
	})
}

func TestService_UpdateStatus_rejected(t *testing.T) {
	f := setup(t)
	other := testutil.CreateAssignment(t, f.env.Repos.Assignments, assignment.Assignment{
		FamilyID:  f.fam.ID,
		StudentID: f.unlinked.ID,
	})
	legacy := testutil.CreateAssignment(t, f.env.Repos.Assignments, assignment.Assignment{
		FamilyID:  f.fam.ID,
		StudentID: f.std.ID,
		Status:    assignment.StatusSubmitted,
	})

	tests := []struct {
		name  string
		actor core.Actor
		id    string
		to    assignment.Status
		check func(t *testing.T, err error)
	}{
		{
			name: "not your assignment", actor: f.stdAct, id: other.ID, to: assignment.StatusCompleted,
			check: func(t *testing.T, err error) { assert.IsType(t, &core.PermissionError{}, err) },
		},
		{
			name: "parents do not complete", actor: f.parentAct, id: f.assigned.ID, to: assignment.StatusCompleted,
			check: func(t *testing.T, err error) {
				tErr, ok := err.(*assignment.TransitionError)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, assignment.ReasonRoleNotPermitted, tErr.Reason)
			},
		},
		{
			name: "unknown current status", actor: f.stdAct, id: legacy.ID, to: assignment.StatusCompleted,
			check: func(t *testing.T, err error) {
				tErr, ok := err.(*assignment.TransitionError)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, assignment.ReasonUnknownStatus, tErr.Reason)
			},
		},
		{
			name: "other family", actor: testutil.CreateFamily(t, f.env.Repos.Users, "Roe", "rick@roe.test").ParentActor(),
			id: f.assigned.ID, to: assignment.StatusAssigned,
			check: func(t *testing.T, err error) { assert.True(t, core.IsNotFound(err), "got %v", err) },
		},
	}
	before := f.env.DB.Counts()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.Assignments.UpdateStatus(f.ctx, tt.actor, tt.id, assignment.StatusUpdate{Status: tt.to})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
	assert.Equal(t, before, f.env.DB.Counts(), "nothing written")

	a, err := f.env.Repos.Assignments.GetAssignment(f.ctx, f.fam.ID, f.assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusAssigned, a.Status)
}

func TestService_UpdateStatus_notificationFailure(t *testing.T) {
	f := setup(t)
	f.env.DB.FailNextWrite = errors.New("connection reset")

	_, err := f.env.Assignments.UpdateStatus(f.ctx, f.stdAct, f.assigned.ID, assignment.StatusUpdate{Status: assignment.StatusCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, f.notifications(t, f.fam.Parent))
}

func TestService_Grade(t *testing.T) {
	f := setup(t)

	_, err := f.env.Assignments.Grade(f.ctx, f.parentAct, f.assigned.ID, assignment.GradeInput{GradeValue: testutil.FloatPtr(84)})
	assert.IsType(t, &core.ValidationError{}, err, "only completed work is graded")

	_, err = f.env.Assignments.UpdateStatus(f.ctx, f.stdAct, f.assigned.ID, assignment.StatusUpdate{Status: assignment.StatusCompleted})
	require.NoError(t, err)

	_, err = f.env.Assignments.Grade(f.ctx, f.stdAct, f.assigned.ID, assignment.GradeInput{GradeValue: testutil.FloatPtr(100)})
	assert.IsType(t, &core.PermissionError{}, err)

	a, err := f.env.Assignments.Grade(f.ctx, f.parentAct, f.assigned.ID, assignment.GradeInput{
		GradeValue: testutil.FloatPtr(84),
		Comment:    testutil.StrPtr("Nice"),
	})
	require.NoError(t, err)
	assert.Equal(t, "B", a.GradeLabel.String)
	assert.Equal(t, 84.0, a.GradeValue.Float64)

	notifs := f.notifications(t, f.stdUser)
	require.Len(t, notifs, 1)
	assert.Equal(t, activity.NotificationAssignmentGraded, notifs[0].Type)
	assert.Contains(t, notifs[0].Message, "graded B")
}

func TestService_AddComment(t *testing.T) {
	f := setup(t)

	nc := assignment.NewComment{Body: "  I need help with question 4 "}
	require.NoError(t, nc.Validate(f.env.Validate))
	cmt, err := f.env.Assignments.AddComment(f.ctx, f.stdAct, f.assigned.ID, nc)
	require.NoError(t, err)
	assert.Equal(t, "I need help with question 4", cmt.Body)
	assert.Equal(t, "Ada", cmt.AuthorName)

	for _, parent := range []user.User{f.fam.Parent, f.parent2} {
		notifs := f.notifications(t, parent)
		require.Len(t, notifs, 1)
		assert.Equal(t, activity.NotificationCommentAdded, notifs[0].Type)
	}

	_, err = f.env.Assignments.AddComment(f.ctx, f.parentAct, f.assigned.ID, assignment.NewComment{Body: "Look at the example"})
	require.NoError(t, err)
	assert.Len(t, f.notifications(t, f.stdUser), 1)
}

func TestService_List(t *testing.T) {
	f := setup(t)
	testutil.CreateAssignment(t, f.env.Repos.Assignments, assignment.Assignment{
		FamilyID:  f.fam.ID,
		StudentID: f.unlinked.ID,
		Title:     "Spelling list",
	})

	all, err := f.env.Assignments.List(f.ctx, f.parentAct, assignment.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.env.Assignments.List(f.ctx, f.stdAct, assignment.QueryFilter{StudentID: f.unlinked.ID}, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1, "students only see their own work")
	assert.Equal(t, f.assigned.ID, mine[0].ID)

	found, err := f.env.Assignments.List(f.ctx, f.parentAct, assignment.QueryFilter{Search: " SPELL "}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Spelling list", found[0].Title)

	ordered, err := f.env.Assignments.List(f.ctx, f.parentAct, assignment.QueryFilter{},
		[]core.DBOrdering{{Field: "title", Ascending: false}, {Field: "bogus", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "Spelling list", ordered[0].Title)

	_, err = f.env.Assignments.Get(f.ctx, f.stdAct, ordered[0].ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Update(t *testing.T) {
	f := setup(t)
	math := testutil.CreateSubject(t, f.env.Repos.Subjects, f.fam.ID, "Math")

	ua := assignment.UpdateAssignment{
		Title:     testutil.StrPtr("Fractions, part 2"),
		SubjectID: testutil.StrPtr(math.ID),
		DueDate:   testutil.StrPtr("2024-03-22"),
	}
	require.NoError(t, ua.Validate(f.env.Validate))
	a, err := f.env.Assignments.Update(f.ctx, f.parentAct, f.assigned.ID, ua)
	require.NoError(t, err)
	assert.Equal(t, "Fractions, part 2", a.Title)
	assert.Equal(t, math.ID, a.SubjectID.String)
	assert.True(t, a.DueDate.Valid)

	ua = assignment.UpdateAssignment{SubjectID: testutil.StrPtr(""), DueDate: testutil.StrPtr(" ")}
	require.NoError(t, ua.Validate(f.env.Validate))
	a, err = f.env.Assignments.Update(f.ctx, f.parentAct, f.assigned.ID, ua)
	require.NoError(t, err)
	assert.False(t, a.SubjectID.Valid)
	assert.False(t, a.DueDate.Valid)
	assert.Equal(t, "Fractions, part 2", a.Title)

	_, err = f.env.Assignments.Update(f.ctx, f.stdAct, f.assigned.ID, assignment.UpdateAssignment{})
	assert.IsType(t, &core.PermissionError{}, err)
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	_, err := f.env.Assignments.UpdateStatus(f.ctx, f.stdAct, f.assigned.ID, assignment.StatusUpdate{
		Status:  assignment.StatusCompleted,
		Comment: testutil.StrPtr("Done!"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.goalCount(t))
	require.Equal(t, 1, f.env.DB.Counts()["comments"])

	require.NoError(t, f.env.Assignments.Delete(f.ctx, f.parentAct, f.assigned.ID))

	counts := f.env.DB.Counts()
	assert.Equal(t, 0, counts["assignments"])
	assert.Equal(t, 0, counts["comments"])
	assert.Equal(t, 1, counts["logs"], "only the deletion entry remains")
	assert.Equal(t, 0, f.goalCount(t))

	notifs := f.notifications(t, f.fam.Parent)
	require.Len(t, notifs, 1)
	assert.False(t, notifs[0].AssignmentID.Valid, "notifications outlive their assignment")

	assert.True(t, core.IsNotFound(f.env.Assignments.Delete(f.ctx, f.parentAct, f.assigned.ID)))
}
