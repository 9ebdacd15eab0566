package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/testutil"
)

func TestService_Notify(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	old := testutil.CreateUser(t, env.Repos.Users, fam.ID, "Old", "old@doe.test", core.RoleParent, false)
	assignmentID := "2b0f8a8e-4f5e-4d8e-9d55-7b8d6c3b0d1a"

	err := env.Activity.NotifyMany(ctx,
		activity.NewNotification{
			Type:         activity.NotificationAssignmentCompleted,
			Message:      "Ada completed Long division",
			RecipientID:  fam.Parent.ID,
			FamilyID:     fam.ID,
			AssignmentID: &assignmentID,
			ActorName:    "Ada",
		},
		activity.NewNotification{
			Type:        activity.NotificationAssignmentCompleted,
			Message:     "Ada completed Long division",
			RecipientID: old.ID,
			FamilyID:    fam.ID,
			ActorName:   "Ada",
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, env.DB.Counts()["notifications"])

	sent := env.Mailer.SentMessages()
	require.Len(t, sent, 1, "inactive users get no email")
	assert.Equal(t, "jane@doe.test", sent[0].To[0].Address)
	assert.Equal(t, "Assignment completed", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Ada completed Long division")
	assert.Contains(t, sent[0].TextContent, "/assignments/"+assignmentID)
	assert.Contains(t, sent[0].HTMLContent, "Hi Doe Parent")

	assert.NoError(t, env.Activity.NotifyMany(ctx), "nothing to notify")

	t.Run("storage failure", func(t *testing.T) {
		env.DB.FailNextWrite = errors.New("connection reset")
		err := env.Activity.Notify(ctx, activity.NewNotification{
			Type:        activity.NotificationCommentAdded,
			Message:     "New comment",
			RecipientID: fam.Parent.ID,
			FamilyID:    fam.ID,
		})
		assert.Error(t, err)
		assert.Equal(t, 2, env.DB.Counts()["notifications"])
		assert.Len(t, env.Mailer.SentMessages(), 1)
	})
}

func TestService_emailsDisabled(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	svc := activity.NewService(env.Repos.Activity, env.Users, nil, env.Logger)

	require.NoError(t, svc.Notify(ctx, activity.NewNotification{
		Type:        activity.NotificationAssignmentCreated,
		Message:     "New assignment",
		RecipientID: fam.Parent.ID,
		FamilyID:    fam.ID,
	}))
	assert.Equal(t, 1, env.DB.Counts()["notifications"])
	assert.Empty(t, env.Mailer.SentMessages())
}

func TestService_Notifications(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	parent := fam.ParentActor()
	kid := testutil.CreateUser(t, env.Repos.Users, fam.ID, "Ada", "ada@doe.test", core.RoleStudent, true)

	notify := func(recipientID, msg string) {
		require.NoError(t, env.Activity.Notify(ctx, activity.NewNotification{
			Type:        activity.NotificationAssignmentCompleted,
			Message:     msg,
			RecipientID: recipientID,
			FamilyID:    fam.ID,
		}))
	}
	notify(fam.Parent.ID, "first")
	notify(fam.Parent.ID, "second")
	notify(fam.Parent.ID, "third")
	notify(kid.ID, "for the kid")

	notifs, err := env.Activity.Notifications(ctx, parent, false, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 3)
	assert.Equal(t, "third", notifs[0].Message, "newest first")

	notifs, err = env.Activity.Notifications(ctx, parent, false, 2)
	require.NoError(t, err)
	assert.Len(t, notifs, 2)

	first := notifs[1]
	require.NoError(t, env.Activity.MarkRead(ctx, parent, first.ID))
	require.NoError(t, env.Activity.MarkRead(ctx, parent, first.ID), "marking read twice")

	err = env.Activity.MarkRead(ctx, kid.Actor(), first.ID)
	assert.True(t, core.IsNotFound(err), "other users' notifications are not found")

	unread, err := env.Activity.Notifications(ctx, parent, true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := env.Activity.MarkAllRead(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = env.Activity.MarkAllRead(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unread, err = env.Activity.Notifications(ctx, kid.Actor(), true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 1, "the kid's notification is untouched")
}

func TestService_Logs(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	fam := testutil.CreateFamily(t, env.Repos.Users, "Doe", "jane@doe.test")
	kid := testutil.CreateUser(t, env.Repos.Users, fam.ID, "Ada", "ada@doe.test", core.RoleStudent, true)
	other := testutil.CreateFamily(t, env.Repos.Users, "Roe", "rick@roe.test")
	assignmentID := "2b0f8a8e-4f5e-4d8e-9d55-7b8d6c3b0d1a"

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	for i, action := range []string{activity.ActionCreated, activity.ActionStatusChanged, activity.ActionGraded} {
		testutil.FreezeTime(t, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, env.Activity.Log(ctx, activity.NewLog{
			FamilyID:     fam.ID,
			AssignmentID: &assignmentID,
			ActorID:      fam.Parent.ID,
			ActorName:    fam.Parent.Name,
			Action:       action,
		}))
	}
	require.NoError(t, env.Activity.Log(ctx, activity.NewLog{FamilyID: other.ID, ActorID: other.Parent.ID, Action: activity.ActionCreated}))

	logs, err := env.Activity.RecentActivity(ctx, fam.ParentActor(), 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, activity.ActionGraded, logs[0].Action)
	assert.Equal(t, activity.ActionStatusChanged, logs[1].Action)

	_, err = env.Activity.RecentActivity(ctx, kid.Actor(), 10)
	assert.IsType(t, &core.PermissionError{}, err)

	logs, err = env.Activity.Logs(ctx, activity.LogFilter{FamilyID: fam.ID, AssignmentID: assignmentID})
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	cmt, err := env.Activity.AddComment(ctx, activity.NewComment{
		FamilyID:     fam.ID,
		AssignmentID: assignmentID,
		AuthorID:     kid.ID,
		AuthorName:   kid.Name,
		Body:         "Done!",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, cmt.ID)

	comments, err := env.Activity.Comments(ctx, fam.ID, assignmentID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Done!", comments[0].Body)

	comments, err = env.Activity.Comments(ctx, other.ID, assignmentID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}
