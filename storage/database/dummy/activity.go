package dummydb

import (
	"context"

	"github.com/trezcool/homeschool/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateComment(_ context.Context, cmt activity.Comment) (activity.Comment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cmt.ID = newID()
	repo.db.comments = append(repo.db.comments, cmt)
	return cmt, nil
}

// QueryComments returns the oldest comments first.
func (repo *activityRepository) QueryComments(_ context.Context, familyID, assignmentID string) ([]activity.Comment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	comments := make([]activity.Comment, 0)
	for _, cmt := range repo.db.comments {
		if cmt.FamilyID == familyID && cmt.AssignmentID == assignmentID {
			comments = append(comments, cmt)
		}
	}
	return comments, nil
}

func (repo *activityRepository) CreateLog(_ context.Context, entry activity.Log) (activity.Log, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	entry.ID = newID()
	repo.db.logs = append(repo.db.logs, entry)
	return entry, nil
}

func (repo *activityRepository) QueryLogs(_ context.Context, filter activity.LogFilter) ([]activity.Log, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := make([]activity.Log, 0)
	for i := len(repo.db.logs) - 1; i >= 0; i-- { // newest first
		l := repo.db.logs[i]
		if l.FamilyID != filter.FamilyID || (filter.AssignmentID != "" && l.AssignmentID.String != filter.AssignmentID) {
			continue
		}
		logs = append(logs, l)
		if filter.Limit > 0 && len(logs) == filter.Limit {
			break
		}
	}
	return logs, nil
}

func (repo *activityRepository) CreateNotifications(_ context.Context, notifs ...activity.Notification) ([]activity.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return nil, err
	}
	created := make([]activity.Notification, 0, len(notifs))
	for _, n := range notifs {
		n := n
		n.ID = newID()
		repo.db.notifications = append(repo.db.notifications, &n)
		created = append(created, n)
	}
	return created, nil
}

func (repo *activityRepository) QueryNotifications(_ context.Context, filter activity.NotificationFilter) ([]activity.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notifs := make([]activity.Notification, 0)
	for i := len(repo.db.notifications) - 1; i >= 0; i-- { // newest first
		n := repo.db.notifications[i]
		if n.FamilyID != filter.FamilyID || n.RecipientID != filter.RecipientID || (filter.UnreadOnly && n.Read) {
			continue
		}
		notifs = append(notifs, *n)
		if filter.Limit > 0 && len(notifs) == filter.Limit {
			break
		}
	}
	return notifs, nil
}

func (repo *activityRepository) MarkNotificationsRead(_ context.Context, familyID, recipientID string, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var count int
	for _, n := range repo.db.notifications {
		if n.FamilyID != familyID || n.RecipientID != recipientID {
			continue
		}
		if (len(ids) > 0 && !wanted[n.ID]) || (len(ids) == 0 && n.Read) {
			continue
		}
		n.Read = true
		count++
	}
	return count, nil
}
