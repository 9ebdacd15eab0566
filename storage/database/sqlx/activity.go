package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/activity"
)

const (
	commentColumns      = `id, family_id, assignment_id, author_id, author_name, body, created_at`
	logColumns          = `id, family_id, assignment_id, actor_id, actor_name, action, details, created_at`
	notificationColumns = `id, family_id, recipient_id, type, message, assignment_id, actor_name, is_read AS read, created_at`
)

type activityRepository struct {
	db *sqlx.DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *sqlx.DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateComment(ctx context.Context, cmt activity.Comment) (activity.Comment, error) {
	cmt.ID = newID()
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO comment (`+commentColumns+`)
		VALUES (:id, :family_id, :assignment_id, :author_id, :author_name, :body, :created_at)`, cmt)
	if err != nil {
		return activity.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return cmt, nil
}

func (repo *activityRepository) QueryComments(ctx context.Context, familyID, assignmentID string) ([]activity.Comment, error) {
	comments := make([]activity.Comment, 0)
	if !validID(assignmentID) {
		return comments, nil
	}
	err := repo.db.SelectContext(ctx, &comments,
		`SELECT `+commentColumns+` FROM comment WHERE family_id = $1 AND assignment_id = $2 ORDER BY created_at`,
		familyID, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	return comments, nil
}

func (repo *activityRepository) CreateLog(ctx context.Context, entry activity.Log) (activity.Log, error) {
	entry.ID = newID()
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO activity_log (`+logColumns+`)
		VALUES (:id, :family_id, :assignment_id, :actor_id, :actor_name, :action, :details, :created_at)`, entry)
	if err != nil {
		return activity.Log{}, errors.Wrap(err, "inserting activity log")
	}
	return entry, nil
}

func (repo *activityRepository) QueryLogs(ctx context.Context, filter activity.LogFilter) ([]activity.Log, error) {
	w := new(where)
	w.add("family_id = ?", filter.FamilyID)
	if filter.AssignmentID != "" {
		if !validID(filter.AssignmentID) {
			return []activity.Log{}, nil
		}
		w.add("assignment_id = ?", filter.AssignmentID)
	}
	q := `SELECT ` + logColumns + ` FROM activity_log` + w.String() + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		q += " LIMIT ?"
		w.args = append(w.args, filter.Limit)
	}

	logs := make([]activity.Log, 0)
	if err := repo.db.SelectContext(ctx, &logs, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying activity logs")
	}
	return logs, nil
}

func (repo *activityRepository) CreateNotifications(ctx context.Context, notifs ...activity.Notification) ([]activity.Notification, error) {
	if len(notifs) == 0 {
		return []activity.Notification{}, nil
	}
	created := make([]activity.Notification, 0, len(notifs))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, n := range notifs {
			n.ID = newID()
			_, err := tx.NamedExecContext(ctx, `INSERT INTO notification
				(id, family_id, recipient_id, type, message, assignment_id, actor_name, is_read, created_at)
				VALUES (:id, :family_id, :recipient_id, :type, :message, :assignment_id, :actor_name, :read, :created_at)`, n)
			if err != nil {
				return errors.Wrap(err, "inserting notification")
			}
			created = append(created, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo *activityRepository) QueryNotifications(ctx context.Context, filter activity.NotificationFilter) ([]activity.Notification, error) {
	notifs := make([]activity.Notification, 0)
	if !validID(filter.RecipientID) {
		return notifs, nil
	}
	w := new(where)
	w.add("family_id = ?", filter.FamilyID)
	w.add("recipient_id = ?", filter.RecipientID)
	if filter.UnreadOnly {
		w.add("NOT is_read")
	}
	q := `SELECT ` + notificationColumns + ` FROM notification` + w.String() + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		q += " LIMIT ?"
		w.args = append(w.args, filter.Limit)
	}
	if err := repo.db.SelectContext(ctx, &notifs, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notifs, nil
}

func (repo *activityRepository) MarkNotificationsRead(ctx context.Context, familyID, recipientID string, ids ...string) (int, error) {
	if !validID(recipientID) {
		return 0, nil
	}
	w := new(where)
	w.add("family_id = ?", familyID)
	w.add("recipient_id = ?", recipientID)
	if len(ids) == 0 {
		w.add("NOT is_read")
	} else {
		valid := make([]string, 0, len(ids))
		for _, id := range ids {
			if validID(id) {
				valid = append(valid, id)
			}
		}
		if len(valid) == 0 {
			return 0, nil
		}
		w.add("id = ANY(?)", pq.Array(valid))
	}

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE notification SET is_read = true`+w.String()), w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return int(n), nil
}
