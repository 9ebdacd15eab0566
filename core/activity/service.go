package activity

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/user"
)

var notificationSubjects = map[NotificationType]string{
	NotificationAssignmentCreated:   "New assignment",
	NotificationAssignmentCompleted: "Assignment completed",
	NotificationAssignmentReturned:  "Assignment returned for revision",
	NotificationAssignmentGraded:    "Assignment graded",
	NotificationCommentAdded:        "New comment",
}

type (
	Repository interface {
		CreateComment(ctx context.Context, cmt Comment) (Comment, error)
		QueryComments(ctx context.Context, familyID, assignmentID string) ([]Comment, error)
		CreateLog(ctx context.Context, entry Log) (Log, error)
		// QueryLogs returns the newest entries first.
		QueryLogs(ctx context.Context, filter LogFilter) ([]Log, error)
		// CreateNotifications writes all notifications in one batch.
		CreateNotifications(ctx context.Context, notifs ...Notification) ([]Notification, error)
		// QueryNotifications returns the newest notifications first.
		QueryNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
		// MarkNotificationsRead marks the given notifications of the recipient read and returns how many matched.
		// When no id is given, it marks all unread ones and returns how many changed.
		MarkNotificationsRead(ctx context.Context, familyID, recipientID string, ids ...string) (int, error)
	}

	// UserGetter resolves notification recipients for emails.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Service persists side effects synchronously, inside the request that triggered them.
	// Any failure is returned to the caller.
	Service struct {
		repo    Repository
		users   UserGetter
		mailSvc core.EmailService // optional
		logger  core.Logger
	}
)

// NewService returns the activity Service. Notification emails are sent only when mailSvc is not nil.
func NewService(repo Repository, users UserGetter, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{repo: repo, users: users, mailSvc: mailSvc, logger: logger}
}

// Notify persists one notification.
func (svc *Service) Notify(ctx context.Context, nn NewNotification) error {
	return svc.NotifyMany(ctx, nn)
}

// NotifyMany persists many notifications in one batch.
func (svc *Service) NotifyMany(ctx context.Context, nns ...NewNotification) error {
	if len(nns) == 0 {
		return nil
	}
	now := core.NowFunc()
	notifs := make([]Notification, 0, len(nns))
	for _, nn := range nns {
		notifs = append(notifs, Notification{
			FamilyID:     nn.FamilyID,
			RecipientID:  nn.RecipientID,
			Type:         nn.Type,
			Message:      nn.Message,
			AssignmentID: null.StringFromPtr(nn.AssignmentID),
			ActorName:    nn.ActorName,
			CreatedAt:    now,
		})
	}
	created, err := svc.repo.CreateNotifications(ctx, notifs...)
	if err != nil {
		return err
	}
	svc.sendEmails(ctx, created)
	return nil
}

// sendEmails is best effort: the notifications are already persisted.
func (svc *Service) sendEmails(ctx context.Context, notifs []Notification) {
	if svc.mailSvc == nil {
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(notifs))
	for _, n := range notifs {
		usr, err := svc.users.GetByID(ctx, n.RecipientID)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("notification email: finding recipient %s: %v", n.RecipientID, err), err)
			continue
		}
		if !usr.IsActive || usr.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      notificationSubjects[n.Type],
			TemplateName: "notification",
			TemplateData: map[string]interface{}{
				"RecipientName": usr.Name,
				"Message":       n.Message,
				"AssignmentID":  n.AssignmentID.String,
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

// Log appends one activity log entry.
func (svc *Service) Log(ctx context.Context, nl NewLog) error {
	_, err := svc.repo.CreateLog(ctx, Log{
		FamilyID:     nl.FamilyID,
		AssignmentID: null.StringFromPtr(nl.AssignmentID),
		ActorID:      nl.ActorID,
		ActorName:    nl.ActorName,
		Action:       nl.Action,
		Details:      nl.Details,
		CreatedAt:    core.NowFunc(),
	})
	return err
}

// AddComment appends a comment to an assignment. Access checks are the caller's.
func (svc *Service) AddComment(ctx context.Context, nc NewComment) (Comment, error) {
	return svc.repo.CreateComment(ctx, Comment{
		FamilyID:     nc.FamilyID,
		AssignmentID: nc.AssignmentID,
		AuthorID:     nc.AuthorID,
		AuthorName:   nc.AuthorName,
		Body:         nc.Body,
		CreatedAt:    core.NowFunc(),
	})
}

func (svc *Service) Comments(ctx context.Context, familyID, assignmentID string) ([]Comment, error) {
	return svc.repo.QueryComments(ctx, familyID, assignmentID)
}

func (svc *Service) Logs(ctx context.Context, filter LogFilter) ([]Log, error) {
	return svc.repo.QueryLogs(ctx, filter)
}

// RecentActivity returns the latest activity of the actor's family. Parents only.
func (svc *Service) RecentActivity(ctx context.Context, actor core.Actor, limit int) ([]Log, error) {
	if err := actor.RequireManager(); err != nil {
		return nil, err
	}
	return svc.repo.QueryLogs(ctx, LogFilter{FamilyID: actor.FamilyID, Limit: limit})
}

// Notifications returns the notifications of the actor.
func (svc *Service) Notifications(ctx context.Context, actor core.Actor, unreadOnly bool, limit int) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, NotificationFilter{
		FamilyID:    actor.FamilyID,
		RecipientID: actor.UserID,
		UnreadOnly:  unreadOnly,
		Limit:       limit,
	})
}

// MarkRead marks one notification of the actor read. Marking it again is a no-op.
func (svc *Service) MarkRead(ctx context.Context, actor core.Actor, id string) error {
	n, err := svc.repo.MarkNotificationsRead(ctx, actor.FamilyID, actor.UserID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NewNotFoundError("notification")
	}
	return nil
}

// MarkAllRead marks every notification of the actor read and returns how many changed.
func (svc *Service) MarkAllRead(ctx context.Context, actor core.Actor) (int, error) {
	return svc.repo.MarkNotificationsRead(ctx, actor.FamilyID, actor.UserID)
}
