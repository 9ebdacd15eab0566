// Package activity records comments, the activity log and notifications.
// Records are append-only; notifications can only be marked read.
package activity

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type NotificationType string

const (
	NotificationAssignmentCreated   NotificationType = "ASSIGNMENT_CREATED"
	NotificationAssignmentCompleted NotificationType = "ASSIGNMENT_COMPLETED"
	NotificationAssignmentReturned  NotificationType = "ASSIGNMENT_RETURNED"
	NotificationAssignmentGraded    NotificationType = "ASSIGNMENT_GRADED"
	NotificationCommentAdded        NotificationType = "COMMENT_ADDED"
)

// Actions recorded in the activity log.
const (
	ActionCreated       = "CREATED"
	ActionUpdated       = "UPDATED"
	ActionDeleted       = "DELETED"
	ActionStatusChanged = "STATUS_CHANGED"
	ActionGraded        = "GRADED"
	ActionCommented     = "COMMENTED"
	ActionImported      = "IMPORTED"
)

type Comment struct {
	ID           string    `json:"id"`
	FamilyID     string    `json:"family_id"`
	AssignmentID string    `json:"assignment_id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

type Log struct {
	ID           string      `json:"id"`
	FamilyID     string      `json:"family_id"`
	AssignmentID null.String `json:"assignment_id"`
	ActorID      string      `json:"actor_id"`
	ActorName    string      `json:"actor_name"`
	Action       string      `json:"action"`
	Details      string      `json:"details"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
}

type Notification struct {
	ID           string           `json:"id"`
	FamilyID     string           `json:"family_id"`
	RecipientID  string           `json:"recipient_id"`
	Type         NotificationType `json:"type"`
	Message      string           `json:"message"`
	AssignmentID null.String      `json:"assignment_id"`
	ActorName    string           `json:"actor_name"`
	Read         bool             `json:"read"`
	CreatedAt    time.Time        `json:"created_at"` // UTC
}

// NewNotification is what the dispatcher needs to notify one user.
type NewNotification struct {
	Type         NotificationType
	Message      string
	RecipientID  string
	FamilyID     string
	AssignmentID *string
	ActorName    string
}

// NewLog is what the dispatcher needs to append one activity log entry.
type NewLog struct {
	FamilyID     string
	AssignmentID *string
	ActorID      string
	ActorName    string
	Action       string
	Details      string
}

type NewComment struct {
	FamilyID     string
	AssignmentID string
	AuthorID     string
	AuthorName   string
	Body         string
}

type LogFilter struct {
	FamilyID     string
	AssignmentID string
	Limit        int
}

type NotificationFilter struct {
	FamilyID    string
	RecipientID string
	UnreadOnly  bool
	Limit       int
}
