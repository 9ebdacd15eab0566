package assignment

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
	"github.com/trezcool/homeschool/core/user"
)

var errNotYourAssignment = core.NewPermissionError("not your assignment")

type (
	Repository interface {
		// CreateAssignments writes all assignments in one transaction.
		CreateAssignments(ctx context.Context, assignments ...Assignment) ([]Assignment, error)
		GetAssignment(ctx context.Context, familyID, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// DeleteAssignment also deletes the comments and activity of the assignment.
		DeleteAssignment(ctx context.Context, familyID, id string) error
	}

	// Dispatcher records the side effects of assignment changes.
	Dispatcher interface {
		NotifyMany(ctx context.Context, nns ...activity.NewNotification) error
		Log(ctx context.Context, nl activity.NewLog) error
		AddComment(ctx context.Context, nc activity.NewComment) (activity.Comment, error)
		Comments(ctx context.Context, familyID, assignmentID string) ([]activity.Comment, error)
		Logs(ctx context.Context, filter activity.LogFilter) ([]activity.Log, error)
	}

	// GoalRecalculator re-derives the goals an assignment may count toward.
	GoalRecalculator interface {
		RecalculateForAssignment(ctx context.Context, studentID, familyID string, subjectID *string) error
	}

	ParentLister interface {
		Parents(ctx context.Context, familyID string) ([]user.User, error)
	}

	Deps struct {
		Students   student.Repository
		Subjects   subject.Repository
		Parents    ParentLister
		Dispatcher Dispatcher
		Goals      GoalRecalculator
		Logger     core.Logger
	}

	Service struct {
		repo Repository
		Deps
	}
)

func NewService(repo Repository, deps Deps) *Service {
	return &Service{repo: repo, Deps: deps}
}

// Create adds one assignment per student, all or none.
func (svc *Service) Create(ctx context.Context, actor core.Actor, na NewAssignment) ([]Assignment, error) {
	if err := actor.RequireManager(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(na.StudentIDs))
	for i, id := range na.StudentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := svc.Students.GetStudent(ctx, actor.FamilyID, id); err != nil {
			if core.IsNotFound(err) {
				return nil, core.NewValidationError(err, core.FieldError{Field: fmt.Sprintf("student_ids[%d]", i), Error: "student not found"})
			}
			return nil, errors.Wrap(err, "getting student")
		}
	}
	if na.SubjectID != nil {
		if err := svc.checkSubject(ctx, actor.FamilyID, *na.SubjectID); err != nil {
			return nil, err
		}
	}

	priority, _ := ParsePriority(na.Priority)
	var category null.String
	if na.Category != nil {
		cat, _ := ParseCategoryString(*na.Category)
		category = null.StringFrom(cat)
	}
	var dueDate null.Time
	if na.DueDate != nil {
		d, err := core.ParseDate(*na.DueDate)
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: "due_date", Error: "invalid date"})
		}
		dueDate = null.TimeFrom(d)
	}

	now := core.NowFunc()
	assignments := make([]Assignment, 0, len(seen))
	added := make(map[string]bool, len(seen))
	for _, id := range na.StudentIDs {
		if added[id] {
			continue
		}
		added[id] = true
		assignments = append(assignments, Assignment{
			FamilyID:         actor.FamilyID,
			StudentID:        id,
			SubjectID:        null.StringFromPtr(na.SubjectID),
			Title:            na.Title,
			Description:      null.StringFromPtr(na.Description),
			Status:           StatusAssigned,
			Priority:         priority,
			Category:         category,
			DueDate:          dueDate,
			AssignedDate:     now,
			EstimatedMinutes: null.IntFromPtr(na.EstimatedMinutes),
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	created, err := svc.repo.CreateAssignments(ctx, assignments...)
	if err != nil {
		return nil, errors.Wrap(err, "creating assignments")
	}
	if err = svc.afterCreate(ctx, actor, created, activity.ActionCreated); err != nil {
		return nil, err
	}
	return created, nil
}

// afterCreate logs every new assignment and notifies the students with a login.
func (svc *Service) afterCreate(ctx context.Context, actor core.Actor, created []Assignment, action string) error {
	students := make(map[string]student.Student)
	notifs := make([]activity.NewNotification, 0, len(created))
	for _, a := range created {
		verb := "assigned"
		if action == activity.ActionImported {
			verb = "imported"
		}
		if err := svc.log(ctx, actor, a, action, fmt.Sprintf("%s %s %q", actor.Name, verb, a.Title)); err != nil {
			return err
		}
		std, ok := students[a.StudentID]
		if !ok {
			var err error
			if std, err = svc.Students.GetStudent(ctx, a.FamilyID, a.StudentID); err != nil {
				return errors.Wrap(err, "getting student")
			}
			students[a.StudentID] = std
		}
		if std.UserID.Valid {
			notifs = append(notifs, svc.notification(actor, a, std.UserID.String, activity.NotificationAssignmentCreated,
				fmt.Sprintf("New assignment: %s", a.Title)))
		}
	}
	return errors.Wrap(svc.Dispatcher.NotifyMany(ctx, notifs...), "notifying students")
}

func (svc *Service) checkSubject(ctx context.Context, familyID, subjectID string) error {
	if _, err := svc.Subjects.GetSubject(ctx, familyID, subjectID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: "subject not found"})
		}
		return errors.Wrap(err, "getting subject")
	}
	return nil
}

// studentOf returns the profile linked to a student actor.
func (svc *Service) studentOf(ctx context.Context, actor core.Actor) (student.Student, error) {
	std, err := svc.Students.GetStudentByUser(ctx, actor.FamilyID, actor.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			return student.Student{}, errNotYourAssignment
		}
		return student.Student{}, errors.Wrap(err, "getting student profile")
	}
	return std, nil
}

// Get returns an assignment of the actor's family. Students only see their own assignments.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, actor.FamilyID, id)
	if err != nil {
		return Assignment{}, err
	}
	if actor.Role == core.RoleStudent {
		std, err := svc.studentOf(ctx, actor)
		if err != nil || std.ID != a.StudentID {
			return Assignment{}, ErrNotFound
		}
	}
	return a, nil
}

// List returns the assignments of the actor's family matching filter.
// Students only see their own assignments.
func (svc *Service) List(ctx context.Context, actor core.Actor, filter QueryFilter, orderings []core.DBOrdering) ([]Assignment, error) {
	filter.FamilyID = actor.FamilyID
	filter.Search = core.CleanString(filter.Search)
	if actor.Role == core.RoleStudent {
		std, err := svc.studentOf(ctx, actor)
		if err != nil {
			if err == errNotYourAssignment {
				return []Assignment{}, nil
			}
			return nil, err
		}
		filter.StudentID = std.ID
	}
	return svc.repo.QueryAssignments(ctx, filter, core.CleanOrderings(orderings, OrderingFields))
}

// Update edits an assignment. Status and grade have their own operations.
func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ua UpdateAssignment) (Assignment, error) {
	if err := actor.RequireManager(); err != nil {
		return Assignment{}, err
	}
	a, err := svc.repo.GetAssignment(ctx, actor.FamilyID, id)
	if err != nil {
		return Assignment{}, err
	}
	oldSubject := a.SubjectID

	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.Description != nil {
		a.Description = null.NewString(*ua.Description, *ua.Description != "")
	}
	switch {
	case ua.clearSubject:
		a.SubjectID = null.String{}
	case ua.SubjectID != nil:
		if err = svc.checkSubject(ctx, actor.FamilyID, *ua.SubjectID); err != nil {
			return Assignment{}, err
		}
		a.SubjectID = null.StringFrom(*ua.SubjectID)
	}
	if ua.Priority != nil {
		a.Priority, _ = ParsePriority(*ua.Priority)
	}
	switch {
	case ua.clearCategory:
		a.Category = null.String{}
	case ua.Category != nil:
		cat, _ := ParseCategoryString(*ua.Category)
		a.Category = null.StringFrom(cat)
	}
	switch {
	case ua.clearDueDate:
		a.DueDate = null.Time{}
	case ua.DueDate != nil:
		d, err := core.ParseDate(*ua.DueDate)
		if err != nil {
			return Assignment{}, core.NewValidationError(err, core.FieldError{Field: "due_date", Error: "invalid date"})
		}
		a.DueDate = null.TimeFrom(d)
	}
	if ua.EstimatedMinutes != nil {
		a.EstimatedMinutes = null.IntFrom(*ua.EstimatedMinutes)
	}
	a.UpdatedAt = core.NowFunc()

	if a, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if err = svc.log(ctx, actor, a, activity.ActionUpdated, fmt.Sprintf("%s edited %q", actor.Name, a.Title)); err != nil {
		return Assignment{}, err
	}
	if a.IsCompleted() && oldSubject != a.SubjectID {
		if err = svc.recalculateGoals(ctx, a.StudentID, a.FamilyID, oldSubject, a.SubjectID); err != nil {
			return Assignment{}, err
		}
	}
	return a, nil
}

// Delete removes an assignment with its comments and activity.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if err := actor.RequireManager(); err != nil {
		return err
	}
	a, err := svc.repo.GetAssignment(ctx, actor.FamilyID, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteAssignment(ctx, actor.FamilyID, id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	err = svc.Dispatcher.Log(ctx, activity.NewLog{
		FamilyID:  actor.FamilyID,
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Action:    activity.ActionDeleted,
		Details:   fmt.Sprintf("%s deleted %q", actor.Name, a.Title),
	})
	if err != nil {
		return errors.Wrap(err, "logging activity")
	}
	if a.IsCompleted() {
		return svc.recalculateGoals(ctx, a.StudentID, a.FamilyID, a.SubjectID)
	}
	return nil
}

// UpdateStatus moves an assignment through its lifecycle.
//
// Students complete their own assignments, optionally with a grade; parents return completed work for
// revision with a feedback comment. Every checked failure happens before any write. A successful change
// appends the comment, exactly one activity entry and one round of notifications to the other side,
// and re-derives the goals of the student.
func (svc *Service) UpdateStatus(ctx context.Context, actor core.Actor, id string, su StatusUpdate) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, actor.FamilyID, id)
	if err != nil {
		return Assignment{}, err
	}

	var std student.Student
	if actor.Role == core.RoleStudent {
		if std, err = svc.studentOf(ctx, actor); err != nil {
			return Assignment{}, err
		}
		if std.ID != a.StudentID {
			return Assignment{}, errNotYourAssignment
		}
	}

	if err = checkTransition(a.Status, su.Status, actor.Role); err != nil {
		if tErr, ok := err.(*TransitionError); ok && tErr.Reason == ReasonUnknownStatus {
			svc.Logger.Error(tErr.Error(), err, map[string]interface{}{"assignment_id": a.ID}, actor)
		}
		return Assignment{}, err
	}

	oldStatus := a.Status
	switch su.Status {
	case StatusCompleted:
		label, value, err := resolveGrade(su.GradeLabel, su.GradeValue)
		if err != nil {
			return Assignment{}, err
		}
		a.CompletedDate = null.TimeFrom(core.NowFunc())
		if label.Valid {
			a.GradeLabel, a.GradeValue = label, value
		}
	case StatusAssigned:
		if su.Comment == nil {
			return Assignment{}, core.NewValidationError(nil, core.FieldError{Field: "comment", Error: "feedback is required when returning an assignment"})
		}
		if su.GradeLabel != nil || su.GradeValue != nil {
			return Assignment{}, core.NewValidationError(nil, core.FieldError{Field: "grade_label", Error: "a grade can only be set when completing"})
		}
		a.CompletedDate = null.Time{}
	}
	a.Status = su.Status
	a.UpdatedAt = core.NowFunc()

	if a, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}

	if su.Comment != nil {
		if _, err = svc.addComment(ctx, actor, a, *su.Comment); err != nil {
			return Assignment{}, err
		}
	}
	details := fmt.Sprintf("%s → %s", oldStatus, a.Status)
	if err = svc.log(ctx, actor, a, activity.ActionStatusChanged, details); err != nil {
		return Assignment{}, err
	}
	if err = svc.notifyTransition(ctx, actor, a); err != nil {
		return Assignment{}, err
	}
	if err = svc.recalculateGoals(ctx, a.StudentID, a.FamilyID, a.SubjectID); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (svc *Service) notifyTransition(ctx context.Context, actor core.Actor, a Assignment) error {
	var notifs []activity.NewNotification
	if a.IsCompleted() {
		parents, err := svc.Parents.Parents(ctx, a.FamilyID)
		if err != nil {
			return errors.Wrap(err, "listing parents")
		}
		for _, p := range parents {
			notifs = append(notifs, svc.notification(actor, a, p.ID, activity.NotificationAssignmentCompleted,
				fmt.Sprintf("%s completed %q", actor.Name, a.Title)))
		}
	} else {
		recipient, err := svc.studentUser(ctx, a)
		if err != nil {
			return err
		}
		if recipient != "" {
			notifs = append(notifs, svc.notification(actor, a, recipient, activity.NotificationAssignmentReturned,
				fmt.Sprintf("%s returned %q for revision", actor.Name, a.Title)))
		}
	}
	return errors.Wrap(svc.Dispatcher.NotifyMany(ctx, notifs...), "notifying")
}

// Grade sets the grade of completed work. Parents only.
func (svc *Service) Grade(ctx context.Context, actor core.Actor, id string, gi GradeInput) (Assignment, error) {
	if err := actor.RequireManager(); err != nil {
		return Assignment{}, err
	}
	a, err := svc.repo.GetAssignment(ctx, actor.FamilyID, id)
	if err != nil {
		return Assignment{}, err
	}
	if !a.IsCompleted() {
		return Assignment{}, core.NewValidationError(errors.New("only completed assignments can be graded"))
	}
	label, value, err := resolveGrade(gi.GradeLabel, gi.GradeValue)
	if err != nil {
		return Assignment{}, err
	}
	if !label.Valid {
		return Assignment{}, core.NewValidationError(nil, core.FieldError{Field: "grade_label", Error: requiredWithoutText})
	}
	a.GradeLabel, a.GradeValue = label, value
	a.UpdatedAt = core.NowFunc()

	if a, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if gi.Comment != nil {
		if _, err = svc.addComment(ctx, actor, a, *gi.Comment); err != nil {
			return Assignment{}, err
		}
	}
	details := fmt.Sprintf("%s graded %q: %s (%g)", actor.Name, a.Title, a.GradeLabel.String, a.GradeValue.Float64)
	if err = svc.log(ctx, actor, a, activity.ActionGraded, details); err != nil {
		return Assignment{}, err
	}
	recipient, err := svc.studentUser(ctx, a)
	if err != nil {
		return Assignment{}, err
	}
	if recipient != "" {
		msg := fmt.Sprintf("%q was graded %s", a.Title, a.GradeLabel.String)
		n := svc.notification(actor, a, recipient, activity.NotificationAssignmentGraded, msg)
		if err = svc.Dispatcher.NotifyMany(ctx, n); err != nil {
			return Assignment{}, errors.Wrap(err, "notifying student")
		}
	}
	return a, nil
}

// AddComment appends a comment to an assignment and notifies the other side.
func (svc *Service) AddComment(ctx context.Context, actor core.Actor, id string, nc NewComment) (activity.Comment, error) {
	a, err := svc.Get(ctx, actor, id)
	if err != nil {
		return activity.Comment{}, err
	}
	cmt, err := svc.addComment(ctx, actor, a, nc.Body)
	if err != nil {
		return activity.Comment{}, err
	}

	var notifs []activity.NewNotification
	msg := fmt.Sprintf("%s commented on %q", actor.Name, a.Title)
	if actor.Role == core.RoleStudent {
		parents, err := svc.Parents.Parents(ctx, a.FamilyID)
		if err != nil {
			return activity.Comment{}, errors.Wrap(err, "listing parents")
		}
		for _, p := range parents {
			notifs = append(notifs, svc.notification(actor, a, p.ID, activity.NotificationCommentAdded, msg))
		}
	} else {
		recipient, err := svc.studentUser(ctx, a)
		if err != nil {
			return activity.Comment{}, err
		}
		if recipient != "" && recipient != actor.UserID {
			notifs = append(notifs, svc.notification(actor, a, recipient, activity.NotificationCommentAdded, msg))
		}
	}
	if err = svc.Dispatcher.NotifyMany(ctx, notifs...); err != nil {
		return activity.Comment{}, errors.Wrap(err, "notifying")
	}
	return cmt, nil
}

func (svc *Service) addComment(ctx context.Context, actor core.Actor, a Assignment, body string) (activity.Comment, error) {
	cmt, err := svc.Dispatcher.AddComment(ctx, activity.NewComment{
		FamilyID:     a.FamilyID,
		AssignmentID: a.ID,
		AuthorID:     actor.UserID,
		AuthorName:   actor.Name,
		Body:         body,
	})
	if err != nil {
		return activity.Comment{}, errors.Wrap(err, "adding comment")
	}
	if err = svc.log(ctx, actor, a, activity.ActionCommented, fmt.Sprintf("%s commented on %q", actor.Name, a.Title)); err != nil {
		return activity.Comment{}, err
	}
	return cmt, nil
}

func (svc *Service) Comments(ctx context.Context, actor core.Actor, id string) ([]activity.Comment, error) {
	a, err := svc.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return svc.Dispatcher.Comments(ctx, a.FamilyID, a.ID)
}

// History returns the activity of an assignment, newest first.
func (svc *Service) History(ctx context.Context, actor core.Actor, id string) ([]activity.Log, error) {
	a, err := svc.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return svc.Dispatcher.Logs(ctx, activity.LogFilter{FamilyID: a.FamilyID, AssignmentID: a.ID})
}

// studentUser returns the user linked to the student of a, if any.
func (svc *Service) studentUser(ctx context.Context, a Assignment) (string, error) {
	std, err := svc.Students.GetStudent(ctx, a.FamilyID, a.StudentID)
	if err != nil {
		return "", errors.Wrap(err, "getting student")
	}
	return std.UserID.String, nil
}

func (svc *Service) log(ctx context.Context, actor core.Actor, a Assignment, action, details string) error {
	id := a.ID
	err := svc.Dispatcher.Log(ctx, activity.NewLog{
		FamilyID:     a.FamilyID,
		AssignmentID: &id,
		ActorID:      actor.UserID,
		ActorName:    actor.Name,
		Action:       action,
		Details:      details,
	})
	return errors.Wrap(err, "logging activity")
}

func (svc *Service) notification(actor core.Actor, a Assignment, recipientID string, typ activity.NotificationType, msg string) activity.NewNotification {
	id := a.ID
	return activity.NewNotification{
		Type:         typ,
		Message:      msg,
		RecipientID:  recipientID,
		FamilyID:     a.FamilyID,
		AssignmentID: &id,
		ActorName:    actor.Name,
	}
}

// recalculateGoals re-derives the student's goals for every given subject. An invalid subject stands
// for work without a subject.
func (svc *Service) recalculateGoals(ctx context.Context, studentID, familyID string, subjects ...null.String) error {
	seen := make(map[null.String]bool, len(subjects))
	for _, sub := range subjects {
		if seen[sub] {
			continue
		}
		seen[sub] = true
		if err := svc.Goals.RecalculateForAssignment(ctx, studentID, familyID, sub.Ptr()); err != nil {
			return errors.Wrap(err, "recalculating goals")
		}
	}
	return nil
}
