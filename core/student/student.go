// Package student manages the learner profiles of a family.
package student

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("student")

	// ErrHasAssignments is returned by Repository.DeleteStudent while assignments reference the student.
	ErrHasAssignments = errors.New("student still has assignments")
	ErrUserLinked     = errors.New("this user is already linked to a student")
)

// Student is a learner profile, optionally linked to a login-capable user.
type Student struct {
	ID         string      `json:"id"`
	FamilyID   string      `json:"family_id"`
	Name       string      `json:"name"`
	GradeLevel null.String `json:"grade_level"`
	UserID     null.String `json:"user_id"`
	CreatedAt  time.Time   `json:"created_at"` // UTC
	UpdatedAt  time.Time   `json:"updated_at"` // UTC
}

type NewStudent struct {
	Name       string  `json:"name" validate:"required,notblank"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=32"`
	UserID     *string `json:"user_id" validate:"omitempty,uuid"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.GradeLevel = core.CleanStringPtr(ns.GradeLevel)
	ns.UserID = core.CleanStringPtr(ns.UserID)
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// An empty UserID unlinks the user.
type UpdateStudent struct {
	Name       *string `json:"name" validate:"omitempty,notblank"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=32"`
	UserID     *string `json:"user_id" validate:"omitempty,uuid"`
	unlink     bool
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanStringPtr(us.Name)
	if us.GradeLevel != nil {
		gl := core.CleanString(*us.GradeLevel)
		us.GradeLevel = &gl
	}
	if us.UserID != nil && core.CleanString(*us.UserID) == "" {
		us.UserID = nil
		us.unlink = true
	}
	return validate.Struct(us)
}

type Repository interface {
	CreateStudent(ctx context.Context, std Student) (Student, error)
	GetStudent(ctx context.Context, familyID, id string) (Student, error)
	GetStudentByUser(ctx context.Context, familyID, userID string) (Student, error)
	QueryStudents(ctx context.Context, familyID string) ([]Student, error)
	UpdateStudent(ctx context.Context, std Student) (Student, error)
	// DeleteStudent fails with ErrHasAssignments while any assignment references the student.
	DeleteStudent(ctx context.Context, familyID, id string) error
}

// UserGetter finds the user a profile is linked to.
type UserGetter interface {
	GetInFamily(ctx context.Context, actor core.Actor, id string) (user.User, error)
}

type Service struct {
	repo  Repository
	users UserGetter
}

func NewService(repo Repository, users UserGetter) *Service {
	return &Service{repo: repo, users: users}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, ns NewStudent) (Student, error) {
	if err := actor.RequireManager(); err != nil {
		return Student{}, err
	}
	if ns.UserID != nil {
		if err := svc.checkLinkableUser(ctx, actor, *ns.UserID, ""); err != nil {
			return Student{}, err
		}
	}
	now := core.NowFunc()
	return svc.repo.CreateStudent(ctx, Student{
		FamilyID:   actor.FamilyID,
		Name:       ns.Name,
		GradeLevel: null.StringFromPtr(ns.GradeLevel),
		UserID:     null.StringFromPtr(ns.UserID),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// checkLinkableUser makes sure the user is a student of the family not yet linked to another profile.
func (svc *Service) checkLinkableUser(ctx context.Context, actor core.Actor, userID, studentID string) error {
	fldErr := func(msg string) error {
		return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: msg})
	}
	usr, err := svc.users.GetInFamily(ctx, actor, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return fldErr("user not found")
		}
		return err
	}
	if !usr.IsStudent() {
		return fldErr("only student users can be linked")
	}
	linked, err := svc.repo.GetStudentByUser(ctx, actor.FamilyID, userID)
	switch {
	case err == nil && linked.ID != studentID:
		return fldErr(ErrUserLinked.Error())
	case err != nil && !core.IsNotFound(err):
		return err
	}
	return nil
}

// Get returns a student of the actor's family. Students only see their own profile.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Student, error) {
	std, err := svc.repo.GetStudent(ctx, actor.FamilyID, id)
	if err != nil {
		return Student{}, err
	}
	if actor.Role == core.RoleStudent && std.UserID.String != actor.UserID {
		return Student{}, ErrNotFound
	}
	return std, nil
}

// ForUser returns the profile linked to a student actor.
func (svc *Service) ForUser(ctx context.Context, actor core.Actor) (Student, error) {
	return svc.repo.GetStudentByUser(ctx, actor.FamilyID, actor.UserID)
}

func (svc *Service) List(ctx context.Context, actor core.Actor) ([]Student, error) {
	if actor.Role == core.RoleStudent {
		std, err := svc.ForUser(ctx, actor)
		if err != nil {
			if core.IsNotFound(err) {
				return []Student{}, nil
			}
			return nil, err
		}
		return []Student{std}, nil
	}
	return svc.repo.QueryStudents(ctx, actor.FamilyID)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, us UpdateStudent) (Student, error) {
	if err := actor.RequireManager(); err != nil {
		return Student{}, err
	}
	std, err := svc.repo.GetStudent(ctx, actor.FamilyID, id)
	if err != nil {
		return Student{}, err
	}
	if us.Name != nil {
		std.Name = *us.Name
	}
	if us.GradeLevel != nil {
		std.GradeLevel = null.NewString(*us.GradeLevel, *us.GradeLevel != "")
	}
	switch {
	case us.unlink:
		std.UserID = null.String{}
	case us.UserID != nil:
		if err = svc.checkLinkableUser(ctx, actor, *us.UserID, std.ID); err != nil {
			return Student{}, err
		}
		std.UserID = null.StringFrom(*us.UserID)
	}
	std.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateStudent(ctx, std)
}

// Delete removes a student without assignments.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if err := actor.RequireManager(); err != nil {
		return err
	}
	if err := svc.repo.DeleteStudent(ctx, actor.FamilyID, id); err != nil {
		if err == ErrHasAssignments {
			return core.NewValidationError(errors.New("cannot delete a student with assignments; delete the assignments first"))
		}
		return err
	}
	return nil
}

// FindByName returns the student whose name matches case-insensitively, ignoring surrounding whitespace.
func FindByName(students []Student, name string) (Student, bool) {
	name = core.CleanString(name)
	for _, std := range students {
		if strings.EqualFold(std.Name, name) {
			return std, true
		}
	}
	return Student{}, false
}
