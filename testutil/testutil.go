// Package testutil wires the services on top of dummydb and creates fixtures for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/apps/shared"
	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/report"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
	"github.com/trezcool/homeschool/core/user"
	emailsvc "github.com/trezcool/homeschool/services/email"
	logsvc "github.com/trezcool/homeschool/services/logger"
	dummydb "github.com/trezcool/homeschool/storage/database/dummy"
)

// Password is the password of every fixture user.
const Password = "Sch00l!Days"

type Repos struct {
	Users       user.Repository
	Students    student.Repository
	Subjects    subject.Repository
	Assignments assignment.Repository
	Goals       goal.Repository
	Activity    activity.Repository
}

// Env is a complete application backed by a fresh dummydb.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Mailer     *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *dummydb.DB
	Repos      Repos

	Users       *user.Service
	Students    *student.Service
	Subjects    *subject.Service
	Goals       *goal.Service
	Activity    *activity.Service
	Assignments *assignment.Service
	Reports     *report.Service
}

func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", log.LstdFlags), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

func NewValidator() *validator.Validate {
	validate, _ := NewValidatorAndTranslator()
	return validate
}

// NewValidatorAndTranslator returns a validator with every custom validation registered, and its translator.
func NewValidatorAndTranslator() (*validator.Validate, ut.Translator) {
	return shared.NewValidator()
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	logger := NewLogger()
	db := dummydb.Open()
	validate, translator := NewValidatorAndTranslator()
	env := &Env{
		Conf:       conf,
		Logger:     logger,
		Mailer:     emailsvc.NewConsoleServiceMock(conf, logger),
		Validate:   validate,
		Translator: translator,
		DB:         db,
		Repos: Repos{
			Users:       dummydb.NewUserRepository(db),
			Students:    dummydb.NewStudentRepository(db),
			Subjects:    dummydb.NewSubjectRepository(db),
			Assignments: dummydb.NewAssignmentRepository(db),
			Goals:       dummydb.NewGoalRepository(db),
			Activity:    dummydb.NewActivityRepository(db),
		},
	}
	r := env.Repos
	env.Users = user.NewService(r.Users, env.Mailer, conf)
	env.Students = student.NewService(r.Students, env.Users)
	env.Goals = goal.NewService(r.Goals, r.Students, r.Subjects)
	env.Subjects = subject.NewService(r.Subjects, env.Goals)
	env.Activity = activity.NewService(r.Activity, env.Users, env.Mailer, logger)
	env.Assignments = assignment.NewService(r.Assignments, assignment.Deps{
		Students:   r.Students,
		Subjects:   r.Subjects,
		Parents:    env.Users,
		Dispatcher: env.Activity,
		Goals:      env.Goals,
		Logger:     logger,
	})
	env.Reports = report.NewService(r.Assignments, r.Students, r.Subjects, r.Goals)
	return env
}

// Family is a registered family with one parent.
type Family struct {
	user.Family
	Parent user.User
}

func (f Family) ParentActor() core.Actor { return f.Parent.Actor() }

func CreateFamily(t *testing.T, repo user.Repository, name, parentEmail string) Family {
	t.Helper()

	now := core.NowFunc()
	parent := user.User{
		Name:      name + " Parent",
		Email:     parentEmail,
		Role:      core.RoleParent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := parent.SetPassword(Password); err != nil {
		t.Fatalf("CreateFamily() failed: %v", err)
	}
	fam, parent, err := repo.CreateFamily(context.Background(), user.Family{Name: name, CreatedAt: now, UpdatedAt: now}, parent)
	if err != nil {
		t.Fatalf("CreateFamily() failed: %v", err)
	}
	return Family{Family: fam, Parent: parent}
}

func CreateUser(t *testing.T, repo user.Repository, familyID, name, email string, role core.Role, isActive bool, createdAt ...time.Time) user.User {
	t.Helper()

	tstamp := core.NowFunc()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FamilyID:  familyID,
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent creates a profile, linked to userID unless it is empty.
func CreateStudent(t *testing.T, repo student.Repository, familyID, name, userID string) student.Student {
	t.Helper()

	now := core.NowFunc()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		FamilyID:  familyID,
		Name:      name,
		UserID:    null.NewString(userID, userID != ""),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

// CreateLinkedStudent creates a student user and its profile.
func CreateLinkedStudent(t *testing.T, env *Env, familyID, name, email string) (student.Student, user.User) {
	t.Helper()

	usr := CreateUser(t, env.Repos.Users, familyID, name, email, core.RoleStudent, true)
	return CreateStudent(t, env.Repos.Students, familyID, name, usr.ID), usr
}

func CreateSubject(t *testing.T, repo subject.Repository, familyID, name string, weights ...subject.Weight) subject.Subject {
	t.Helper()

	ctx := context.Background()
	now := core.NowFunc()
	sub, err := repo.CreateSubject(ctx, subject.Subject{FamilyID: familyID, Name: name, Color: "#10B981", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	if len(weights) > 0 {
		if err = repo.ReplaceWeights(ctx, sub.ID, weights); err != nil {
			t.Fatalf("CreateSubject() failed: %v", err)
		}
		if sub, err = repo.GetSubject(ctx, familyID, sub.ID); err != nil {
			t.Fatalf("CreateSubject() failed: %v", err)
		}
	}
	return sub
}

// CreateAssignment writes a directly; missing fields get defaults.
func CreateAssignment(t *testing.T, repo assignment.Repository, a assignment.Assignment) assignment.Assignment {
	t.Helper()

	now := core.NowFunc()
	if a.Status == "" {
		a.Status = assignment.StatusAssigned
	}
	if a.Priority == "" {
		a.Priority = assignment.PriorityMedium
	}
	if a.AssignedDate.IsZero() {
		a.AssignedDate = now
	}
	if a.Title == "" {
		a.Title = "Assignment"
	}
	a.CreatedAt, a.UpdatedAt = now, now
	created, err := repo.CreateAssignments(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return created[0]
}

// Completed returns a completed assignment of std graded value, finished on day.
func Completed(std student.Student, subjectID, title string, day time.Time, value *float64, category string) assignment.Assignment {
	a := assignment.Assignment{
		FamilyID:      std.FamilyID,
		StudentID:     std.ID,
		SubjectID:     null.NewString(subjectID, subjectID != ""),
		Title:         title,
		Status:        assignment.StatusCompleted,
		AssignedDate:  day,
		CompletedDate: null.TimeFrom(day),
		Category:      null.NewString(category, category != ""),
	}
	if value != nil {
		a.GradeValue = null.Float64From(*value)
	}
	return a
}

// Date parses YYYY-MM-DD or fails the test.
func Date(t *testing.T, s string) time.Time {
	t.Helper()

	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("Date(%q) failed: %v", s, err)
	}
	return d
}

// FreezeTime pins core.NowFunc to now for the duration of the test.
func FreezeTime(t *testing.T, now time.Time) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now.UTC() }
	t.Cleanup(func() { core.NowFunc = orig })
}

func StrPtr(s string) *string { return &s }
func FloatPtr(f float64) *float64 { return &f }
func IntPtr(i int) *int { return &i }
func BoolPtr(b bool) *bool { return &b }
