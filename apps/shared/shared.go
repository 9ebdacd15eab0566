// Package shared wires the storage and services used by the api and admin apps.
package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/report"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
	"github.com/trezcool/homeschool/core/user"
	"github.com/trezcool/homeschool/storage/database"
	dummydb "github.com/trezcool/homeschool/storage/database/dummy"
	sqlxrepos "github.com/trezcool/homeschool/storage/database/sqlx"
)

type (
	Repos struct {
		DB *sqlx.DB // nil in memory

		Users       user.Repository
		Students    student.Repository
		Subjects    subject.Repository
		Assignments assignment.Repository
		Goals       goal.Repository
		Activity    activity.Repository
	}

	Services struct {
		Users       *user.Service
		Students    *student.Service
		Subjects    *subject.Service
		Goals       *goal.Service
		Activity    *activity.Service
		Assignments *assignment.Service
		Reports     *report.Service
	}
)

// NewValidator returns a validator with every custom validation registered, and its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	assignment.InitValidators(validate, translator)
	return validate, translator
}

// OpenRepos opens the configured storage: dummydb in memory, postgres otherwise.
// The postgres schema is migrated up when migrate is set.
func OpenRepos(conf *core.Config, migrate bool) (Repos, func() error, error) {
	if conf.Database.InMemory {
		db := dummydb.Open()
		return Repos{
			Users:       dummydb.NewUserRepository(db),
			Students:    dummydb.NewStudentRepository(db),
			Subjects:    dummydb.NewSubjectRepository(db),
			Assignments: dummydb.NewAssignmentRepository(db),
			Goals:       dummydb.NewGoalRepository(db),
			Activity:    dummydb.NewActivityRepository(db),
		}, func() error { return nil }, nil
	}

	if migrate {
		if err := database.CreateIfNotExist(conf); err != nil {
			return Repos{}, nil, err
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return Repos{}, nil, err
	}
	if migrate {
		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return Repos{}, nil, errors.Wrap(err, "migrating database")
		}
	}
	db = sqlxrepos.Prepare(db)
	return Repos{
		DB:          db,
		Users:       sqlxrepos.NewUserRepository(db),
		Students:    sqlxrepos.NewStudentRepository(db),
		Subjects:    sqlxrepos.NewSubjectRepository(db),
		Assignments: sqlxrepos.NewAssignmentRepository(db),
		Goals:       sqlxrepos.NewGoalRepository(db),
		Activity:    sqlxrepos.NewActivityRepository(db),
	}, db.Close, nil
}

// NewServices builds the services on top of repos. Notification emails are only sent
// when conf.NotifyByEmail is set.
func NewServices(conf *core.Config, repos Repos, mailSvc core.EmailService, logger core.Logger) Services {
	var svc Services
	svc.Users = user.NewService(repos.Users, mailSvc, conf)
	svc.Students = student.NewService(repos.Students, svc.Users)
	svc.Goals = goal.NewService(repos.Goals, repos.Students, repos.Subjects)
	svc.Subjects = subject.NewService(repos.Subjects, svc.Goals)

	var notifMailer core.EmailService
	if conf.NotifyByEmail {
		notifMailer = mailSvc
	}
	svc.Activity = activity.NewService(repos.Activity, svc.Users, notifMailer, logger)
	svc.Assignments = assignment.NewService(repos.Assignments, assignment.Deps{
		Students:   repos.Students,
		Subjects:   repos.Subjects,
		Parents:    svc.Users,
		Dispatcher: svc.Activity,
		Goals:      svc.Goals,
		Logger:     logger,
	})
	svc.Reports = report.NewService(repos.Assignments, repos.Students, repos.Subjects, repos.Goals)
	return svc
}
