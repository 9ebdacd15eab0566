package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/report"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
	"github.com/trezcool/homeschool/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc       *user.Service
		StudentSvc    *student.Service
		SubjectSvc    *subject.Service
		AssignmentSvc *assignment.Service
		GoalSvc       *goal.Service
		ActivitySvc   *activity.Service
		ReportSvc     *report.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		tokens   *tokenIssuer
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		tokens:   newTokenIssuer(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	authed := []echo.MiddlewareFunc{s.tokens.middleware(), actorMiddleware(s.deps.UserSvc)}

	registerUserAPI(g, authed, s.tokens, s.deps.UserSvc, s.deps.Validate)
	registerStudentAPI(g, authed, s.deps.StudentSvc, s.deps.Validate)
	registerSubjectAPI(g, authed, s.deps.SubjectSvc, s.deps.Validate)
	registerAssignmentAPI(g, authed, s.deps.AssignmentSvc, s.deps.Validate)
	registerGoalAPI(g, authed, s.deps.GoalSvc, s.deps.Validate)
	registerActivityAPI(g, authed, s.deps.ActivitySvc)
	registerReportAPI(g, authed, s.deps.ReportSvc)
}

// Start serves until the server is shut down. Any other failure is sent on Errors.
func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signalled
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
