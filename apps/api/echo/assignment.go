package echoapi

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/assignment"
)

const importFileField = "file"

var errImportFormat = core.NewValidationError(nil, core.FieldError{Field: importFileField, Error: "expected a .csv or .xlsx file"})

type assignmentApi struct {
	svc      *assignment.Service
	validate *validator.Validate
}

func registerAssignmentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *assignment.Service, validate *validator.Validate) {
	api := assignmentApi{svc: svc, validate: validate}

	ag := g.Group("/assignments", authed...)
	ag.GET("", api.query)
	ag.POST("", api.create, managerMiddleware())
	ag.POST("/import", api.importFile, managerMiddleware())

	// detail endpoints
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update, managerMiddleware())
	ag.DELETE("/:id", api.destroy, managerMiddleware())
	ag.POST("/:id/status", api.updateStatus)
	ag.POST("/:id/grade", api.grade, managerMiddleware())
	ag.GET("/:id/comments", api.comments)
	ag.POST("/:id/comments", api.addComment)
	ag.GET("/:id/history", api.history)
}

// bindFilter reads the query filter. Unknown statuses and categories match nothing.
func bindFilter(ctx echo.Context) (assignment.QueryFilter, error) {
	filter := assignment.QueryFilter{
		StudentID: core.CleanString(ctx.QueryParam("student_id")),
		SubjectID: core.CleanString(ctx.QueryParam("subject_id")),
		Search:    ctx.QueryParam("search"),
	}
	if s := core.CleanString(ctx.QueryParam("status")); s != "" {
		filter.Status = assignment.Status(strings.ToUpper(s))
	}
	if c := core.CleanString(ctx.QueryParam("category")); c != "" {
		if cat, ok := assignment.ParseCategoryString(c); ok {
			filter.Category = cat
		} else {
			filter.Category = c
		}
	}

	dates := []struct {
		name string
		dst  *time.Time
	}{
		{"due_from", &filter.DueFrom},
		{"due_before", &filter.DueBefore},
		{"completed_from", &filter.CompletedFrom},
		{"completed_before", &filter.CompletedBefore},
	}
	for _, d := range dates {
		t, err := queryDate(ctx, d.name)
		if err != nil {
			return assignment.QueryFilter{}, err
		}
		*d.dst = t
	}
	return filter, nil
}

func (api *assignmentApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.svc.List(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *assignmentApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data assignment.NewAssignment
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	created, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating assignments")
	}
	return ctx.JSON(http.StatusCreated, created)
}

func (api *assignmentApi) importFile(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile(importFileField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: importFileField, Error: "this field is required"})
	}
	read := assignment.ReadCSV
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".csv":
	case ".xlsx":
		read = assignment.ReadXLSX
	default:
		return errImportFormat
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return err
	}
	created, err := api.svc.Import(ctx.Request().Context(), actor, rows)
	if err != nil {
		return errors.Wrap(err, "importing assignments")
	}
	return ctx.JSON(http.StatusCreated, ImportResponse{Imported: len(created), Assignments: created})
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data assignment.UpdateAssignment
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) updateStatus(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data assignment.StatusUpdate
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.UpdateStatus(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating status")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data assignment.GradeInput
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Grade(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) comments(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	comments, err := api.svc.Comments(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying comments")
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (api *assignmentApi) addComment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data assignment.NewComment
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cmt, err := api.svc.AddComment(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, cmt)
}

func (api *assignmentApi) history(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	logs, err := api.svc.History(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying history")
	}
	return ctx.JSON(http.StatusOK, logs)
}

type ImportResponse struct {
	Imported    int                     `json:"imported"`
	Assignments []assignment.Assignment `json:"assignments"`
}
