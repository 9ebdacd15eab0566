package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", authed...)
	rg.GET("", api.family, managerMiddleware())
	rg.GET("/students/:id", api.student)
	rg.GET("/students/:id/export", api.export)
}

func bindRange(ctx echo.Context) (report.Range, error) {
	return report.ParseRange(ctx.QueryParam("from"), ctx.QueryParam("to"))
}

func (api *reportApi) studentReport(ctx echo.Context) (report.Report, error) {
	actor, err := getContextActor(ctx)
	if err != nil {
		return report.Report{}, err
	}
	rng, err := bindRange(ctx)
	if err != nil {
		return report.Report{}, err
	}
	rep, err := api.svc.StudentReport(ctx.Request().Context(), actor, ctx.Param("id"), rng)
	if err != nil {
		return report.Report{}, errors.Wrap(err, "building report")
	}
	return rep, nil
}

func (api *reportApi) family(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	rng, err := bindRange(ctx)
	if err != nil {
		return err
	}
	reps, err := api.svc.FamilyReport(ctx.Request().Context(), actor, rng)
	if err != nil {
		return errors.Wrap(err, "building family report")
	}
	return ctx.JSON(http.StatusOK, reps)
}

func (api *reportApi) student(ctx echo.Context) error {
	rep, err := api.studentReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) export(ctx echo.Context) error {
	rep, err := api.studentReport(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.ExportXLSX(rep, &buf); err != nil {
		return errors.Wrap(err, "exporting report")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", rep.FileName()))
	return ctx.Blob(http.StatusOK, report.XLSXContentType, buf.Bytes())
}
