package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/goal"
)

type goalApi struct {
	svc      *goal.Service
	validate *validator.Validate
}

func registerGoalAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *goal.Service, validate *validator.Validate) {
	api := goalApi{svc: svc, validate: validate}

	gg := g.Group("/goals", authed...)
	gg.GET("", api.query)
	gg.POST("", api.create, managerMiddleware())
	gg.GET("/:id", api.retrieve)
	gg.PUT("/:id", api.update, managerMiddleware())
	gg.DELETE("/:id", api.destroy, managerMiddleware())
}

func (api *goalApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	goals, err := api.svc.List(ctx.Request().Context(), actor, core.CleanString(ctx.QueryParam("student_id")))
	if err != nil {
		return errors.Wrap(err, "querying goals")
	}
	return ctx.JSON(http.StatusOK, goals)
}

func (api *goalApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data goal.NewGoal
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating goal")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *goalApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding goal")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *goalApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data goal.UpdateGoal
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating goal")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *goalApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting goal")
	}
	return ctx.NoContent(http.StatusNoContent)
}
