package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/subject"
)

type subjectApi struct {
	svc      *subject.Service
	validate *validator.Validate
}

func registerSubjectAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *subject.Service, validate *validator.Validate) {
	api := subjectApi{svc: svc, validate: validate}

	sg := g.Group("/subjects", authed...)
	sg.GET("", api.query)
	sg.POST("", api.create, managerMiddleware())
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, managerMiddleware())
	sg.DELETE("/:id", api.destroy, managerMiddleware())
	sg.GET("/:id/weights", api.weights)
	sg.PUT("/:id/weights", api.updateWeights, managerMiddleware())
}

func (api *subjectApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.List(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *subjectApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data subject.NewSubject
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *subjectApi) get(ctx echo.Context) (subject.Subject, error) {
	actor, err := getContextActor(ctx)
	if err != nil {
		return subject.Subject{}, err
	}
	sub, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return subject.Subject{}, errors.Wrap(err, "finding subject")
	}
	return sub, nil
}

func (api *subjectApi) retrieve(ctx echo.Context) error {
	sub, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subjectApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data subject.UpdateSubject
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subjectApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *subjectApi) weights(ctx echo.Context) error {
	sub, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, WeightsRequest{Weights: sub.Weights})
}

func (api *subjectApi) updateWeights(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data WeightsRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	sub, err := api.svc.UpdateWeights(ctx.Request().Context(), actor, ctx.Param("id"), data.Weights)
	if err != nil {
		return errors.Wrap(err, "updating weights")
	}
	return ctx.JSON(http.StatusOK, WeightsRequest{Weights: sub.Weights})
}

// WeightsRequest is the full set of category weights of a subject.
type WeightsRequest struct {
	Weights []subject.Weight `json:"weights"`
}
