package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/activity"
)

type activityApi struct {
	svc *activity.Service
}

func registerActivityAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *activity.Service) {
	api := activityApi{svc: svc}

	ng := g.Group("/notifications", authed...)
	ng.GET("", api.notifications)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("/:id/read", api.markRead)

	g.Group("/activity", authed...).GET("", api.recent, managerMiddleware())
}

func (api *activityApi) notifications(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	notifs, err := api.svc.Notifications(ctx.Request().Context(), actor, queryBool(ctx, "unread"), queryLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *activityApi) markRead(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.MarkRead(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *activityApi) markAllRead(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, MarkReadResponse{Marked: n})
}

func (api *activityApi) recent(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	logs, err := api.svc.RecentActivity(ctx.Request().Context(), actor, queryLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying activity")
	}
	return ctx.JSON(http.StatusOK, logs)
}

type MarkReadResponse struct {
	Marked int `json:"marked"`
}
