package echoapi

import (
	"github.com/labstack/echo/v4"
)

// managerMiddleware only lets parents (and super admins) through.
func managerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return err
			}
			if err := actor.RequireManager(); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
