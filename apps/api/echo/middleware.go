package echoapi

import (
	"github.com/labstack/echo/v4"
)

// noStoreMiddleware keeps the wizard responses (drafts) out of any cache.
func noStoreMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctx.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return next(ctx)
	}
}

// sessionMiddleware rejects the tokens without a session ID.
func sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getSessionID(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}
