package handler // handler defines the HTTP handlers of the marketplace service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/middleware"
)

// dbTimeout bounds every repository call made by a handler.
const dbTimeout = 5 * time.Second

// reqCtx derives the per-request database context.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// getUserID extracts the authenticated user id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// fail writes the JSON error body every endpoint uses.
func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "unauthorized")
}
