package middleware

// identity.go reads back the caller identity stored by JWTAuth. Handlers use
// these helpers instead of type-asserting context values themselves.

import (
	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's id. ok is false on routes without
// JWTAuth or when the value is missing.
func UserID(c echo.Context) (id uint64, ok bool) {
	id, ok = c.Get(CtxUserID).(uint64)
	return id, ok && id != 0
}

// Email returns the authenticated user's email, or "" when unauthenticated.
// Listing ownership is decided by comparing this value with seller_email.
func Email(c echo.Context) string {
	e, _ := c.Get(CtxEmail).(string)
	return e
}
