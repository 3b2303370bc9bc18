package middleware

// identity.go holds the context keys JWTAuth fills in and the accessors the
// rest of the HTTP layer reads them through.

import (
	"github.com/labstack/echo/v4"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"

	// RoleCustomer may hold seats, book and pay for its own bookings.
	RoleCustomer = "CUSTOMER"
	// RoleAdmin may schedule inventory, refund payments and read reports.
	RoleAdmin = "ADMIN"
)

// UserID returns the opaque user id of the authenticated caller, or "" when
// the request is anonymous.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok {
		return s
	}
	return ""
}

// Role returns the caller's role claim, or "".
func Role(c echo.Context) string {
	if s, ok := c.Get(ctxRole).(string); ok {
		return s
	}
	return ""
}

// IsAdmin reports whether the caller carries the ADMIN role.
func IsAdmin(c echo.Context) bool { return Role(c) == RoleAdmin }
