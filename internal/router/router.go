// Package router registers the HTTP routes of the booking API on echo.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/middleware"
)

// Handlers bundles the handler sets served by the API.
type Handlers struct {
	Holds    *handler.HoldHandler
	Bookings *handler.BookingHandler
	Payments *handler.PaymentHandler
	Admin    *handler.AdminHandler
}

// Middleware carries the configured middleware.  Nil entries are skipped.
type Middleware struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc // mutating customer endpoints
	Cache     echo.MiddlewareFunc // payment summary
}

// Register wires every route group.
func Register(e *echo.Echo, h Handlers, mw Middleware) {
	RegisterRoutes(e)
	RegisterPublic(e, h)
	RegisterCustomer(e, h, mw)
	RegisterAdmin(e, h, mw)
}

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers endpoints guests may call: the seat map, which is
// read live and never cached, and the payment method list.
func RegisterPublic(e *echo.Echo, h Handlers) {
	e.GET("/v1/shows/:id/seats", h.Holds.SeatMap)
	e.GET("/v1/payment-methods", h.Payments.Methods)
}

// RegisterCustomer registers hold, booking and payment endpoints under /v1.
// They need a valid JWT; admins may call them on behalf of a customer.
// Handlers scope holds, bookings and payments to the caller.
func RegisterCustomer(e *echo.Echo, h Handlers, mw Middleware) {
	g := e.Group("/v1",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin),
	)
	limited := []echo.MiddlewareFunc{}
	if mw.RateLimit != nil {
		limited = append(limited, mw.RateLimit)
	}

	g.POST("/shows/:id/hold", h.Holds.AcquireHold, limited...)
	g.DELETE("/shows/:id/hold", h.Holds.ReleaseSeats)
	g.DELETE("/holds/:id", h.Holds.ReleaseHold)

	g.POST("/bookings", h.Bookings.Create, limited...)
	g.GET("/bookings/:id", h.Bookings.Get)
	g.DELETE("/bookings/:id", h.Bookings.Cancel)
	g.GET("/my-bookings", h.Bookings.ListMine)

	g.POST("/bookings/:id/payments", h.Payments.Initiate, limited...)
	g.POST("/payments/:id/confirm", h.Payments.Confirm)
	g.POST("/payments/:id/cancel", h.Payments.CancelPending)
	g.POST("/payments/:id/fail", h.Payments.Fail)
}

// RegisterAdmin registers ADMIN-only endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, h Handlers, mw Middleware) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	cached := []echo.MiddlewareFunc{}
	if mw.Cache != nil {
		cached = append(cached, mw.Cache)
	}

	g.POST("/shows/:id/inventory", h.Admin.Schedule)
	g.DELETE("/shows/:id/hold", h.Holds.ForceRelease)
	g.POST("/payments/:id/refund", h.Payments.Refund)
	g.GET("/payments/summary", h.Payments.Summary, cached...)
}
