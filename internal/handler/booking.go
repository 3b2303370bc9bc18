package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/middleware"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/service"
)

// BookingHandler serves the customer's bookings.  A customer only sees and
// changes their own bookings; admins see all of them.
type BookingHandler struct {
	Bookings *service.Bookings
	Log      *zap.Logger
}

// NewBookingHandler panics on a nil service.
func NewBookingHandler(bookings *service.Bookings, log *zap.Logger) *BookingHandler {
	if bookings == nil {
		panic("nil service passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Bookings: bookings, Log: log}
}

type createBookingRequest struct {
	HoldID string `json:"hold_id" validate:"required,max=64"`
}

// Create handles POST /v1/bookings.  The body carries the hold id returned
// by AcquireHold.  The hold must have been placed by the caller (403
// otherwise) and must still own its seats; 410 means it lapsed and nothing
// was written.  A second booking on the same hold gets 409.  The seats stay
// HELD until the payment is confirmed.
func (h *BookingHandler) Create(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing user"})
	}
	var req createBookingRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	booking, err := h.Bookings.CreateFromHold(c.Request().Context(), req.HoldID, userID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, booking)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	d, err := h.Bookings.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !owns(c, d.Booking) {
		return forbidden(c)
	}
	return c.JSON(http.StatusOK, d)
}

// ListMine handles GET /v1/my-bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing user"})
	}
	list, err := h.Bookings.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if list == nil {
		list = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Cancel handles DELETE /v1/bookings/:id.  Only CREATED bookings can be
// cancelled; a paid booking is refunded instead.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	if _, ok, err := ownedBooking(c, h.Bookings, h.Log, id); !ok {
		return err
	}
	if err := h.Bookings.Cancel(c.Request().Context(), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ownedBooking loads booking id and checks that the caller may act on it.
// When ok is false the response has been written and err is its result.
func ownedBooking(c echo.Context, bookings *service.Bookings, log *zap.Logger, id uint64) (d model.BookingDetail, ok bool, err error) {
	d, err = bookings.Get(c.Request().Context(), id)
	if err != nil {
		return d, false, writeError(c, log, err)
	}
	if !owns(c, d.Booking) {
		return d, false, forbidden(c)
	}
	return d, true, nil
}

func owns(c echo.Context, b model.Booking) bool {
	return middleware.IsAdmin(c) || b.UserID == middleware.UserID(c)
}
