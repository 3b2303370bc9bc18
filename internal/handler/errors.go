package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// errorBody is the JSON shape of every non-2xx response written by
// writeError.
type errorBody struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	SeatIDs     []uint64 `json:"seat_ids,omitempty"`
	Unavailable []uint64 `json:"unavailable,omitempty"`
	BookingID   uint64   `json:"booking_id,omitempty"`
	PaymentID   uint64   `json:"payment_id,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// errorMapping is checked in order; the first sentinel matched by errors.Is
// decides the status and code.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{repository.ErrSeatUnavailable, http.StatusConflict, "seat_unavailable"},
	{repository.ErrHoldExpired, http.StatusGone, "hold_expired"},
	{repository.ErrSeatNoLongerHeld, http.StatusConflict, "seat_no_longer_held"},
	{repository.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
	{repository.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{repository.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{repository.ErrConflict, http.StatusConflict, "conflict"},
	{repository.ErrNotFound, http.StatusNotFound, "not_found"},
	{repository.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{repository.ErrForbidden, http.StatusForbidden, "forbidden"},
}

// writeError translates a service error into an HTTP response.  Unknown
// errors are logged and reported as 500 without their message.  Seat errors
// add the affected seat ids to the body so clients can redraw the seat map
// without another round trip.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	body := errorBody{Error: "internal", Message: "internal error"}
	status := http.StatusInternalServerError
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			status, body.Error, body.Message = m.status, m.code, err.Error()
			break
		}
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.JSON(status, body)
	}

	var se *repository.SeatError
	if errors.As(err, &se) {
		body.SeatIDs = se.SeatIDs
		if errors.Is(err, repository.ErrSeatUnavailable) {
			body.Unavailable = se.SeatIDs
		}
	}
	var be *repository.BookingError
	if errors.As(err, &be) {
		body.BookingID, body.PaymentID, body.Status = be.BookingID, be.PaymentID, be.Status
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_argument", Message: msg})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, errorBody{Error: "forbidden", Message: "resource belongs to another user"})
}
