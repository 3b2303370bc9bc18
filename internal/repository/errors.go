// Package repository defines the storage contract of the booking core, its
// MySQL and in-memory implementations, and the error values shared by the
// storage and service layers.  Handlers translate these sentinels into HTTP
// responses; callers should test them with errors.Is.
package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned for an unknown show, seat, hold, booking,
	// payment or payment method.
	ErrNotFound = errors.New("not found")

	// ErrSeatUnavailable is returned when a requested seat is neither
	// available nor held by a lapsed hold.
	ErrSeatUnavailable = errors.New("seat unavailable")

	// ErrHoldExpired is returned when a hold lapsed or was superseded before
	// a booking could be created from it.
	ErrHoldExpired = errors.New("hold expired")

	// ErrConcurrencyConflict is returned when a compare-and-swap lost a race.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrSeatNoLongerHeld is returned when payment confirmation finds a seat
	// that is no longer held for the booking.
	ErrSeatNoLongerHeld = errors.New("seat no longer held")

	// ErrInvalidState is returned when an operation is not legal for the
	// current status of the entity.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition is returned for an illegal booking status change.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidArgument is returned for malformed input such as an empty
	// seat selection.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden is returned when the caller attempts an operation
	// on a resource they do not own. Handlers should translate this
	// into an HTTP 403 response.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when an insert collides with existing rows,
	// such as scheduling inventory twice for the same show.
	ErrConflict = errors.New("conflict")
)

// SeatError carries the seats an operation failed on.
type SeatError struct {
	Err     error
	ShowID  uint64
	SeatIDs []uint64
}

func (e *SeatError) Error() string {
	return fmt.Sprintf("%v: show %d seats [%s]", e.Err, e.ShowID, joinIDs(e.SeatIDs))
}

func (e *SeatError) Unwrap() error { return e.Err }

// NewSeatError wraps err with the show and seats it concerns.
func NewSeatError(err error, showID uint64, seatIDs []uint64) error {
	return &SeatError{Err: err, ShowID: showID, SeatIDs: seatIDs}
}

// BookingError carries the booking and payment an operation failed on.
type BookingError struct {
	Err       error
	BookingID uint64
	PaymentID uint64
	Status    string
}

func (e *BookingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.BookingID != 0 {
		b.WriteString(": booking ")
		b.WriteString(strconv.FormatUint(e.BookingID, 10))
	}
	if e.PaymentID != 0 {
		b.WriteString(": payment ")
		b.WriteString(strconv.FormatUint(e.PaymentID, 10))
	}
	if e.Status != "" {
		b.WriteString(" (status ")
		b.WriteString(e.Status)
		b.WriteString(")")
	}
	return b.String()
}

func (e *BookingError) Unwrap() error { return e.Err }

// NewBookingError wraps err with the booking, payment and current status it
// concerns.  Zero values are omitted from the message.
func NewBookingError(err error, bookingID, paymentID uint64, status string) error {
	return &BookingError{Err: err, BookingID: bookingID, PaymentID: paymentID, Status: status}
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
