package repository

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// SeatInventory is the access path to show_seats.  CompareAndSwap is the only
// way a row changes after it was inserted.
type SeatInventory interface {
	// GetSeats returns the rows for seatIDs in the requested order.  It fails
	// with ErrNotFound (as a *SeatError listing the missing ids) when any id
	// does not belong to the show.
	GetSeats(ctx context.Context, showID uint64, seatIDs []uint64) ([]model.SeatInventory, error)
	ListSeats(ctx context.Context, showID uint64) ([]model.SeatInventory, error)
	ListExpiredHolds(ctx context.Context, showID uint64, now time.Time) ([]model.SeatInventory, error)
	ListShowsWithExpiredHolds(ctx context.Context, now time.Time) ([]uint64, error)
	// CompareAndSwap writes next onto row when the stored version still equals
	// expected, and fails with ErrConcurrencyConflict otherwise.
	CompareAndSwap(ctx context.Context, row model.SeatInventory, expected uint64, next model.SeatState) error
	InsertSeats(ctx context.Context, showID uint64, seats []model.SeatSpec) error
}

// Holds is the access path to seat_holds.
type Holds interface {
	InsertHold(ctx context.Context, h model.Hold) error
	GetHold(ctx context.Context, holdID string) (model.Hold, error)
	// MarkHoldConsumed records the booking created from the hold.  A hold can
	// be consumed once; a second call fails with ErrConcurrencyConflict.
	MarkHoldConsumed(ctx context.Context, holdID string, bookingID uint64) error
}

// Bookings is the access path to bookings and booking_seats.
type Bookings interface {
	InsertBooking(ctx context.Context, b *model.Booking) error
	InsertBookingSeats(ctx context.Context, seats []model.BookingSeat) error
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error)
	ListBookingSeats(ctx context.Context, bookingID uint64) ([]model.BookingSeat, error)
	// UpdateBookingStatus moves the booking from one status to another and
	// fails with ErrInvalidState when the stored status is not from.
	UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus, at time.Time) error
}

// Payments is the access path to payments and payment_methods.
type Payments interface {
	// InsertPayment fails with ErrConcurrencyConflict when the invoice number
	// is already taken.
	InsertPayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id uint64) (model.Payment, error)
	ListPaymentsByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error)
	ListPaymentsBetween(ctx context.Context, from, to time.Time, methodID uint64) ([]model.Payment, error)
	// UpdatePaymentStatus moves the payment from one status to another and
	// fails with ErrInvalidState when the stored status is not from.  Nil
	// paidAt or providerTxnID leave the stored value unchanged.
	UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus, paidAt *time.Time, providerTxnID *string) error
	// LastInvoiceNo returns the greatest invoice number starting with prefix,
	// or "" when there is none.
	LastInvoiceNo(ctx context.Context, prefix string) (string, error)
	GetPaymentMethod(ctx context.Context, id uint64) (model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error)
}

// Tx is a unit of work over every table of the booking core.
type Tx interface {
	SeatInventory
	Holds
	Bookings
	Payments
}

// Store runs units of work atomically.  When fn returns an error nothing it
// wrote is kept.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// DefaultPaymentMethods are the methods seeded into a new store.
var DefaultPaymentMethods = []model.PaymentMethod{
	{ID: 1, Name: "Card", Active: true},
	{ID: 2, Name: "E-Wallet", Active: true},
	{ID: 3, Name: "Bank Transfer", Active: true},
}
