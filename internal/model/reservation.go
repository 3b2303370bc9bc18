package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingCreated   BookingStatus = "CREATED"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// CanTransition reports whether a booking may move from s to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	switch s {
	case BookingCreated:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCancelled
	case BookingCancelled:
		return false
	}
	return false
}

// Booking records a user's purchase attempt for a fixed set of seats of a
// show.  The seat set never changes after creation.
//
// Fields:
//  ID             – primary key identifier.
//  ShowID         – show being booked.
//  UserID         – opaque id supplied by the identity provider.
//  HoldID         – hold the booking was created from.
//  Status         – CREATED, CONFIRMED or CANCELLED.
//  TicketQuantity – number of seats.
//  TotalCents     – sum of the seat price snapshots at booking time.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Booking struct {
	ID             uint64        `db:"id" json:"booking_id"`                   // bookings.id
	ShowID         uint64        `db:"show_id" json:"show_id"`                 // bookings.show_id
	UserID         string        `db:"user_id" json:"user_id"`                 // bookings.user_id
	HoldID         string        `db:"hold_id" json:"hold_id"`                 // bookings.hold_id
	Status         BookingStatus `db:"status" json:"status"`                   // bookings.status
	TicketQuantity int           `db:"ticket_quantity" json:"ticket_quantity"` // bookings.ticket_quantity
	TotalCents     int64         `db:"total_cents" json:"total_cents"`         // bookings.total_cents
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`           // bookings.created_at
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`           // bookings.updated_at
}

// BookingSeat links a booking to one seat-inventory row and freezes the
// price paid for it.
type BookingSeat struct {
	BookingID      uint64 `db:"booking_id" json:"-"`                      // booking_seats.booking_id
	ShowID         uint64 `db:"show_id" json:"show_id"`                   // booking_seats.show_id
	SeatID         uint64 `db:"seat_id" json:"seat_id"`                   // booking_seats.seat_id
	UnitPriceCents int64  `db:"unit_price_cents" json:"unit_price_cents"` // booking_seats.unit_price_cents
}

// BookingDetail is a booking together with its seats and payment attempts.
type BookingDetail struct {
	Booking
	Seats    []BookingSeat `json:"seats"`
	Payments []Payment     `json:"payments"`
}

// SeatIDs returns the seat ids of the booking in insertion order.
func SeatIDs(seats []BookingSeat) []uint64 {
	out := make([]uint64, 0, len(seats))
	for _, s := range seats {
		out = append(out, s.SeatID)
	}
	return out
}
