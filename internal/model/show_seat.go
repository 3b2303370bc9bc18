package model

import "time"

// SeatStatus is the availability state of a seat for one show.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatBooked    SeatStatus = "BOOKED"
)

// Valid reports whether s is one of the known seat states.
func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatHeld, SeatBooked:
		return true
	}
	return false
}

// SeatInventory is the authoritative per-show, per-seat record.  There is
// one row for every enabled seat of the hall, created when the show is
// scheduled.  Rows are only ever changed through a compare-and-swap on
// Version.
//
// Fields:
//  ShowID     – the show to which this seat belongs.
//  SeatID     – the physical seat in the hall.
//  SeatTypeID – seat type the price was taken from.
//  PriceCents – price snapshot taken at scheduling time; never changes.
//  Status     – AVAILABLE, HELD or BOOKED.
//  HoldUntil  – hold expiry, set only while HELD.
//  HoldID     – id of the hold that owns the seat, set only while HELD.
//  Version    – concurrency token, incremented on every write.
type SeatInventory struct {
	ShowID     uint64     `db:"show_id"`      // show_seats.show_id
	SeatID     uint64     `db:"seat_id"`      // show_seats.seat_id
	SeatTypeID uint64     `db:"seat_type_id"` // show_seats.seat_type_id
	PriceCents int64      `db:"price_cents"`  // show_seats.price_cents
	Status     SeatStatus `db:"status"`       // show_seats.status
	HoldUntil  *time.Time `db:"hold_until"`   // show_seats.hold_until (nullable)
	HoldID     string     `db:"hold_id"`      // show_seats.hold_id
	Version    uint64     `db:"version"`      // show_seats.version
}

// HoldExpired reports whether the row is HELD by a hold that has lapsed at
// now.  A hold is live strictly before its HoldUntil.
func (s SeatInventory) HoldExpired(now time.Time) bool {
	return s.Status == SeatHeld && s.HoldUntil != nil && !s.HoldUntil.After(now)
}

// Acquirable reports whether a new hold may claim the seat at now.
func (s SeatInventory) Acquirable(now time.Time) bool {
	return s.Status == SeatAvailable || s.HoldExpired(now)
}

// HeldBy reports whether the seat is still held by holdID and the hold has
// not lapsed at now.
func (s SeatInventory) HeldBy(holdID string, now time.Time) bool {
	return s.Status == SeatHeld && s.HoldID == holdID && s.HoldUntil != nil && s.HoldUntil.After(now)
}

// SeatSpec describes one enabled seat supplied by the catalog when a show is
// scheduled.
type SeatSpec struct {
	SeatID     uint64 `json:"seat_id" validate:"required,gt=0"`
	SeatTypeID uint64 `json:"seat_type_id" validate:"required,gt=0"`
	PriceCents int64  `json:"price_cents" validate:"gte=0"`
}

// SeatView is one entry of a show's seat map.
type SeatView struct {
	SeatID     uint64     `json:"seat_id"`
	SeatTypeID uint64     `json:"seat_type_id"`
	Status     SeatStatus `json:"status"`
	PriceCents int64      `json:"price_cents"`
}

// SeatState is the mutable part of a seat-inventory row written by a
// compare-and-swap.
type SeatState struct {
	Status    SeatStatus
	HoldUntil *time.Time
	HoldID    string
}

// AvailableState clears any hold.
func AvailableState() SeatState { return SeatState{Status: SeatAvailable} }

// HeldState claims the seat for holdID until the given time.
func HeldState(holdID string, until time.Time) SeatState {
	u := until.UTC()
	return SeatState{Status: SeatHeld, HoldUntil: &u, HoldID: holdID}
}

// BookedState marks the seat sold.
func BookedState() SeatState { return SeatState{Status: SeatBooked} }

// Consistent reports whether the state satisfies the hold invariant: a HELD
// seat has an expiry and an owner, any other seat has neither.
func (s SeatState) Consistent() bool {
	switch s.Status {
	case SeatHeld:
		return s.HoldUntil != nil && s.HoldID != ""
	case SeatAvailable, SeatBooked:
		return s.HoldUntil == nil && s.HoldID == ""
	}
	return false
}

// State returns the mutable part of the row.
func (s SeatInventory) State() SeatState {
	return SeatState{Status: s.Status, HoldUntil: s.HoldUntil, HoldID: s.HoldID}
}
