package model

import "time"

// Hold is a time-limited claim on a set of seats of one show, created by a
// successful acquisition.  The hold id is written onto every seat row it
// owns, which is how a later booking proves the seats are still its own.
//
// Fields:
//  ID        – opaque hold id (uuid) returned to the caller.
//  UserID    – user that placed the hold; only they may book or release it.
//  ShowID    – show the seats belong to.
//  SeatIDs   – seats claimed by the hold.
//  HoldUntil – when the hold lapses.
//  BookingID – booking created from the hold, 0 while unused.
//  CreatedAt – when the hold was created.
type Hold struct {
	ID        string    // seat_holds.hold_id
	UserID    string    // seat_holds.user_id
	ShowID    uint64    // seat_holds.show_id
	SeatIDs   []uint64  // seat_holds.seat_id (one row per seat)
	HoldUntil time.Time // seat_holds.expires_at
	BookingID uint64    // seat_holds.booking_id
	CreatedAt time.Time // seat_holds.created_at
}

// Consumed reports whether a booking was already created from the hold.
func (h Hold) Consumed() bool { return h.BookingID != 0 }
