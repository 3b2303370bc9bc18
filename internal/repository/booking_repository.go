package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const bookingColumns = `id, show_id, user_id, hold_id, status, ticket_quantity, total_cents, created_at, updated_at`

// InsertBooking writes b and sets b.ID from the generated key.
func (t *sqlTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bookings (show_id, user_id, hold_id, status, ticket_quantity, total_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ShowID, b.UserID, b.HoldID, b.Status, b.TicketQuantity, b.TotalCents, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// InsertBookingSeats inserts all seats of a booking in one statement.
func (t *sqlTx) InsertBookingSeats(ctx context.Context, seats []model.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(seats)*4)
	for _, s := range seats {
		args = append(args, s.BookingID, s.ShowID, s.SeatID, s.UnitPriceCents)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO booking_seats (booking_id, show_id, seat_id, unit_price_cents) VALUES `+placeholders(len(seats), 4),
		args...)
	return err
}

func (t *sqlTx) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	var b model.Booking
	err := t.tx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, NewBookingError(ErrNotFound, id, 0, "")
	}
	return b, err
}

func (t *sqlTx) ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	var out []model.Booking
	err := t.tx.SelectContext(ctx, &out,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY id DESC`, userID)
	return out, err
}

func (t *sqlTx) ListBookingSeats(ctx context.Context, bookingID uint64) ([]model.BookingSeat, error) {
	var out []model.BookingSeat
	err := t.tx.SelectContext(ctx, &out,
		`SELECT booking_id, show_id, seat_id, unit_price_cents FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`,
		bookingID)
	return out, err
}

// UpdateBookingStatus is a status-gated update: the row changes only if it is
// still in from.
func (t *sqlTx) UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at.UTC(), id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := t.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		return NewBookingError(ErrInvalidState, id, 0, string(cur.Status))
	}
	return nil
}
