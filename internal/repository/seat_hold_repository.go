package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// holdRow is one seat_holds row; a hold spans one row per seat.
type holdRow struct {
	HoldID    string    `db:"hold_id"`
	UserID    string    `db:"user_id"`
	ShowID    uint64    `db:"show_id"`
	SeatID    uint64    `db:"seat_id"`
	ExpiresAt time.Time `db:"expires_at"`
	BookingID uint64    `db:"booking_id"`
	CreatedAt time.Time `db:"created_at"`
}

// InsertHold writes one seat_holds row per seat of the hold.
func (t *sqlTx) InsertHold(ctx context.Context, h model.Hold) error {
	if len(h.SeatIDs) == 0 {
		return fmt.Errorf("hold %s has no seats: %w", h.ID, ErrInvalidState)
	}
	args := make([]interface{}, 0, len(h.SeatIDs)*6)
	for _, sid := range h.SeatIDs {
		args = append(args, h.ID, h.UserID, h.ShowID, sid, h.HoldUntil.UTC(), h.CreatedAt.UTC())
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO seat_holds (hold_id, user_id, show_id, seat_id, expires_at, created_at) VALUES `+placeholders(len(h.SeatIDs), 6),
		args...)
	if isDuplicate(err) {
		return fmt.Errorf("hold %s: %w", h.ID, ErrConflict)
	}
	return err
}

func (t *sqlTx) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	var rows []holdRow
	if err := t.tx.SelectContext(ctx, &rows,
		`SELECT hold_id, user_id, show_id, seat_id, expires_at, booking_id, created_at
		 FROM seat_holds WHERE hold_id = ? ORDER BY seat_id`, holdID); err != nil {
		return model.Hold{}, err
	}
	if len(rows) == 0 {
		return model.Hold{}, fmt.Errorf("hold %s: %w", holdID, ErrNotFound)
	}
	h := model.Hold{
		ID:        rows[0].HoldID,
		UserID:    rows[0].UserID,
		ShowID:    rows[0].ShowID,
		HoldUntil: rows[0].ExpiresAt,
		BookingID: rows[0].BookingID,
		CreatedAt: rows[0].CreatedAt,
		SeatIDs:   make([]uint64, 0, len(rows)),
	}
	for _, r := range rows {
		h.SeatIDs = append(h.SeatIDs, r.SeatID)
	}
	return h, nil
}

// MarkHoldConsumed stamps the booking onto every row of a hold that has not
// been used yet.
func (t *sqlTx) MarkHoldConsumed(ctx context.Context, holdID string, bookingID uint64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE seat_holds SET booking_id = ? WHERE hold_id = ? AND booking_id = 0`, bookingID, holdID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("hold %s already used: %w", holdID, ErrConcurrencyConflict)
	}
	return nil
}
