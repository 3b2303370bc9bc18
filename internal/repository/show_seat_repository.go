package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const seatColumns = `show_id, seat_id, seat_type_id, price_cents, status, hold_until, hold_id, version`

// GetSeats reads the requested rows without locking them.  The version read
// here is what a later CompareAndSwap must match.
func (t *sqlTx) GetSeats(ctx context.Context, showID uint64, seatIDs []uint64) ([]model.SeatInventory, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+seatColumns+` FROM show_seats WHERE show_id = ? AND seat_id IN (?)`, showID, seatIDs)
	if err != nil {
		return nil, err
	}
	var rows []model.SeatInventory
	if err := t.tx.SelectContext(ctx, &rows, t.tx.Rebind(q), args...); err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.SeatInventory, len(rows))
	for _, r := range rows {
		byID[r.SeatID] = r
	}
	out := make([]model.SeatInventory, 0, len(seatIDs))
	var missing []uint64
	for _, id := range seatIDs {
		r, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, r)
	}
	if len(missing) > 0 {
		return nil, NewSeatError(ErrNotFound, showID, missing)
	}
	return out, nil
}

func (t *sqlTx) ListSeats(ctx context.Context, showID uint64) ([]model.SeatInventory, error) {
	var rows []model.SeatInventory
	err := t.tx.SelectContext(ctx, &rows,
		`SELECT `+seatColumns+` FROM show_seats WHERE show_id = ? ORDER BY seat_id`, showID)
	return rows, err
}

func (t *sqlTx) ListExpiredHolds(ctx context.Context, showID uint64, now time.Time) ([]model.SeatInventory, error) {
	var rows []model.SeatInventory
	err := t.tx.SelectContext(ctx, &rows,
		`SELECT `+seatColumns+` FROM show_seats WHERE show_id = ? AND status = ? AND hold_until <= ?`,
		showID, model.SeatHeld, now.UTC())
	return rows, err
}

func (t *sqlTx) ListShowsWithExpiredHolds(ctx context.Context, now time.Time) ([]uint64, error) {
	var ids []uint64
	err := t.tx.SelectContext(ctx, &ids,
		`SELECT DISTINCT show_id FROM show_seats WHERE status = ? AND hold_until <= ? ORDER BY show_id`,
		model.SeatHeld, now.UTC())
	return ids, err
}

// CompareAndSwap updates the row only when its version still equals
// expected.  Zero affected rows means another writer got there first.
func (t *sqlTx) CompareAndSwap(ctx context.Context, row model.SeatInventory, expected uint64, next model.SeatState) error {
	if !next.Consistent() {
		return fmt.Errorf("seat %d: inconsistent state %s: %w", row.SeatID, next.Status, ErrInvalidState)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE show_seats SET status = ?, hold_until = ?, hold_id = ?, version = version + 1
		 WHERE show_id = ? AND seat_id = ? AND version = ?`,
		next.Status, next.HoldUntil, next.HoldID, row.ShowID, row.SeatID, expected)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NewSeatError(ErrConcurrencyConflict, row.ShowID, []uint64{row.SeatID})
	}
	return nil
}

// InsertSeats creates one AVAILABLE row per seat in a single statement.
func (t *sqlTx) InsertSeats(ctx context.Context, showID uint64, seats []model.SeatSpec) error {
	if len(seats) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(seats)*5)
	for _, s := range seats {
		args = append(args, showID, s.SeatID, s.SeatTypeID, s.PriceCents, model.SeatAvailable)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO show_seats (show_id, seat_id, seat_type_id, price_cents, status) VALUES `+placeholders(len(seats), 5),
		args...)
	if isDuplicate(err) {
		return fmt.Errorf("show %d inventory: %w", showID, ErrConflict)
	}
	return err
}
