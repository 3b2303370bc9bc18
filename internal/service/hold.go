package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// HoldManager places and releases time-limited holds on seats.
type HoldManager struct {
	store  repository.Store
	reaper *Reaper
	settings
}

// NewHoldManager returns a hold manager over store.  reaper may be nil.
func NewHoldManager(store repository.Store, reaper *Reaper, opts ...Option) *HoldManager {
	return &HoldManager{store: store, reaper: reaper, settings: newSettings(opts)}
}

// TTL resolves the hold duration for a requested TTL: zero or negative means
// the configured default, anything above the cap is clamped.
func (h *HoldManager) TTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return h.ttl
	}
	if requested > h.maxTTL {
		return h.maxTTL
	}
	return requested
}

// Acquire holds every seat in seatIDs for userID or none of them.  A seat can
// be taken when it is AVAILABLE or HELD by a lapsed hold.  A race lost
// between the read and the write is retried once; after that the caller gets
// ErrSeatUnavailable.
func (h *HoldManager) Acquire(ctx context.Context, userID string, showID uint64, seatIDs []uint64, ttl time.Duration) (model.Hold, error) {
	if userID == "" {
		return model.Hold{}, fmt.Errorf("user id is required: %w", repository.ErrInvalidArgument)
	}
	ids := dedupe(seatIDs)
	if len(ids) == 0 {
		return model.Hold{}, fmt.Errorf("no seats requested: %w", repository.ErrInvalidArgument)
	}
	ttl = h.TTL(ttl)
	h.reaper.reapQuietly(ctx, showID)

	var (
		hold model.Hold
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		hold, err = h.tryAcquire(ctx, userID, showID, ids, ttl)
		if !errors.Is(err, repository.ErrConcurrencyConflict) {
			break
		}
		h.log.Debug("hold race lost", zap.Uint64("show_id", showID), zap.Int("attempt", attempt+1))
	}
	if errors.Is(err, repository.ErrConcurrencyConflict) {
		return model.Hold{}, repository.NewSeatError(repository.ErrSeatUnavailable, showID, ids)
	}
	if err != nil {
		return model.Hold{}, err
	}
	h.log.Info("seats held",
		zap.String("hold_id", hold.ID),
		zap.String("user_id", userID),
		zap.Uint64("show_id", showID),
		zap.Uint64s("seat_ids", ids),
		zap.Time("hold_until", hold.HoldUntil))
	return hold, nil
}

func (h *HoldManager) tryAcquire(ctx context.Context, userID string, showID uint64, ids []uint64, ttl time.Duration) (model.Hold, error) {
	now := h.now()
	hold := model.Hold{
		ID:        uuid.NewString(),
		UserID:    userID,
		ShowID:    showID,
		SeatIDs:   ids,
		HoldUntil: now.Add(ttl),
		CreatedAt: now,
	}
	err := h.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.GetSeats(ctx, showID, ids)
		if err != nil {
			return err
		}
		var unavailable []uint64
		for _, row := range rows {
			if !row.Acquirable(now) {
				unavailable = append(unavailable, row.SeatID)
			}
		}
		if len(unavailable) > 0 {
			return repository.NewSeatError(repository.ErrSeatUnavailable, showID, unavailable)
		}
		next := model.HeldState(hold.ID, hold.HoldUntil)
		for _, row := range rows {
			if err := tx.CompareAndSwap(ctx, row, row.Version, next); err != nil {
				return err
			}
		}
		return tx.InsertHold(ctx, hold)
	})
	return hold, err
}

// Release returns HELD seats to AVAILABLE whoever holds them and whether or
// not the hold lapsed.  It is the operator override; customers go through
// ReleaseOwn.  AVAILABLE seats are left alone.  A BOOKED seat fails the
// whole call with ErrInvalidState; only a refund frees a sold seat.
func (h *HoldManager) Release(ctx context.Context, showID uint64, seatIDs []uint64) error {
	ids := dedupe(seatIDs)
	if len(ids) == 0 {
		return fmt.Errorf("no seats requested: %w", repository.ErrInvalidArgument)
	}
	err := h.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.GetSeats(ctx, showID, ids)
		if err != nil {
			return err
		}
		var booked []uint64
		for _, row := range rows {
			if row.Status == model.SeatBooked {
				booked = append(booked, row.SeatID)
			}
		}
		if len(booked) > 0 {
			return repository.NewSeatError(repository.ErrInvalidState, showID, booked)
		}
		for _, row := range rows {
			if row.Status != model.SeatHeld {
				continue
			}
			if err := tx.CompareAndSwap(ctx, row, row.Version, model.AvailableState()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.log.Info("seats released", zap.Uint64("show_id", showID), zap.Uint64s("seat_ids", ids))
	return nil
}

// ReleaseOwn frees the seats of showID that userID holds and returns them.
// Either every live HELD seat in the request belongs to an unused hold of
// userID or nothing changes: seats under another user's live hold fail with
// ErrForbidden, seats that are BOOKED or back a booking of the caller fail
// with ErrInvalidState.  AVAILABLE seats and lapsed holds are skipped; the
// reaper owns those.
func (h *HoldManager) ReleaseOwn(ctx context.Context, userID string, showID uint64, seatIDs []uint64) ([]uint64, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", repository.ErrInvalidArgument)
	}
	ids := dedupe(seatIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no seats requested: %w", repository.ErrInvalidArgument)
	}
	now := h.now()
	var released []uint64
	err := h.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		released = nil
		rows, err := tx.GetSeats(ctx, showID, ids)
		if err != nil {
			return err
		}
		holds := map[string]model.Hold{}
		var mine []model.SeatInventory
		var foreign, sold []uint64
		for _, row := range rows {
			switch {
			case row.Status == model.SeatBooked:
				sold = append(sold, row.SeatID)
				continue
			case row.Status != model.SeatHeld || row.HoldExpired(now):
				continue
			}
			hold, ok := holds[row.HoldID]
			if !ok {
				hold, err = tx.GetHold(ctx, row.HoldID)
				if err != nil && !errors.Is(err, repository.ErrNotFound) {
					return err
				}
				holds[row.HoldID] = hold
			}
			switch {
			case hold.UserID != userID:
				foreign = append(foreign, row.SeatID)
			case hold.Consumed():
				sold = append(sold, row.SeatID)
			default:
				mine = append(mine, row)
			}
		}
		if len(foreign) > 0 {
			return repository.NewSeatError(repository.ErrForbidden, showID, foreign)
		}
		if len(sold) > 0 {
			return repository.NewSeatError(repository.ErrInvalidState, showID, sold)
		}
		for _, row := range mine {
			if err := tx.CompareAndSwap(ctx, row, row.Version, model.AvailableState()); err != nil {
				return err
			}
			released = append(released, row.SeatID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.log.Info("seats released",
		zap.String("user_id", userID),
		zap.Uint64("show_id", showID),
		zap.Uint64s("seat_ids", released))
	return released, nil
}

// Get returns a hold by id.
func (h *HoldManager) Get(ctx context.Context, holdID string) (model.Hold, error) {
	var hold model.Hold
	err := h.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		hold, err = tx.GetHold(ctx, holdID)
		return err
	})
	return hold, err
}

// ReleaseHold frees the seats still owned by holdID.  Seats that have since
// been taken by another hold are left alone.  A hold that already became a
// booking must be released by cancelling the booking.
func (h *HoldManager) ReleaseHold(ctx context.Context, holdID string) ([]uint64, error) {
	var released []uint64
	err := h.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		hold, err := tx.GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if hold.Consumed() {
			return fmt.Errorf("hold %s used by booking %d: %w", holdID, hold.BookingID, repository.ErrInvalidState)
		}
		released, err = releaseOwned(ctx, tx, hold.ShowID, hold.SeatIDs, holdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.log.Info("hold released", zap.String("hold_id", holdID), zap.Uint64s("seat_ids", released))
	return released, nil
}

// releaseOwned moves the seats HELD by holdID back to AVAILABLE inside tx.
func releaseOwned(ctx context.Context, tx repository.Tx, showID uint64, seatIDs []uint64, holdID string) ([]uint64, error) {
	rows, err := tx.GetSeats(ctx, showID, seatIDs)
	if err != nil {
		return nil, err
	}
	var released []uint64
	for _, row := range rows {
		if row.Status != model.SeatHeld || row.HoldID != holdID {
			continue
		}
		if err := tx.CompareAndSwap(ctx, row, row.Version, model.AvailableState()); err != nil {
			return nil, err
		}
		released = append(released, row.SeatID)
	}
	return released, nil
}
