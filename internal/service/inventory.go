package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// Inventory creates the seat rows of a show and serves its seat map.
type Inventory struct {
	store  repository.Store
	reaper *Reaper
	settings
}

// NewInventory returns an inventory service over store.  reaper may be nil.
func NewInventory(store repository.Store, reaper *Reaper, opts ...Option) *Inventory {
	return &Inventory{store: store, reaper: reaper, settings: newSettings(opts)}
}

// Schedule snapshots the enabled seats of a show, each at the price of its
// seat type, as AVAILABLE rows.  A show is scheduled once.
func (i *Inventory) Schedule(ctx context.Context, showID uint64, seats []model.SeatSpec) error {
	if showID == 0 || len(seats) == 0 {
		return fmt.Errorf("show %d: no seats: %w", showID, repository.ErrInvalidArgument)
	}
	seen := make(map[uint64]bool, len(seats))
	for _, s := range seats {
		if s.SeatID == 0 || s.PriceCents < 0 {
			return fmt.Errorf("show %d seat %d: %w", showID, s.SeatID, repository.ErrInvalidArgument)
		}
		if seen[s.SeatID] {
			return repository.NewSeatError(repository.ErrInvalidArgument, showID, []uint64{s.SeatID})
		}
		seen[s.SeatID] = true
	}
	err := i.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.ListSeats(ctx, showID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("show %d already has inventory: %w", showID, repository.ErrConflict)
		}
		return tx.InsertSeats(ctx, showID, seats)
	})
	if err != nil {
		return err
	}
	i.log.Info("show inventory scheduled", zap.Uint64("show_id", showID), zap.Int("seats", len(seats)))
	return nil
}

// SeatMap reaps lapsed holds and returns every seat of the show.  A seat
// whose hold lapsed but could not be reaped is still reported AVAILABLE.
func (i *Inventory) SeatMap(ctx context.Context, showID uint64) ([]model.SeatView, error) {
	i.reaper.reapQuietly(ctx, showID)
	now := i.now()
	var rows []model.SeatInventory
	err := i.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rows, err = tx.ListSeats(ctx, showID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("show %d: %w", showID, repository.ErrNotFound)
	}
	out := make([]model.SeatView, 0, len(rows))
	for _, r := range rows {
		status := r.Status
		if r.HoldExpired(now) {
			status = model.SeatAvailable
		}
		out = append(out, model.SeatView{
			SeatID:     r.SeatID,
			SeatTypeID: r.SeatTypeID,
			Status:     status,
			PriceCents: r.PriceCents,
		})
	}
	return out, nil
}
