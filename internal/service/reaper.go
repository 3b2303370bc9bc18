package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// Reaper returns seats whose hold lapsed to AVAILABLE.  It runs ahead of
// reads and acquisitions that want a fresh view.  Acquisition already treats
// a lapsed hold as free, so a reap that fails or never runs only leaves the
// table untidy.
type Reaper struct {
	store repository.Store
	settings
}

// NewReaper returns a reaper over store.
func NewReaper(store repository.Store, opts ...Option) *Reaper {
	return &Reaper{store: store, settings: newSettings(opts)}
}

// Reap frees every lapsed hold of one show and returns how many seats it
// changed.  Rows another writer touched meanwhile are skipped.
func (r *Reaper) Reap(ctx context.Context, showID uint64) (int, error) {
	now := r.now()
	freed := 0
	err := r.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		freed = 0
		rows, err := tx.ListExpiredHolds(ctx, showID, now)
		if err != nil {
			return err
		}
		for _, row := range rows {
			err := tx.CompareAndSwap(ctx, row, row.Version, model.AvailableState())
			if errors.Is(err, repository.ErrConcurrencyConflict) {
				continue
			}
			if err != nil {
				return err
			}
			freed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if freed > 0 {
		r.log.Debug("reaped lapsed holds", zap.Uint64("show_id", showID), zap.Int("seats", freed))
	}
	return freed, nil
}

// Sweep reaps every show that has lapsed holds.  It backs the optional
// periodic sweeper.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	var shows []uint64
	err := r.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		shows, err = tx.ListShowsWithExpiredHolds(ctx, r.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, showID := range shows {
		n, err := r.Reap(ctx, showID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// reapQuietly runs Reap and only logs a failure.
func (r *Reaper) reapQuietly(ctx context.Context, showID uint64) {
	if r == nil {
		return
	}
	if _, err := r.Reap(ctx, showID); err != nil {
		r.log.Warn("reap failed", zap.Uint64("show_id", showID), zap.Error(err))
	}
}
