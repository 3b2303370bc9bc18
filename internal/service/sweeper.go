package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartSweeper schedules Reaper.Sweep on a fixed interval.  It only keeps
// the table tidy between requests; holds lapse correctly without it.  A
// non-positive interval disables the sweeper and returns a nil scheduler.
func StartSweeper(r *Reaper, interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	s, err := gocron.NewScheduler(gocron.WithClock(r.clock))
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			n, err := r.Sweep(ctx)
			if err != nil {
				r.log.Warn("hold sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				r.log.Info("hold sweep", zap.Int("seats", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	s.Start()
	r.log.Info("hold sweeper started", zap.Duration("interval", interval))
	return s, nil
}
