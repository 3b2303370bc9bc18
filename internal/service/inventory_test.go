package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t, 5)

	views, err := f.inventory.SeatMap(ctx, 5)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, model.SeatView{SeatID: 3, SeatTypeID: 2, Status: model.SeatAvailable, PriceCents: 2000}, views[2])

	err = f.inventory.Schedule(ctx, 5, []model.SeatSpec{{SeatID: 9, SeatTypeID: 1}})
	assert.ErrorIs(t, err, repository.ErrConflict)

	err = f.inventory.Schedule(ctx, 6, []model.SeatSpec{{SeatID: 1, SeatTypeID: 1}, {SeatID: 1, SeatTypeID: 1}})
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
	err = f.inventory.Schedule(ctx, 6, []model.SeatSpec{{SeatID: 1, SeatTypeID: 1, PriceCents: -1}})
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
	err = f.inventory.Schedule(ctx, 6, nil)
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)

	_, err = f.inventory.SeatMap(ctx, 6)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSeatMap_ReportsLapsedHoldAvailable(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	_, err := f.holds.Acquire(ctx, "user-1", 5, []uint64{1}, 5*time.Second)
	require.NoError(t, err)
	f.pay(t, 2)

	views, err := f.inventory.SeatMap(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, views[0].Status)
	assert.Equal(t, model.SeatBooked, views[1].Status)
	assert.Equal(t, model.SeatAvailable, views[2].Status)

	f.clock.Advance(6 * time.Second)
	views, err = f.inventory.SeatMap(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, views[0].Status)
	assert.Equal(t, model.SeatBooked, views[1].Status)

	// the read reaped the row as well
	assert.Equal(t, model.SeatAvailable, f.seat(t, 5, 1).Status)
}
