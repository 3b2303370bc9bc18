package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/queue"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []queue.BookingConfirmedEvent
	refunded  []queue.PaymentRefundedEvent
	err       error
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, ev)
	return n.err
}

func (n *recordingNotifier) PaymentRefunded(_ context.Context, ev queue.PaymentRefundedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunded = append(n.refunded, ev)
	return n.err
}

// conflictStore makes the next `conflicts` compare-and-swaps lose, as if
// another writer had bumped the row in between.
type conflictStore struct {
	inner     repository.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.inner.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &conflictTx{Tx: tx, s: s})
	})
}

func (s *conflictStore) inject(n int) {
	s.mu.Lock()
	s.conflicts = n
	s.mu.Unlock()
}

type conflictTx struct {
	repository.Tx
	s *conflictStore
}

func (t *conflictTx) CompareAndSwap(ctx context.Context, row model.SeatInventory, expected uint64, next model.SeatState) error {
	t.s.mu.Lock()
	lose := t.s.conflicts > 0
	if lose {
		t.s.conflicts--
	}
	t.s.mu.Unlock()
	if lose {
		return repository.NewSeatError(repository.ErrConcurrencyConflict, row.ShowID, []uint64{row.SeatID})
	}
	return t.Tx.CompareAndSwap(ctx, row, expected, next)
}

type fixture struct {
	mem      *repository.MemoryStore
	store    *conflictStore
	clock    *clockwork.FakeClock
	notifier *recordingNotifier

	reaper    *Reaper
	holds     *HoldManager
	inventory *Inventory
	bookings  *Bookings
	payments  *Payments
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		mem:      repository.NewMemoryStore(),
		clock:    clockwork.NewFakeClockAt(testStart),
		notifier: &recordingNotifier{},
	}
	f.store = &conflictStore{inner: f.mem}
	all := append([]Option{
		WithClock(f.clock),
		WithLogger(zaptest.NewLogger(t)),
		WithNotifier(f.notifier),
	}, opts...)
	f.reaper = NewReaper(f.store, all...)
	f.holds = NewHoldManager(f.store, f.reaper, all...)
	f.inventory = NewInventory(f.store, f.reaper, all...)
	f.bookings = NewBookings(f.store, all...)
	f.payments = NewPayments(f.store, all...)
	return f
}

// schedule creates show 5 with seats 1 (A1) and 2 (A2) at 1500 and seat 3 at
// 2000, or the given seats.
func (f *fixture) schedule(t *testing.T, showID uint64, seats ...model.SeatSpec) {
	t.Helper()
	if len(seats) == 0 {
		seats = []model.SeatSpec{
			{SeatID: 1, SeatTypeID: 1, PriceCents: 1500},
			{SeatID: 2, SeatTypeID: 1, PriceCents: 1500},
			{SeatID: 3, SeatTypeID: 2, PriceCents: 2000},
		}
	}
	require.NoError(t, f.inventory.Schedule(context.Background(), showID, seats))
}

func (f *fixture) seat(t *testing.T, showID, seatID uint64) model.SeatInventory {
	t.Helper()
	var row model.SeatInventory
	err := f.mem.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.GetSeats(ctx, showID, []uint64{seatID})
		if err != nil {
			return err
		}
		row = rows[0]
		return nil
	})
	require.NoError(t, err)
	return row
}

// book holds seatIDs of show 5 and creates a booking for user-1.
func (f *fixture) book(t *testing.T, seatIDs ...uint64) (model.Hold, model.Booking) {
	t.Helper()
	ctx := context.Background()
	hold, err := f.holds.Acquire(ctx, "user-1", 5, seatIDs, 0)
	require.NoError(t, err)
	booking, err := f.bookings.CreateFromHold(ctx, hold.ID, "user-1")
	require.NoError(t, err)
	return hold, booking
}

// pay books seatIDs, initiates a card payment and confirms it.
func (f *fixture) pay(t *testing.T, seatIDs ...uint64) (model.Booking, model.Payment) {
	t.Helper()
	ctx := context.Background()
	_, booking := f.book(t, seatIDs...)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.payments.Confirm(ctx, pay.ID, "txn-"+pay.InvoiceNo))
	return booking, pay
}
