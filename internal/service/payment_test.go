package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// Hold A1 and A2 of show 5 for 120s, book, pay by card.
func TestHoldBookPay(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	hold, err := f.holds.Acquire(ctx, "user-1", 5, []uint64{1, 2}, 120*time.Second)
	require.NoError(t, err)
	booking, err := f.bookings.CreateFromHold(ctx, hold.ID, "user-1")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, pay.Status)
	assert.Equal(t, int64(3000), pay.AmountCents)
	assert.Equal(t, "INV-20260310-00001", pay.InvoiceNo)

	require.NoError(t, f.payments.Confirm(ctx, pay.ID, "txn-1"))

	assert.Equal(t, model.SeatBooked, f.seat(t, 5, 1).Status)
	assert.Equal(t, model.SeatBooked, f.seat(t, 5, 2).Status)
	assert.Empty(t, f.seat(t, 5, 1).HoldID)
	assert.Equal(t, model.SeatAvailable, f.seat(t, 5, 3).Status)

	d, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, d.Status)
	require.Len(t, d.Payments, 1)
	paid := d.Payments[0]
	assert.Equal(t, model.PaymentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, testStart.Add(30*time.Second), *paid.PaidAt)
	require.NotNil(t, paid.ProviderTxnID)
	assert.Equal(t, "txn-1", *paid.ProviderTxnID)

	require.Len(t, f.notifier.confirmed, 1)
	ev := f.notifier.confirmed[0]
	assert.Equal(t, booking.ID, ev.BookingID)
	assert.Equal(t, pay.ID, ev.PaymentID)
	assert.Equal(t, []uint64{1, 2}, ev.SeatIDs)
	assert.Equal(t, "INV-20260310-00001", ev.InvoiceNo)
	assert.Equal(t, "user-1", ev.UserID)

	// booked seats are no longer acquirable
	_, err = f.holds.Acquire(ctx, "user-1", 5, []uint64{2}, 0)
	assert.ErrorIs(t, err, repository.ErrSeatUnavailable)
}

// A hold that lapses while the customer pays fails confirmation and
// changes nothing.
func TestConfirm_HoldLapsedDuringPayment(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	hold, err := f.holds.Acquire(ctx, "user-1", 5, []uint64{1, 2}, 10*time.Second)
	require.NoError(t, err)
	booking, err := f.bookings.CreateFromHold(ctx, hold.ID, "user-1")
	require.NoError(t, err)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Second)

	err = f.payments.Confirm(ctx, pay.ID, "txn-1")
	require.ErrorIs(t, err, repository.ErrSeatNoLongerHeld)
	var se *repository.SeatError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []uint64{1, 2}, se.SeatIDs)

	d, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCreated, d.Status)
	assert.Equal(t, model.PaymentPending, d.Payments[0].Status)
	assert.Nil(t, d.Payments[0].PaidAt)
	assert.Equal(t, model.SeatHeld, f.seat(t, 5, 1).Status)
	assert.Empty(t, f.notifier.confirmed)
}

func TestConfirm_SeatTakenByAnotherHold(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	hold, err := f.holds.Acquire(ctx, "user-1", 5, []uint64{1, 2}, time.Second)
	require.NoError(t, err)
	booking, err := f.bookings.CreateFromHold(ctx, hold.ID, "user-1")
	require.NoError(t, err)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	other, err := f.holds.Acquire(ctx, "user-1", 5, []uint64{2}, 0)
	require.NoError(t, err)

	err = f.payments.Confirm(ctx, pay.ID, "")
	require.ErrorIs(t, err, repository.ErrSeatNoLongerHeld)
	assert.True(t, f.seat(t, 5, 2).HeldBy(other.ID, f.clock.Now()))
}

func TestConfirm_LostRaceRollsBack(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	_, booking := f.book(t, 1, 2)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)

	f.store.inject(1)
	err = f.payments.Confirm(ctx, pay.ID, "txn-1")
	require.ErrorIs(t, err, repository.ErrSeatNoLongerHeld)

	got, err := f.payments.Get(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.Status)
	assert.Nil(t, got.ProviderTxnID)
	d, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCreated, d.Status)
	assert.Equal(t, model.SeatHeld, f.seat(t, 5, 1).Status)
	assert.Equal(t, model.SeatHeld, f.seat(t, 5, 2).Status)
}

func TestConfirm_NotifierFailureDoesNotUndo(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	f.notifier.err = errors.New("broker down")

	booking, _ := f.pay(t, 1)

	d, err := f.bookings.Get(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, d.Status)
	assert.Len(t, f.notifier.confirmed, 1)
}

func TestConfirm_Twice(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	_, pay := f.pay(t, 1)

	err := f.payments.Confirm(context.Background(), pay.ID, "again")
	require.ErrorIs(t, err, repository.ErrInvalidState)
	var be *repository.BookingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, string(model.PaymentPaid), be.Status)
}

// Refunding a paid payment returns every seat it sold.
func TestCancelPaid_RestoresSeats(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	booking, pay := f.pay(t, 1, 2)
	require.NoError(t, f.payments.CancelPaid(ctx, pay.ID))

	for _, id := range []uint64{1, 2} {
		row := f.seat(t, 5, id)
		assert.Equal(t, model.SeatAvailable, row.Status)
		assert.Nil(t, row.HoldUntil)
	}
	d, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, d.Status)
	assert.Equal(t, model.PaymentCancelled, d.Payments[0].Status)

	require.Len(t, f.notifier.refunded, 1)
	assert.Equal(t, []uint64{1, 2}, f.notifier.refunded[0].SeatIDs)

	_, err = f.holds.Acquire(ctx, "user-1", 5, []uint64{1, 2}, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, f.payments.CancelPaid(ctx, pay.ID), repository.ErrInvalidState)
}

func TestCancelPaid_PendingRejected(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()
	_, booking := f.book(t, 1)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, f.payments.CancelPaid(ctx, pay.ID), repository.ErrInvalidState)
	assert.Equal(t, model.SeatHeld, f.seat(t, 5, 1).Status)
}

func TestCancelPending_ThenRetry(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()
	_, booking := f.book(t, 1)

	first, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.payments.CancelPending(ctx, first.ID))
	assert.Equal(t, model.SeatHeld, f.seat(t, 5, 1).Status)
	assert.ErrorIs(t, f.payments.CancelPending(ctx, first.ID), repository.ErrInvalidState)

	second, err := f.payments.Initiate(ctx, booking.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "INV-20260310-00002", second.InvoiceNo)
	require.NoError(t, f.payments.Confirm(ctx, second.ID, ""))

	// a paid booking takes no further attempts
	_, err = f.payments.Initiate(ctx, booking.ID, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
}

func TestFail(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()
	_, booking := f.book(t, 1)
	pay, err := f.payments.Initiate(ctx, booking.ID, 3)
	require.NoError(t, err)

	require.NoError(t, f.payments.Fail(ctx, pay.ID, "card declined"))
	got, err := f.payments.Get(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, got.Status)
	assert.Equal(t, model.SeatHeld, f.seat(t, 5, 1).Status)

	assert.ErrorIs(t, f.payments.Fail(ctx, pay.ID, "again"), repository.ErrInvalidState)
	assert.ErrorIs(t, f.payments.Confirm(ctx, pay.ID, ""), repository.ErrInvalidState)
}

func TestInitiate_Rules(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	_, err := f.payments.Initiate(ctx, 999, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, booking := f.book(t, 1)
	_, err = f.payments.Initiate(ctx, booking.ID, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, f.bookings.Cancel(ctx, booking.ID))
	_, err = f.payments.Initiate(ctx, booking.ID, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
}

func TestInitiate_InactiveMethod(t *testing.T) {
	f := newFixture(t)
	f.mem = repository.NewMemoryStore(
		model.PaymentMethod{ID: 1, Name: "Card", Active: true},
		model.PaymentMethod{ID: 9, Name: "Retired", Active: false},
	)
	f.store.inner = f.mem
	f.schedule(t, 5)
	_, booking := f.book(t, 1)

	_, err := f.payments.Initiate(context.Background(), booking.ID, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	methods, err := f.payments.Methods(context.Background())
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "Card", methods[0].Name)
}

func TestInvoiceNumbering(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, 5)
	ctx := context.Background()

	var got []string
	for _, seat := range []uint64{1, 2} {
		_, booking := f.book(t, seat)
		pay, err := f.payments.Initiate(ctx, booking.ID, 1)
		require.NoError(t, err)
		got = append(got, pay.InvoiceNo)
	}
	f.clock.Advance(24 * time.Hour)
	_, booking := f.book(t, 3)
	pay, err := f.payments.Initiate(ctx, booking.ID, 1)
	require.NoError(t, err)
	got = append(got, pay.InvoiceNo)

	assert.Equal(t, []string{"INV-20260310-00001", "INV-20260310-00002", "INV-20260311-00001"}, got)
}

func TestNextInvoiceNoMalformed(t *testing.T) {
	mem := repository.NewMemoryStore()
	err := mem.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.InsertPayment(ctx, &model.Payment{InvoiceNo: "INV-20260310-abc"}))
		_, err := nextInvoiceNo(ctx, tx, testStart)
		return err
	})
	assert.Error(t, err)
	assert.Equal(t, "INV-20260310-", invoicePrefix(testStart.Add(14*time.Hour)))
}
