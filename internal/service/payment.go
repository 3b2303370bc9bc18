package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/queue"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// Payments drives a booking through its payment attempts.
type Payments struct {
	store repository.Store
	settings
}

// NewPayments returns a payment service over store.
func NewPayments(store repository.Store, opts ...Option) *Payments {
	return &Payments{store: store, settings: newSettings(opts)}
}

// Initiate opens a PENDING payment for a CREATED booking that has no PAID
// payment yet.  The amount is the booking total, or the sum of the seat
// prices when the total was never set.
func (p *Payments) Initiate(ctx context.Context, bookingID, methodID uint64) (model.Payment, error) {
	now := p.now()
	var pay model.Payment
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingCreated {
			return repository.NewBookingError(repository.ErrInvalidState, bookingID, 0, string(booking.Status))
		}
		method, err := tx.GetPaymentMethod(ctx, methodID)
		if err != nil {
			return err
		}
		if !method.Active {
			return fmt.Errorf("payment method %d is disabled: %w", methodID, repository.ErrNotFound)
		}
		existing, err := tx.ListPaymentsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Status == model.PaymentPaid {
				return repository.NewBookingError(repository.ErrInvalidState, bookingID, e.ID, string(e.Status))
			}
		}
		amount := booking.TotalCents
		if amount <= 0 {
			seats, err := tx.ListBookingSeats(ctx, bookingID)
			if err != nil {
				return err
			}
			for _, s := range seats {
				amount += s.UnitPriceCents
			}
		}
		inv, err := nextInvoiceNo(ctx, tx, now)
		if err != nil {
			return err
		}
		pay = model.Payment{
			BookingID:   bookingID,
			MethodID:    methodID,
			Status:      model.PaymentPending,
			AmountCents: amount,
			InvoiceNo:   inv,
			CreatedAt:   now,
		}
		return tx.InsertPayment(ctx, &pay)
	})
	if err != nil {
		return model.Payment{}, err
	}
	p.log.Info("payment initiated",
		zap.Uint64("payment_id", pay.ID),
		zap.Uint64("booking_id", bookingID),
		zap.String("invoice_no", pay.InvoiceNo),
		zap.Int64("amount_cents", pay.AmountCents))
	return pay, nil
}

// Confirm marks a PENDING payment PAID, confirms its booking and sells the
// seats, all in one transaction.  A seat that is no longer held for the
// booking, including one whose hold lapsed during payment, fails the whole
// call with ErrSeatNoLongerHeld and leaves payment and booking untouched.
func (p *Payments) Confirm(ctx context.Context, paymentID uint64, providerTxnID string) error {
	now := p.now()
	var ev queue.BookingConfirmedEvent
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		pay, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.Status != model.PaymentPending {
			return repository.NewBookingError(repository.ErrInvalidState, pay.BookingID, paymentID, string(pay.Status))
		}
		booking, err := tx.GetBooking(ctx, pay.BookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingCreated {
			return repository.NewBookingError(repository.ErrInvalidState, booking.ID, paymentID, string(booking.Status))
		}
		var txn *string
		if providerTxnID != "" {
			txn = &providerTxnID
		}
		if err := tx.UpdatePaymentStatus(ctx, paymentID, model.PaymentPending, model.PaymentPaid, &now, txn); err != nil {
			return err
		}
		if err := transitionBooking(ctx, tx, booking, model.BookingConfirmed, now); err != nil {
			return err
		}
		seats, err := tx.ListBookingSeats(ctx, booking.ID)
		if err != nil {
			return err
		}
		ids := model.SeatIDs(seats)
		rows, err := tx.GetSeats(ctx, booking.ShowID, ids)
		if err != nil {
			return err
		}
		var lost []uint64
		for _, row := range rows {
			if !row.HeldBy(booking.HoldID, now) {
				lost = append(lost, row.SeatID)
			}
		}
		if len(lost) > 0 {
			return repository.NewSeatError(repository.ErrSeatNoLongerHeld, booking.ShowID, lost)
		}
		for _, row := range rows {
			err := tx.CompareAndSwap(ctx, row, row.Version, model.BookedState())
			if errors.Is(err, repository.ErrConcurrencyConflict) {
				return repository.NewSeatError(repository.ErrSeatNoLongerHeld, booking.ShowID, []uint64{row.SeatID})
			}
			if err != nil {
				return err
			}
		}
		ev = queue.BookingConfirmedEvent{
			BookingID:   booking.ID,
			PaymentID:   paymentID,
			UserID:      booking.UserID,
			ShowID:      booking.ShowID,
			SeatIDs:     ids,
			MethodID:    pay.MethodID,
			InvoiceNo:   pay.InvoiceNo,
			AmountCents: pay.AmountCents,
			ConfirmedAt: now.Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Info("payment confirmed",
		zap.Uint64("payment_id", paymentID),
		zap.Uint64("booking_id", ev.BookingID),
		zap.Uint64s("seat_ids", ev.SeatIDs))
	if err := p.notifier.BookingConfirmed(ctx, ev); err != nil {
		p.log.Warn("booking confirmed event not sent", zap.Uint64("booking_id", ev.BookingID), zap.Error(err))
	}
	return nil
}

// CancelPending cancels a PENDING payment.  The seats stay held so the
// customer can retry with another method.
func (p *Payments) CancelPending(ctx context.Context, paymentID uint64) error {
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdatePaymentStatus(ctx, paymentID, model.PaymentPending, model.PaymentCancelled, nil, nil)
	})
	if err != nil {
		return err
	}
	p.log.Info("pending payment cancelled", zap.Uint64("payment_id", paymentID))
	return nil
}

// Fail records a provider decline on a PENDING payment.  Seats are untouched.
func (p *Payments) Fail(ctx context.Context, paymentID uint64, reason string) error {
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdatePaymentStatus(ctx, paymentID, model.PaymentPending, model.PaymentFailed, nil, nil)
	})
	if err != nil {
		return err
	}
	p.log.Info("payment failed", zap.Uint64("payment_id", paymentID), zap.String("reason", reason))
	return nil
}

// CancelPaid refunds a PAID payment: the payment and its booking become
// CANCELLED and every seat goes from BOOKED back to AVAILABLE.
func (p *Payments) CancelPaid(ctx context.Context, paymentID uint64) error {
	now := p.now()
	var ev queue.PaymentRefundedEvent
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		pay, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.Status != model.PaymentPaid {
			return repository.NewBookingError(repository.ErrInvalidState, pay.BookingID, paymentID, string(pay.Status))
		}
		booking, err := tx.GetBooking(ctx, pay.BookingID)
		if err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, paymentID, model.PaymentPaid, model.PaymentCancelled, nil, nil); err != nil {
			return err
		}
		if err := transitionBooking(ctx, tx, booking, model.BookingCancelled, now); err != nil {
			return err
		}
		seats, err := tx.ListBookingSeats(ctx, booking.ID)
		if err != nil {
			return err
		}
		ids := model.SeatIDs(seats)
		rows, err := tx.GetSeats(ctx, booking.ShowID, ids)
		if err != nil {
			return err
		}
		var notBooked []uint64
		for _, row := range rows {
			if row.Status != model.SeatBooked {
				notBooked = append(notBooked, row.SeatID)
			}
		}
		if len(notBooked) > 0 {
			return repository.NewSeatError(repository.ErrInvalidState, booking.ShowID, notBooked)
		}
		for _, row := range rows {
			if err := tx.CompareAndSwap(ctx, row, row.Version, model.AvailableState()); err != nil {
				return err
			}
		}
		ev = queue.PaymentRefundedEvent{
			BookingID:   booking.ID,
			PaymentID:   paymentID,
			UserID:      booking.UserID,
			ShowID:      booking.ShowID,
			SeatIDs:     ids,
			InvoiceNo:   pay.InvoiceNo,
			AmountCents: pay.AmountCents,
			RefundedAt:  now.Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Info("paid payment refunded",
		zap.Uint64("payment_id", paymentID),
		zap.Uint64("booking_id", ev.BookingID),
		zap.Uint64s("seat_ids", ev.SeatIDs))
	if err := p.notifier.PaymentRefunded(ctx, ev); err != nil {
		p.log.Warn("payment refunded event not sent", zap.Uint64("booking_id", ev.BookingID), zap.Error(err))
	}
	return nil
}

// Get returns one payment.
func (p *Payments) Get(ctx context.Context, paymentID uint64) (model.Payment, error) {
	var pay model.Payment
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		pay, err = tx.GetPayment(ctx, paymentID)
		return err
	})
	return pay, err
}

// Methods lists the active payment methods.
func (p *Payments) Methods(ctx context.Context) ([]model.PaymentMethod, error) {
	var out []model.PaymentMethod
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListPaymentMethods(ctx)
		return err
	})
	return out, err
}
