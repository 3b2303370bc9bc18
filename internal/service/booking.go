package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// Bookings turns holds into bookings and owns the booking state machine.
type Bookings struct {
	store repository.Store
	settings
}

// NewBookings returns a booking service over store.
func NewBookings(store repository.Store, opts ...Option) *Bookings {
	return &Bookings{store: store, settings: newSettings(opts)}
}

// CreateFromHold books the seats of a hold for userID, who must own the hold
// (ErrForbidden otherwise).  A hold already turned into a booking gives
// ErrConcurrencyConflict.  Every seat must still be HELD by this hold and not
// lapsed, otherwise ErrHoldExpired is returned and nothing is written.  The
// seats stay HELD until payment succeeds.
func (b *Bookings) CreateFromHold(ctx context.Context, holdID, userID string) (model.Booking, error) {
	if holdID == "" || userID == "" {
		return model.Booking{}, fmt.Errorf("hold id and user id are required: %w", repository.ErrInvalidArgument)
	}
	now := b.now()
	var booking model.Booking
	err := b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		hold, err := tx.GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if hold.UserID != userID {
			return fmt.Errorf("hold %s: %w", holdID, repository.ErrForbidden)
		}
		// A second booking on the same hold lost the race to the first one.
		if hold.Consumed() {
			return fmt.Errorf("hold %s used by booking %d: %w", holdID, hold.BookingID, repository.ErrConcurrencyConflict)
		}
		rows, err := tx.GetSeats(ctx, hold.ShowID, hold.SeatIDs)
		if err != nil {
			return err
		}
		var lapsed []uint64
		for _, row := range rows {
			if !row.HeldBy(holdID, now) {
				lapsed = append(lapsed, row.SeatID)
			}
		}
		if len(lapsed) > 0 {
			return repository.NewSeatError(repository.ErrHoldExpired, hold.ShowID, lapsed)
		}
		// Rewriting the unchanged state bumps the version, so two bookings
		// racing on one hold cannot both commit.
		var total int64
		for _, row := range rows {
			if err := tx.CompareAndSwap(ctx, row, row.Version, row.State()); err != nil {
				return err
			}
			total += row.PriceCents
		}
		booking = model.Booking{
			ShowID:         hold.ShowID,
			UserID:         userID,
			HoldID:         holdID,
			Status:         model.BookingCreated,
			TicketQuantity: len(rows),
			TotalCents:     total,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertBooking(ctx, &booking); err != nil {
			return err
		}
		if err := tx.MarkHoldConsumed(ctx, holdID, booking.ID); err != nil {
			return err
		}
		seats := make([]model.BookingSeat, 0, len(rows))
		for _, row := range rows {
			seats = append(seats, model.BookingSeat{
				BookingID:      booking.ID,
				ShowID:         row.ShowID,
				SeatID:         row.SeatID,
				UnitPriceCents: row.PriceCents,
			})
		}
		return tx.InsertBookingSeats(ctx, seats)
	})
	if err != nil {
		return model.Booking{}, err
	}
	b.log.Info("booking created",
		zap.Uint64("booking_id", booking.ID),
		zap.String("hold_id", holdID),
		zap.Uint64("show_id", booking.ShowID),
		zap.Int64("total_cents", booking.TotalCents))
	return booking, nil
}

// Cancel cancels a booking that has not been paid and frees the seats its
// hold still owns.  Pending payments of the booking are cancelled too.  A
// confirmed booking can only be cancelled by refunding its payment.
func (b *Bookings) Cancel(ctx context.Context, bookingID uint64) error {
	now := b.now()
	var released []uint64
	err := b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingCreated {
			return repository.NewBookingError(repository.ErrInvalidTransition, bookingID, 0, string(booking.Status))
		}
		if err := transitionBooking(ctx, tx, booking, model.BookingCancelled, now); err != nil {
			return err
		}
		payments, err := tx.ListPaymentsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status != model.PaymentPending {
				continue
			}
			if err := tx.UpdatePaymentStatus(ctx, p.ID, model.PaymentPending, model.PaymentCancelled, nil, nil); err != nil {
				return err
			}
		}
		seats, err := tx.ListBookingSeats(ctx, bookingID)
		if err != nil {
			return err
		}
		released, err = releaseOwned(ctx, tx, booking.ShowID, model.SeatIDs(seats), booking.HoldID)
		return err
	})
	if err != nil {
		return err
	}
	b.log.Info("booking cancelled", zap.Uint64("booking_id", bookingID), zap.Uint64s("released", released))
	return nil
}

// Get returns a booking with its seats and payment attempts.
func (b *Bookings) Get(ctx context.Context, bookingID uint64) (model.BookingDetail, error) {
	var d model.BookingDetail
	err := b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		seats, err := tx.ListBookingSeats(ctx, bookingID)
		if err != nil {
			return err
		}
		payments, err := tx.ListPaymentsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		d = model.BookingDetail{Booking: booking, Seats: seats, Payments: payments}
		return nil
	})
	return d, err
}

// ListByUser returns the user's bookings, newest first.
func (b *Bookings) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	var out []model.Booking
	err := b.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListBookingsByUser(ctx, userID)
		return err
	})
	return out, err
}

// transitionBooking applies one step of the booking state machine.
func transitionBooking(ctx context.Context, tx repository.Tx, booking model.Booking, to model.BookingStatus, now time.Time) error {
	if !booking.Status.CanTransition(to) {
		return repository.NewBookingError(repository.ErrInvalidTransition, booking.ID, 0, string(booking.Status))
	}
	return tx.UpdateBookingStatus(ctx, booking.ID, booking.Status, to, now)
}
