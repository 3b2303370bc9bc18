package service

import (
	"context"

	"github.com/iliyamo/cinema-booking-core/internal/queue"
)

// Notifier hands committed booking events to the downstream notification
// and invoice service.  Implementations must not block the caller for long;
// errors are logged by the caller and never undo the committed change.
type Notifier interface {
	BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PaymentRefunded(ctx context.Context, ev queue.PaymentRefundedEvent) error
}

// NopNotifier drops every event.  It is used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) BookingConfirmed(context.Context, queue.BookingConfirmedEvent) error { return nil }
func (NopNotifier) PaymentRefunded(context.Context, queue.PaymentRefundedEvent) error   { return nil }
