// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer that move them.
package queue

const (
	// BookingConfirmedQueue receives an event for every confirmed payment.
	BookingConfirmedQueue = "booking.confirmed"
	// PaymentRefundedQueue receives an event for every refunded payment.
	PaymentRefundedQueue = "payment.refunded"
)

// BookingConfirmedEvent is published when a payment is confirmed and the
// booking's seats are sold.  It contains enough information for downstream
// consumers to send a confirmation or render an invoice without querying
// the primary database.
type BookingConfirmedEvent struct {
	BookingID   uint64   `json:"booking_id"`
	PaymentID   uint64   `json:"payment_id"`
	UserID      string   `json:"user_id"`
	ShowID      uint64   `json:"show_id"`
	SeatIDs     []uint64 `json:"seat_ids"`
	MethodID    uint64   `json:"method_id"`
	InvoiceNo   string   `json:"invoice_no"`
	AmountCents int64    `json:"amount_cents"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// PaymentRefundedEvent is published when a paid payment is cancelled and its
// seats return to sale.
type PaymentRefundedEvent struct {
	BookingID   uint64   `json:"booking_id"`
	PaymentID   uint64   `json:"payment_id"`
	UserID      string   `json:"user_id"`
	ShowID      uint64   `json:"show_id"`
	SeatIDs     []uint64 `json:"seat_ids"`
	InvoiceNo   string   `json:"invoice_no"`
	AmountCents int64    `json:"amount_cents"`
	RefundedAt  string   `json:"refunded_at"`
}
