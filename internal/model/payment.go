package model

import "time"

// PaymentStatus is the state of one payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// CanTransition reports whether a payment may move from s to next.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentCancelled || next == PaymentFailed
	case PaymentPaid:
		return next == PaymentCancelled
	case PaymentCancelled, PaymentFailed:
		return false
	}
	return false
}

// Payment is a single attempt to pay for a booking.  A booking can have
// several attempts over time but at most one of them is PAID.
//
// Fields:
//  ID            – primary key identifier.
//  BookingID     – booking being paid for.
//  MethodID      – payment method chosen by the customer.
//  Status        – PENDING, PAID, CANCELLED or FAILED.
//  AmountCents   – amount charged.
//  InvoiceNo     – unique human readable invoice number (INV-YYYYMMDD-NNNNN).
//  ProviderTxnID – transaction reference reported by the payment provider.
//  CreatedAt     – creation timestamp.
//  PaidAt        – when the payment was confirmed (nullable).
type Payment struct {
	ID            uint64        `db:"id" json:"payment_id"`                   // payments.id
	BookingID     uint64        `db:"booking_id" json:"booking_id"`           // payments.booking_id
	MethodID      uint64        `db:"method_id" json:"method_id"`             // payments.method_id
	Status        PaymentStatus `db:"status" json:"status"`                   // payments.status
	AmountCents   int64         `db:"amount_cents" json:"amount_cents"`       // payments.amount_cents
	InvoiceNo     string        `db:"invoice_no" json:"invoice_no"`           // payments.invoice_no
	ProviderTxnID *string       `db:"provider_txn_id" json:"provider_txn_id"` // payments.provider_txn_id (nullable)
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`           // payments.created_at
	PaidAt        *time.Time    `db:"paid_at" json:"paid_at"`                 // payments.paid_at (nullable)
}

// PaymentMethod is an entry of the payment_methods lookup table.
type PaymentMethod struct {
	ID     uint64 `db:"id" json:"id"`         // payment_methods.id
	Name   string `db:"name" json:"name"`     // payment_methods.name
	Active bool   `db:"active" json:"active"` // payment_methods.active
}

// RevenuePoint is the paid amount for one UTC day.
type RevenuePoint struct {
	Day         string `db:"day" json:"day"` // YYYY-MM-DD
	AmountCents int64  `db:"amount_cents" json:"amount_cents"`
}

// PaymentSummary aggregates payments created inside a reporting window.
type PaymentSummary struct {
	From            time.Time      `json:"from"`
	To              time.Time      `json:"to"`
	Total           int            `json:"total"`
	Paid            int            `json:"paid"`
	Pending         int            `json:"pending"`
	Cancelled       int            `json:"cancelled"`
	Failed          int            `json:"failed"`
	PaidAmountCents int64          `json:"paid_amount_cents"`
	Revenue         []RevenuePoint `json:"revenue"`
}
