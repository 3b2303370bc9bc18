package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const paymentColumns = `id, booking_id, method_id, status, amount_cents, invoice_no, provider_txn_id, created_at, paid_at`

// InsertPayment writes p and sets p.ID.  invoice_no carries a unique index,
// so two writers that computed the same number collide here.
func (t *sqlTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO payments (booking_id, method_id, status, amount_cents, invoice_no, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.BookingID, p.MethodID, p.Status, p.AmountCents, p.InvoiceNo, p.CreatedAt.UTC())
	if isDuplicate(err) {
		return fmt.Errorf("invoice %s: %w", p.InvoiceNo, ErrConcurrencyConflict)
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

func (t *sqlTx) GetPayment(ctx context.Context, id uint64) (model.Payment, error) {
	var p model.Payment
	err := t.tx.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, NewBookingError(ErrNotFound, 0, id, "")
	}
	return p, err
}

func (t *sqlTx) ListPaymentsByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	var out []model.Payment
	err := t.tx.SelectContext(ctx, &out,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ? ORDER BY id`, bookingID)
	return out, err
}

func (t *sqlTx) ListPaymentsBetween(ctx context.Context, from, to time.Time, methodID uint64) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE created_at >= ? AND created_at < ?`
	args := []interface{}{from.UTC(), to.UTC()}
	if methodID != 0 {
		q += ` AND method_id = ?`
		args = append(args, methodID)
	}
	var out []model.Payment
	err := t.tx.SelectContext(ctx, &out, q+` ORDER BY id`, args...)
	return out, err
}

// UpdatePaymentStatus is a status-gated update; COALESCE keeps paid_at and
// provider_txn_id when no new value is given.
func (t *sqlTx) UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus, paidAt *time.Time, providerTxnID *string) error {
	var paid interface{}
	if paidAt != nil {
		paid = paidAt.UTC()
	}
	var txn interface{}
	if providerTxnID != nil {
		txn = *providerTxnID
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, paid_at = COALESCE(?, paid_at), provider_txn_id = COALESCE(?, provider_txn_id)
		 WHERE id = ? AND status = ?`,
		to, paid, txn, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := t.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		return NewBookingError(ErrInvalidState, cur.BookingID, id, string(cur.Status))
	}
	return nil
}

// LastInvoiceNo locks the greatest invoice of the prefix so concurrent
// writers for the same day queue behind each other.
func (t *sqlTx) LastInvoiceNo(ctx context.Context, prefix string) (string, error) {
	var inv string
	err := t.tx.GetContext(ctx, &inv,
		`SELECT invoice_no FROM payments WHERE invoice_no LIKE ? ORDER BY invoice_no DESC LIMIT 1 FOR UPDATE`,
		prefix+"%")
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return inv, err
}

func (t *sqlTx) GetPaymentMethod(ctx context.Context, id uint64) (model.PaymentMethod, error) {
	var m model.PaymentMethod
	err := t.tx.GetContext(ctx, &m, `SELECT id, name, active FROM payment_methods WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PaymentMethod{}, fmt.Errorf("payment method %d: %w", id, ErrNotFound)
	}
	return m, err
}

func (t *sqlTx) ListPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	var out []model.PaymentMethod
	err := t.tx.SelectContext(ctx, &out, `SELECT id, name, active FROM payment_methods WHERE active = 1 ORDER BY id`)
	return out, err
}
