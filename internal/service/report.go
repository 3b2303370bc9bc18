package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

const (
	defaultSummaryDays = 30
	maxSummaryDays     = 366
)

// SummaryFilter narrows the payment summary.  Days counts back from today
// (UTC, inclusive); MethodID 0 means every method.
type SummaryFilter struct {
	Days     int
	MethodID uint64
}

// Summary counts the payments created in the window by status, totals what
// was paid and breaks paid revenue down per day of payment.
func (p *Payments) Summary(ctx context.Context, f SummaryFilter) (model.PaymentSummary, error) {
	days := f.Days
	if days <= 0 {
		days = defaultSummaryDays
	}
	if days > maxSummaryDays {
		days = maxSummaryDays
	}
	now := p.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := today.AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	var payments []model.Payment
	err := p.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		payments, err = tx.ListPaymentsBetween(ctx, from, to, f.MethodID)
		return err
	})
	if err != nil {
		return model.PaymentSummary{}, err
	}

	sum := model.PaymentSummary{From: from, To: to, Total: len(payments)}
	perDay := make(map[string]int64, days)
	for _, pay := range payments {
		switch pay.Status {
		case model.PaymentPaid:
			sum.Paid++
			sum.PaidAmountCents += pay.AmountCents
			at := pay.CreatedAt
			if pay.PaidAt != nil {
				at = *pay.PaidAt
			}
			perDay[at.UTC().Format("2006-01-02")] += pay.AmountCents
		case model.PaymentPending:
			sum.Pending++
		case model.PaymentCancelled:
			sum.Cancelled++
		case model.PaymentFailed:
			sum.Failed++
		}
	}
	sum.Revenue = make([]model.RevenuePoint, 0, days)
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		sum.Revenue = append(sum.Revenue, model.RevenuePoint{Day: day, AmountCents: perDay[day]})
	}
	return sum, nil
}
