package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

// invoicePrefix returns the per-day prefix, e.g. "INV-20250102-".
func invoicePrefix(day time.Time) string {
	return "INV-" + day.UTC().Format("20060102") + "-"
}

// nextInvoiceNo numbers invoices per UTC day: INV-YYYYMMDD-00001 and up.
func nextInvoiceNo(ctx context.Context, tx repository.Payments, now time.Time) (string, error) {
	prefix := invoicePrefix(now)
	last, err := tx.LastInvoiceNo(ctx, prefix)
	if err != nil {
		return "", err
	}
	seq := 1
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil {
			return "", fmt.Errorf("malformed invoice number %q: %w", last, err)
		}
		seq = n + 1
	}
	return fmt.Sprintf("%s%05d", prefix, seq), nil
}
