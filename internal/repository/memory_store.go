package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

type seatKey struct {
	showID uint64
	seatID uint64
}

// MemoryStore keeps every table in process memory.  Transactions run one at
// a time under a single mutex and are undone on error, which gives the same
// all-or-nothing visibility as the MySQL store.  It backs the test suite and
// STORE_DRIVER=memory.
type MemoryStore struct {
	mu sync.Mutex

	seats        map[seatKey]model.SeatInventory
	showSeats    map[uint64][]uint64 // insertion order per show
	holds        map[string]model.Hold
	bookings     map[uint64]model.Booking
	bookingSeats map[uint64][]model.BookingSeat
	payments     map[uint64]model.Payment
	invoices     map[string]uint64
	methods      map[uint64]model.PaymentMethod

	nextBookingID uint64
	nextPaymentID uint64
}

// NewMemoryStore returns an empty store with the given payment methods, or
// DefaultPaymentMethods when none are passed.
func NewMemoryStore(methods ...model.PaymentMethod) *MemoryStore {
	if len(methods) == 0 {
		methods = DefaultPaymentMethods
	}
	s := &MemoryStore{
		seats:        make(map[seatKey]model.SeatInventory),
		showSeats:    make(map[uint64][]uint64),
		holds:        make(map[string]model.Hold),
		bookings:     make(map[uint64]model.Booking),
		bookingSeats: make(map[uint64][]model.BookingSeat),
		payments:     make(map[uint64]model.Payment),
		invoices:     make(map[string]uint64),
		methods:      make(map[uint64]model.PaymentMethod, len(methods)),
	}
	for _, m := range methods {
		s.methods[m.ID] = m
	}
	return s
}

// WithTx runs fn with exclusive access to the store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// memTx records an undo step for every write so a failed unit of work leaves
// the store as it found it.
type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetSeats(_ context.Context, showID uint64, seatIDs []uint64) ([]model.SeatInventory, error) {
	out := make([]model.SeatInventory, 0, len(seatIDs))
	var missing []uint64
	for _, id := range seatIDs {
		row, ok := t.s.seats[seatKey{showID, id}]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, row)
	}
	if len(missing) > 0 {
		return nil, NewSeatError(ErrNotFound, showID, missing)
	}
	return out, nil
}

func (t *memTx) ListSeats(_ context.Context, showID uint64) ([]model.SeatInventory, error) {
	ids := t.s.showSeats[showID]
	out := make([]model.SeatInventory, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.s.seats[seatKey{showID, id}])
	}
	return out, nil
}

func (t *memTx) ListExpiredHolds(_ context.Context, showID uint64, now time.Time) ([]model.SeatInventory, error) {
	var out []model.SeatInventory
	for _, id := range t.s.showSeats[showID] {
		if row := t.s.seats[seatKey{showID, id}]; row.HoldExpired(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *memTx) ListShowsWithExpiredHolds(_ context.Context, now time.Time) ([]uint64, error) {
	seen := make(map[uint64]bool)
	var out []uint64
	for k, row := range t.s.seats {
		if row.HoldExpired(now) && !seen[k.showID] {
			seen[k.showID] = true
			out = append(out, k.showID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *memTx) CompareAndSwap(_ context.Context, row model.SeatInventory, expected uint64, next model.SeatState) error {
	if !next.Consistent() {
		return fmt.Errorf("seat %d: inconsistent state %s: %w", row.SeatID, next.Status, ErrInvalidState)
	}
	k := seatKey{row.ShowID, row.SeatID}
	cur, ok := t.s.seats[k]
	if !ok {
		return NewSeatError(ErrNotFound, row.ShowID, []uint64{row.SeatID})
	}
	if cur.Version != expected {
		return NewSeatError(ErrConcurrencyConflict, row.ShowID, []uint64{row.SeatID})
	}
	upd := cur
	upd.Status = next.Status
	upd.HoldUntil = next.HoldUntil
	upd.HoldID = next.HoldID
	upd.Version++
	t.s.seats[k] = upd
	t.undo = append(t.undo, func() { t.s.seats[k] = cur })
	return nil
}

func (t *memTx) InsertSeats(_ context.Context, showID uint64, seats []model.SeatSpec) error {
	for _, sp := range seats {
		if _, ok := t.s.seats[seatKey{showID, sp.SeatID}]; ok {
			return NewSeatError(ErrConflict, showID, []uint64{sp.SeatID})
		}
	}
	prev := t.s.showSeats[showID]
	for _, sp := range seats {
		k := seatKey{showID, sp.SeatID}
		t.s.seats[k] = model.SeatInventory{
			ShowID:     showID,
			SeatID:     sp.SeatID,
			SeatTypeID: sp.SeatTypeID,
			PriceCents: sp.PriceCents,
			Status:     model.SeatAvailable,
			Version:    1,
		}
		t.undo = append(t.undo, func() { delete(t.s.seats, k) })
		t.s.showSeats[showID] = append(t.s.showSeats[showID], sp.SeatID)
	}
	t.undo = append(t.undo, func() {
		if prev == nil {
			delete(t.s.showSeats, showID)
			return
		}
		t.s.showSeats[showID] = prev
	})
	return nil
}

func (t *memTx) InsertHold(_ context.Context, h model.Hold) error {
	if _, ok := t.s.holds[h.ID]; ok {
		return fmt.Errorf("hold %s: %w", h.ID, ErrConflict)
	}
	h.SeatIDs = append([]uint64(nil), h.SeatIDs...)
	t.s.holds[h.ID] = h
	t.undo = append(t.undo, func() { delete(t.s.holds, h.ID) })
	return nil
}

func (t *memTx) GetHold(_ context.Context, holdID string) (model.Hold, error) {
	h, ok := t.s.holds[holdID]
	if !ok {
		return model.Hold{}, fmt.Errorf("hold %s: %w", holdID, ErrNotFound)
	}
	h.SeatIDs = append([]uint64(nil), h.SeatIDs...)
	return h, nil
}

func (t *memTx) MarkHoldConsumed(_ context.Context, holdID string, bookingID uint64) error {
	h, ok := t.s.holds[holdID]
	if !ok {
		return fmt.Errorf("hold %s: %w", holdID, ErrNotFound)
	}
	if h.Consumed() {
		return fmt.Errorf("hold %s already used by booking %d: %w", holdID, h.BookingID, ErrConcurrencyConflict)
	}
	prev := h
	h.BookingID = bookingID
	t.s.holds[holdID] = h
	t.undo = append(t.undo, func() { t.s.holds[holdID] = prev })
	return nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	prevID := t.s.nextBookingID
	t.s.nextBookingID++
	b.ID = t.s.nextBookingID
	t.s.bookings[b.ID] = *b
	id := b.ID
	t.undo = append(t.undo, func() {
		delete(t.s.bookings, id)
		t.s.nextBookingID = prevID
	})
	return nil
}

func (t *memTx) InsertBookingSeats(_ context.Context, seats []model.BookingSeat) error {
	for _, bs := range seats {
		id := bs.BookingID
		prev := t.s.bookingSeats[id]
		t.s.bookingSeats[id] = append(append([]model.BookingSeat(nil), prev...), bs)
		t.undo = append(t.undo, func() {
			if prev == nil {
				delete(t.s.bookingSeats, id)
				return
			}
			t.s.bookingSeats[id] = prev
		})
	}
	return nil
}

func (t *memTx) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return model.Booking{}, NewBookingError(ErrNotFound, id, 0, "")
	}
	return b, nil
}

func (t *memTx) ListBookingsByUser(_ context.Context, userID string) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (t *memTx) ListBookingSeats(_ context.Context, bookingID uint64) ([]model.BookingSeat, error) {
	return append([]model.BookingSeat(nil), t.s.bookingSeats[bookingID]...), nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, id uint64, from, to model.BookingStatus, at time.Time) error {
	b, ok := t.s.bookings[id]
	if !ok {
		return NewBookingError(ErrNotFound, id, 0, "")
	}
	if b.Status != from {
		return NewBookingError(ErrInvalidState, id, 0, string(b.Status))
	}
	prev := b
	b.Status = to
	b.UpdatedAt = at
	t.s.bookings[id] = b
	t.undo = append(t.undo, func() { t.s.bookings[id] = prev })
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p *model.Payment) error {
	if _, taken := t.s.invoices[p.InvoiceNo]; taken {
		return fmt.Errorf("invoice %s: %w", p.InvoiceNo, ErrConcurrencyConflict)
	}
	prevID := t.s.nextPaymentID
	t.s.nextPaymentID++
	p.ID = t.s.nextPaymentID
	t.s.payments[p.ID] = *p
	t.s.invoices[p.InvoiceNo] = p.ID
	id, inv := p.ID, p.InvoiceNo
	t.undo = append(t.undo, func() {
		delete(t.s.payments, id)
		delete(t.s.invoices, inv)
		t.s.nextPaymentID = prevID
	})
	return nil
}

func (t *memTx) GetPayment(_ context.Context, id uint64) (model.Payment, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return model.Payment{}, NewBookingError(ErrNotFound, 0, id, "")
	}
	return p, nil
}

func (t *memTx) ListPaymentsByBooking(_ context.Context, bookingID uint64) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range t.s.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ListPaymentsBetween(_ context.Context, from, to time.Time, methodID uint64) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range t.s.payments {
		if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}
		if methodID != 0 && p.MethodID != methodID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) UpdatePaymentStatus(_ context.Context, id uint64, from, to model.PaymentStatus, paidAt *time.Time, providerTxnID *string) error {
	p, ok := t.s.payments[id]
	if !ok {
		return NewBookingError(ErrNotFound, 0, id, "")
	}
	if p.Status != from {
		return NewBookingError(ErrInvalidState, p.BookingID, id, string(p.Status))
	}
	prev := p
	p.Status = to
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	if providerTxnID != nil {
		p.ProviderTxnID = providerTxnID
	}
	t.s.payments[id] = p
	t.undo = append(t.undo, func() { t.s.payments[id] = prev })
	return nil
}

func (t *memTx) LastInvoiceNo(_ context.Context, prefix string) (string, error) {
	last := ""
	for inv := range t.s.invoices {
		if strings.HasPrefix(inv, prefix) && inv > last {
			last = inv
		}
	}
	return last, nil
}

func (t *memTx) GetPaymentMethod(_ context.Context, id uint64) (model.PaymentMethod, error) {
	m, ok := t.s.methods[id]
	if !ok {
		return model.PaymentMethod{}, fmt.Errorf("payment method %d: %w", id, ErrNotFound)
	}
	return m, nil
}

func (t *memTx) ListPaymentMethods(_ context.Context) ([]model.PaymentMethod, error) {
	var out []model.PaymentMethod
	for _, m := range t.s.methods {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
