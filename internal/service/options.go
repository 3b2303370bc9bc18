// Package service holds the reservation core: hold acquisition, lazy expiry,
// the booking state machine and the payment flow.  Every multi-row change
// runs inside one repository.Store transaction.
package service

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultHoldTTL is used when a caller does not ask for a specific TTL.
	DefaultHoldTTL = 120 * time.Second
	// DefaultMaxHoldTTL caps caller supplied TTLs.
	DefaultMaxHoldTTL = 15 * time.Minute
)

type settings struct {
	clock    clockwork.Clock
	log      *zap.Logger
	ttl      time.Duration
	maxTTL   time.Duration
	notifier Notifier
}

// Option configures a service.
type Option func(*settings)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option { return func(s *settings) { s.clock = c } }

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.log = l } }

// WithHoldTTL sets the TTL used when a caller passes none.
func WithHoldTTL(d time.Duration) Option { return func(s *settings) { s.ttl = d } }

// WithMaxHoldTTL caps the TTL a caller may ask for.
func WithMaxHoldTTL(d time.Duration) Option { return func(s *settings) { s.maxTTL = d } }

// WithNotifier sets where confirmation and refund events go.
func WithNotifier(n Notifier) Option { return func(s *settings) { s.notifier = n } }

func newSettings(opts []Option) settings {
	s := settings{
		clock:    clockwork.NewRealClock(),
		log:      zap.NewNop(),
		ttl:      DefaultHoldTTL,
		maxTTL:   DefaultMaxHoldTTL,
		notifier: NopNotifier{},
	}
	for _, o := range opts {
		o(&s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.ttl <= 0 {
		s.ttl = DefaultHoldTTL
	}
	if s.maxTTL < s.ttl {
		s.maxTTL = s.ttl
	}
	return s
}

func (s settings) now() time.Time { return s.clock.Now().UTC() }

// dedupe drops zero and repeated ids, keeping the first occurrence order.
func dedupe(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
