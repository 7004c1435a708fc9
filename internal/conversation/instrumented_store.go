package conversation

import (
	"context"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// maxLoggedKeys bounds the key list attached to a miss log line.
const maxLoggedKeys = 20

// InstrumentedStore logs and counts lookups on top of another Store. A miss
// is logged at warn with the keys the store does know about, which is how a
// reply landing on a different instance than the reminder shows up.
type InstrumentedStore struct {
	Store
	logger  *logging.Logger
	metrics *metrics.ReminderMetrics
}

// NewInstrumentedStore wraps inner. metrics may be nil.
func NewInstrumentedStore(inner Store, logger *logging.Logger, m *metrics.ReminderMetrics) *InstrumentedStore {
	if inner == nil {
		panic("conversation: inner store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InstrumentedStore{Store: inner, logger: logger, metrics: m}
}

func (s *InstrumentedStore) Get(ctx context.Context, phone string) (*Record, error) {
	rec, err := s.Store.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	key, _ := Key(phone)
	if rec != nil {
		s.metrics.ObserveStoreLookup(true)
		s.logger.Debug("conversation found", "phone", key, "event_id", rec.EventID)
		return rec, nil
	}

	s.metrics.ObserveStoreLookup(false)
	var known []string
	if all, listErr := s.Store.List(ctx); listErr == nil {
		known = keysOf(all)
	}
	total := len(known)
	if len(known) > maxLoggedKeys {
		known = known[:maxLoggedKeys]
	}
	s.logger.Warn("no conversation for phone", "phone", key, "raw_phone", phone, "known_count", total, "known_phones", known)
	return nil, nil
}

func (s *InstrumentedStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	removed, err := s.Store.EvictOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("evicted stale conversations", "removed", removed, "age", age.String())
	}
	return removed, nil
}
