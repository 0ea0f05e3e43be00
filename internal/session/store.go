package session

import (
	"sync"
	"time"

	"github.com/consultly/dialog-engine/pkg/logging"
)

// DefaultTTL is the inactivity window after which a context expires.
const DefaultTTL = 30 * time.Minute

// Store is the keyed session-context store. Entries expire after the
// TTL of inactivity; the lazy check on access is the source of truth and
// the periodic sweep only reclaims memory.
type Store struct {
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
}

// entry outlives its context: expiry and Clear only flip present so the
// embedded mutex keeps its identity for any in-flight or waiting unit.
// The sweep reclaims entries nobody references.
type entry struct {
	sync.Mutex
	ctx     Context
	present bool
	refs    int
}

// StoreOption tunes the store.
type StoreOption func(*Store)

// WithTTL overrides the inactivity window.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty session store.
func NewStore(logger *logging.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger,
		entries: map[string]*entry{},
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire takes the per-session lock and returns its release func. The
// whole read-delegate-write unit for one message must run between
// Acquire and release so that near-simultaneous messages for the same
// session cannot interleave.
func (s *Store) Acquire(id string) (release func()) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.refs++
	s.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		s.mu.Lock()
		e.refs--
		s.mu.Unlock()
	}
}

// Get returns the context for id, refreshing its activity timestamp.
// Expired or unknown sessions yield not-found; an expired context is
// dropped on the spot rather than returned stale, while its entry stays
// in the map until the sweep.
func (s *Store) Get(id string) (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !e.present {
		return Context{}, false
	}
	if s.expired(e.ctx.LastActivity) {
		e.ctx = Context{}
		e.present = false
		return Context{}, false
	}
	e.ctx.LastActivity = s.now()
	return e.ctx, true
}

// Create registers a fresh context for id, replacing any prior state.
func (s *Store) Create(id, userID string) Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.ctx = Context{
		SessionID:    id,
		UserID:       userID,
		State:        "idle",
		LastActivity: s.now(),
	}
	e.present = true
	return e.ctx
}

// Update applies partial changes, creating the context if absent or
// expired. Entity sets are unioned, the message counter advances, and
// the activity timestamp is refreshed.
func (s *Store) Update(id string, changes Changes) Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	if !e.present || s.expired(e.ctx.LastActivity) {
		e.ctx = Context{SessionID: id, State: "idle"}
		e.present = true
	}

	if changes.UserID != "" {
		e.ctx.UserID = changes.UserID
	}
	if changes.State != "" {
		e.ctx.State = changes.State
	}
	e.ctx.Entities.merge(changes.Entities)
	if len(changes.LastResults) > 0 {
		e.ctx.LastResults = changes.LastResults
	}
	if changes.ClearBooking {
		e.ctx.Booking = nil
	} else if changes.Booking != nil {
		e.ctx.Booking = changes.Booking
	}
	e.ctx.MessageCount++
	e.ctx.LastActivity = s.now()
	return e.ctx
}

// Clear removes the context for id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.ctx = Context{}
		e.present = false
	}
}

// Len reports how many live contexts the store holds. Expired entries
// not yet lazily checked are counted; only accessors enforce the TTL.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.present {
			n++
		}
	}
	return n
}

// StartSweeper launches the periodic eviction loop. Sessions whose
// per-session lock is held are skipped; the next sweep picks them up.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep evicts every expired entry not currently in use.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if e.refs > 0 {
			// A read-modify-write unit holds or is waiting for the
			// session lock; it will refresh the timestamp before
			// releasing.
			continue
		}
		if !e.present || s.expired(e.ctx.LastActivity) {
			delete(s.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("session sweep evicted entries", "count", evicted)
	}
	return evicted
}

// Close stops the sweeper goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) expired(lastActivity time.Time) bool {
	return s.now().Sub(lastActivity) > s.ttl
}
