package session

import (
	"context"
	"sync"
	"time"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/metrics"
	"go.uber.org/zap"
)

type (
	// Manager keeps open sessions by id for request based surfaces
	Manager struct {
		l             *zap.Logger
		store         Store
		ttl           time.Duration
		sweepInterval time.Duration
		now           func() time.Time
		mu            sync.Mutex
		sessions      map[string]*entry
	}
	ManagerOption func(*Manager)

	entry struct {
		mu       sync.Mutex
		mode     Mode
		session  *Session
		lastUsed time.Time
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// ManagerWithTTL closes sessions that have not been used for v, 0 keeps them forever
func ManagerWithTTL(v time.Duration) ManagerOption {
	return func(o *Manager) {
		o.ttl = v
	}
}

func ManagerWithSweepInterval(v time.Duration) ManagerOption {
	return func(o *Manager) {
		o.sweepInterval = v
	}
}

func ManagerWithClock(v func() time.Time) ManagerOption {
	return func(o *Manager) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewManager(l *zap.Logger, store Store, opts ...ManagerOption) *Manager {
	inst := &Manager{
		l:             l.Named("sessions"),
		store:         store,
		ttl:           30 * time.Minute,
		sweepInterval: time.Minute,
		now:           time.Now,
		sessions:      map[string]*entry{},
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Open starts a new session for key
func (m *Manager) Open(ctx context.Context, mode Mode, key string) Snapshot {
	s := Open(ctx, m.store, mode, key)
	// the session is shared once it is in the map
	snapshot := s.Snapshot()

	m.mu.Lock()
	m.sessions[snapshot.ID] = &entry{mode: mode, session: s, lastUsed: m.now()}
	metrics.OpenSessionsGauge.WithLabelValues(string(mode)).Inc()
	m.mu.Unlock()

	m.l.Debug("opened session",
		zap.String("session", snapshot.ID),
		zap.String("key", key),
		zap.String("mode", string(mode)),
	)
	return snapshot
}

// Get returns the current fields of an open session
func (m *Manager) Get(mode Mode, id string) (Snapshot, bool) {
	e, ok := m.entry(mode, id)
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsOpen() {
		return Snapshot{}, false
	}
	e.lastUsed = m.now()
	return e.session.Snapshot(), true
}

// Save applies the edits and saves the session.
// Unknown ids and sessions of another mode are a no-op and report false.
func (m *Manager) Save(ctx context.Context, mode Mode, id, text string, upload *annotation.Upload) (Snapshot, bool, error) {
	e, ok := m.entry(mode, id)
	if !ok {
		return Snapshot{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsOpen() {
		return Snapshot{}, false, nil
	}
	e.lastUsed = m.now()

	s := e.session
	s.SetText(text)
	s.ChooseFile(upload)
	if err := s.Save(ctx); err != nil {
		return s.Snapshot(), true, err
	}
	if !s.IsOpen() {
		m.remove(id, e.mode)
	}
	return s.Snapshot(), true, nil
}

// Close discards the session.
// Unknown ids and sessions of another mode are a no-op and report false.
func (m *Manager) Close(mode Mode, id string) bool {
	e, ok := m.entry(mode, id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsOpen() {
		return false
	}
	e.session.Close()
	m.remove(id, e.mode)
	return true
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run closes idle sessions until ctx is done
func (m *Manager) Run(ctx context.Context) error {
	if m.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	l := m.l.Named("routine.sweep")
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Debug("routine canceled", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				l.Info("closed idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Sweep closes every session idle for longer than the ttl and returns their number
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	deadline := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []string
	for id, e := range m.sessions {
		if e.mu.TryLock() {
			if e.lastUsed.Before(deadline) {
				expired = append(expired, id)
			}
			e.mu.Unlock()
		}
	}
	m.mu.Unlock()

	var n int
	for _, id := range expired {
		if m.expire(id, deadline) {
			n++
		}
	}
	return n
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (m *Manager) entry(mode Mode, id string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.mode != mode {
		return nil, false
	}
	return e, true
}

// expire closes the session unless it was used after deadline in the meantime
func (m *Manager) expire(id string, deadline time.Time) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsOpen() || !e.lastUsed.Before(deadline) {
		return false
	}
	e.session.Close()
	m.remove(id, e.mode)
	return true
}

func (m *Manager) remove(id string, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		metrics.OpenSessionsGauge.WithLabelValues(string(mode)).Dec()
	}
}
