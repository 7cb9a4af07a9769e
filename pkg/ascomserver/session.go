package ascomserver

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// InvalidSlot is the slot index returned when a client cannot be admitted.
const InvalidSlot = 0

// Session is a point-in-time view of one client slot.
type Session struct {
	Slot                    int       `json:"slot"`
	ClientID                uint32    `json:"client_id"`
	LastClientTransactionID uint32    `json:"last_client_transaction_id"`
	ServerTransactionID     uint32    `json:"server_transaction_id"`
	Connected               bool      `json:"connected"`
	Requests                uint64    `json:"requests"`
	StartedAt               time.Time `json:"started_at"`
	LastActivity            time.Time `json:"last_activity"`
}

// Valid reports whether the session occupies a real or virtual slot.
func (s Session) Valid() bool {
	return s.Slot != InvalidSlot
}

type clientSlot struct {
	bound         bool
	clientID      uint32
	lastClientTxn uint32
	serverTxn     uint32
	connected     bool
	requests      uint64
	startedAt     time.Time
	lastActivity  time.Time
}

func (cs *clientSlot) snapshot(slot int) Session {
	return Session{
		Slot:                    slot,
		ClientID:                cs.clientID,
		LastClientTransactionID: cs.lastClientTxn,
		ServerTransactionID:     cs.serverTxn,
		Connected:               cs.connected,
		Requests:                cs.requests,
		StartedAt:               cs.startedAt,
		LastActivity:            cs.lastActivity,
	}
}

// touch records a request on a slot.
func (cs *clientSlot) touch(clientTxnID uint32, now time.Time) {
	cs.serverTxn++
	cs.lastClientTxn = clientTxnID
	cs.lastActivity = now
	cs.requests++
}

// SessionRegistry maps remote ClientIDs onto a fixed number of slots.
// Slots are reclaimed lazily: an expired slot is only evicted when a later
// lookup scans the table.
type SessionRegistry struct {
	mu             sync.Mutex
	slots          []clientSlot
	connectionless clientSlot
	timeout        time.Duration
	now            func() time.Time
	gauge          prometheus.Gauge
	logger         *zap.Logger
}

// SessionOption customizes a SessionRegistry.
type SessionOption func(*SessionRegistry)

// WithClock replaces the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(r *SessionRegistry) {
		r.now = now
	}
}

// WithSessionGauge reports the number of bound slots to g.
func WithSessionGauge(g prometheus.Gauge) SessionOption {
	return func(r *SessionRegistry) {
		r.gauge = g
	}
}

// NewSessionRegistry creates a registry with maxClients real slots.
func NewSessionRegistry(maxClients int, timeout time.Duration, logger *zap.Logger, opts ...SessionOption) *SessionRegistry {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &SessionRegistry{
		slots:   make([]clientSlot, maxClients+1),
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "sessions")),
	}
	r.connectionless = clientSlot{bound: true, clientID: ConnectionlessClientID, connected: true}
	for _, opt := range opts {
		opt(r)
	}
	r.connectionless.startedAt = r.now()
	return r
}

// Capacity returns the number of real slots.
func (r *SessionRegistry) Capacity() int {
	return len(r.slots) - 1
}

// ConnectionlessSlot is the virtual slot index used for ConnectionlessClientID.
func (r *SessionRegistry) ConnectionlessSlot() int {
	return len(r.slots)
}

// Resolve finds or creates the session for clientID and records the request.
// It returns a session with Slot == InvalidSlot when clientID is zero or the
// table is full.
func (r *SessionRegistry) Resolve(clientID, clientTxnID uint32) Session {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if clientID == ConnectionlessClientID {
		r.connectionless.touch(clientTxnID, now)
		return r.connectionless.snapshot(r.ConnectionlessSlot())
	}
	if clientID == 0 {
		return Session{Slot: InvalidSlot, LastClientTransactionID: clientTxnID}
	}

	r.evictExpired(now)

	for i := 1; i < len(r.slots); i++ {
		slot := &r.slots[i]
		if slot.bound && slot.clientID == clientID {
			slot.touch(clientTxnID, now)
			return slot.snapshot(i)
		}
	}

	for i := 1; i < len(r.slots); i++ {
		slot := &r.slots[i]
		if slot.bound {
			continue
		}
		slot.bound = true
		slot.clientID = clientID
		slot.connected = false
		slot.requests = 0
		slot.serverTxn = 0
		slot.startedAt = now
		slot.touch(clientTxnID, now)
		r.updateGauge()

		r.logger.Debug("Client bound to slot",
			zap.Uint32("client_id", clientID),
			zap.Int("slot", i))
		return slot.snapshot(i)
	}

	r.logger.Warn("Client table full",
		zap.Uint32("client_id", clientID),
		zap.Int("capacity", r.Capacity()))
	return Session{Slot: InvalidSlot, ClientID: clientID, LastClientTransactionID: clientTxnID}
}

func (r *SessionRegistry) evictExpired(now time.Time) {
	evicted := false
	for i := 1; i < len(r.slots); i++ {
		slot := &r.slots[i]
		if !slot.bound || now.Sub(slot.lastActivity) <= r.timeout {
			continue
		}
		r.logger.Info("Evicting inactive client",
			zap.Uint32("client_id", slot.clientID),
			zap.Int("slot", i),
			zap.Duration("idle", now.Sub(slot.lastActivity)))
		slot.bound = false
		slot.connected = false
		evicted = true
	}
	if evicted {
		r.updateGauge()
	}
}

func (r *SessionRegistry) updateGauge() {
	if r.gauge != nil {
		r.gauge.Set(float64(r.activeLocked()))
	}
}

// SetConnected records the Connected property for a slot. It returns false
// for slots that are not currently bound.
func (r *SessionRegistry) SetConnected(slot int, connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot == r.ConnectionlessSlot() {
		// Connectionless callers are always treated as connected.
		return true
	}
	if slot <= InvalidSlot || slot >= len(r.slots) || !r.slots[slot].bound {
		return false
	}
	r.slots[slot].connected = connected
	return true
}

// Lookup returns the current state of a bound slot.
func (r *SessionRegistry) Lookup(slot int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot == r.ConnectionlessSlot() {
		return r.connectionless.snapshot(slot), true
	}
	if slot <= InvalidSlot || slot >= len(r.slots) || !r.slots[slot].bound {
		return Session{}, false
	}
	return r.slots[slot].snapshot(slot), true
}

// Snapshot returns all bound slots, ordered by slot index.
func (r *SessionRegistry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]Session, 0, len(r.slots))
	for i := 1; i < len(r.slots); i++ {
		if r.slots[i].bound {
			sessions = append(sessions, r.slots[i].snapshot(i))
		}
	}
	return sessions
}

// Active returns the number of bound slots, including ones that have expired
// but not yet been reclaimed.
func (r *SessionRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *SessionRegistry) activeLocked() int {
	n := 0
	for i := 1; i < len(r.slots); i++ {
		if r.slots[i].bound {
			n++
		}
	}
	return n
}
