package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Options are the tunables of the manager and its liveness monitor. The
// monitor keeps the polling model: simple and sufficient, but interval and
// timeout are parameters, not compiled constants.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReconnectGrace    time.Duration
	DefaultCapacity   int
}

func (o *Options) fillDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 500 * time.Millisecond
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 4 * time.Second
	}
	if o.ReconnectGrace <= 0 {
		o.ReconnectGrace = 30 * time.Second
	}
	if o.DefaultCapacity < MinCapacity || o.DefaultCapacity > MaxCapacity {
		o.DefaultCapacity = MaxCapacity
	}
}

// Archiver persists the outcome of an ended session. Archival is best
// effort: failures are logged, never propagated into the session path.
type Archiver interface {
	ArchiveSession(ctx context.Context, rec Record) error
}

// Record is what survives a session once it is torn down.
type Record struct {
	SessionID int
	Capacity  int
	Ranking   []Score
	StartedAt time.Time
	EndedAt   time.Time
}

type heartbeatRecord struct {
	sessionID int
	nickname  string
	lastSeen  time.Time
}

// Manager owns every live session in the process: an explicit registry with
// construction and teardown instead of hidden shared instances. It also
// holds the process-wide heartbeat table scanned by the single monitor
// goroutine.
type Manager struct {
	opts     Options
	newRules func() Rules
	archiver Archiver
	onReap   func(sessionID int)

	mu         sync.Mutex
	sessions   map[int]*Session
	nextID     int
	heartbeats map[string]*heartbeatRecord
}

func NewManager(opts Options, newRules func() Rules) *Manager {
	opts.fillDefaults()
	return &Manager{
		opts:       opts,
		newRules:   newRules,
		sessions:   map[int]*Session{},
		heartbeats: map[string]*heartbeatRecord{},
	}
}

// SetArchiver wires the optional result store. Call before StartMonitor.
func (m *Manager) SetArchiver(a Archiver) { m.archiver = a }

// OnSessionReaped registers the teardown hook invoked after an ended session
// is removed from the registry, so transports can release per-session
// resources they hold outside it. Call before StartMonitor.
func (m *Manager) OnSessionReaped(fn func(sessionID int)) { m.onReap = fn }

// Create builds a session and joins the creator to it.
func (m *Manager) Create(capacity int, nickname string, lis Listener) (*Session, error) {
	if capacity <= 0 {
		capacity = m.opts.DefaultCapacity
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	sess := New(id, capacity, m.opts.ReconnectGrace, m.newRules())
	m.sessions[id] = sess
	m.mu.Unlock()

	if err := sess.Join(nickname, lis); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, err
	}
	m.Heartbeat(id, nickname)
	log.Info().Int("session_id", id).Int("capacity", sess.capacity).Str("creator", nickname).Msg("session created")
	return sess, nil
}

func (m *Manager) Get(id int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[id]
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Join adds or reconnects a player to an existing session and seeds their
// heartbeat record.
func (m *Manager) Join(id int, nickname string, lis Listener) (*Session, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := sess.Join(nickname, lis); err != nil {
		return nil, err
	}
	m.Heartbeat(id, nickname)
	return sess, nil
}

// Heartbeat refreshes the liveness timestamp for a joined player. Beats for
// unknown sessions or players are ignored, they can legitimately arrive
// before a join completes or after a teardown.
func (m *Manager) Heartbeat(id int, nickname string) {
	m.mu.Lock()
	sess := m.sessions[id]
	m.mu.Unlock()
	if sess == nil || !sess.HasPlayer(nickname) {
		return
	}
	key := heartbeatKey(id, nickname)
	now := time.Now()
	m.mu.Lock()
	if rec := m.heartbeats[key]; rec != nil {
		rec.lastSeen = now
	} else {
		m.heartbeats[key] = &heartbeatRecord{sessionID: id, nickname: nickname, lastSeen: now}
	}
	m.mu.Unlock()
}

// DropHeartbeat removes a player's record, used when a player leaves or a
// transport deregisters cleanly.
func (m *Manager) DropHeartbeat(id int, nickname string) {
	m.mu.Lock()
	delete(m.heartbeats, heartbeatKey(id, nickname))
	m.mu.Unlock()
}

// StartMonitor runs the single per-process liveness loop until ctx is done.
func (m *Manager) StartMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.sweep(ctx, now)
			}
		}
	}()
}

// sweep is one monitor tick: stale heartbeats become disconnections, grace
// deadlines are enforced, ended sessions are archived and torn down. Each
// session is handled on its own; one failing never stops the scan.
func (m *Manager) sweep(ctx context.Context, now time.Time) {
	type stale struct {
		sess     *Session
		nickname string
	}
	var stales []stale
	m.mu.Lock()
	for key, rec := range m.heartbeats {
		if now.Sub(rec.lastSeen) <= m.opts.HeartbeatTimeout {
			continue
		}
		delete(m.heartbeats, key)
		if sess := m.sessions[rec.sessionID]; sess != nil {
			stales = append(stales, stale{sess: sess, nickname: rec.nickname})
		}
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, st := range stales {
		log.Info().Int("session_id", st.sess.ID()).Str("player", st.nickname).Msg("heartbeat timeout, disconnecting")
		_ = st.sess.MarkDisconnected(st.nickname)
	}
	for _, sess := range sessions {
		sess.SweepGrace(now)
	}
	m.reapEnded(ctx)
}

func (m *Manager) reapEnded(ctx context.Context) {
	var ended []*Session
	m.mu.Lock()
	for id, sess := range m.sessions {
		if !sess.Ended() {
			continue
		}
		delete(m.sessions, id)
		ended = append(ended, sess)
	}
	if len(ended) > 0 {
		for key, rec := range m.heartbeats {
			if m.sessions[rec.sessionID] == nil {
				delete(m.heartbeats, key)
			}
		}
	}
	m.mu.Unlock()

	if m.onReap != nil {
		for _, sess := range ended {
			m.onReap(sess.ID())
		}
	}
	if m.archiver == nil {
		return
	}
	for _, sess := range ended {
		rec := Record{
			SessionID: sess.ID(),
			Capacity:  sess.capacity,
			Ranking:   sess.Ranking(),
			StartedAt: sess.StartedAt(),
			EndedAt:   sess.EndedAt(),
		}
		if err := m.archiver.ArchiveSession(ctx, rec); err != nil {
			log.Warn().Err(err).Int("session_id", rec.SessionID).Msg("session archive failed")
		}
	}
}

// SessionCount is used by health reporting.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func heartbeatKey(id int, nickname string) string {
	return fmt.Sprintf("%d/%s", id, nickname)
}
