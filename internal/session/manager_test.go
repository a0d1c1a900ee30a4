package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeArchiver struct {
	records []Record
	err     error
}

func (a *fakeArchiver) ArchiveSession(_ context.Context, rec Record) error {
	a.records = append(a.records, rec)
	return a.err
}

func newTestManager() *Manager {
	return NewManager(Options{
		HeartbeatInterval: 10 * time.Millisecond,
		HeartbeatTimeout:  50 * time.Millisecond,
		ReconnectGrace:    time.Minute,
	}, func() Rules { return &stubRules{} })
}

func TestManagerCreateJoinGet(t *testing.T) {
	m := newTestManager()
	sess, err := m.Create(2, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.SessionCount() != 1 {
		t.Fatalf("session count = %d, want 1", m.SessionCount())
	}
	if _, err := m.Get(sess.ID()); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := m.Get(sess.ID() + 99); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get unknown: got %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Join(sess.ID(), "bob", &recListener{id: "b"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := m.Join(sess.ID()+99, "carol", &recListener{id: "c"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("join unknown session: got %v, want ErrSessionNotFound", err)
	}
}

func TestManagerDefaultCapacity(t *testing.T) {
	m := newTestManager()
	sess, err := m.Create(0, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.capacity != MaxCapacity {
		t.Fatalf("capacity = %d, want default %d", sess.capacity, MaxCapacity)
	}
}

func TestHeartbeatForUnknownIgnored(t *testing.T) {
	m := newTestManager()
	m.Heartbeat(42, "ghost")
	if len(m.heartbeats) != 0 {
		t.Fatalf("heartbeat recorded for an unknown session")
	}
	sess, err := m.Create(2, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.Heartbeat(sess.ID(), "ghost")
	if len(m.heartbeats) != 1 {
		t.Fatalf("heartbeat table has %d entries, want only the creator's", len(m.heartbeats))
	}
}

func TestSweepDisconnectsStaleAndArchives(t *testing.T) {
	m := newTestManager()
	arch := &fakeArchiver{}
	m.SetArchiver(arch)

	sess, err := m.Create(2, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Join(sess.ID(), "bob", &recListener{id: "b"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := sess.SetReady("alice"); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := sess.SetReady("bob"); err != nil {
		t.Fatalf("ready: %v", err)
	}

	// both heartbeats are stale well past the timeout: everyone is
	// disconnected, the session ends and the sweep reaps and archives it
	m.sweep(context.Background(), time.Now().Add(time.Minute))

	if sess.Status() != StatusEnded {
		t.Fatalf("status %s after stale sweep, want ended", sess.Status())
	}
	if m.SessionCount() != 0 {
		t.Fatalf("ended session not reaped, count = %d", m.SessionCount())
	}
	if len(m.heartbeats) != 0 {
		t.Fatalf("orphan heartbeats left behind: %d", len(m.heartbeats))
	}
	if len(arch.records) != 1 {
		t.Fatalf("archived %d records, want 1", len(arch.records))
	}
	rec := arch.records[0]
	if rec.SessionID != sess.ID() || rec.Capacity != 2 {
		t.Fatalf("record %+v does not match session", rec)
	}
	if rec.EndedAt.IsZero() {
		t.Fatalf("record missing ended timestamp")
	}
}

func TestReapInvokesTeardownHook(t *testing.T) {
	m := newTestManager()
	var reaped []int
	m.OnSessionReaped(func(id int) { reaped = append(reaped, id) })

	sess, err := m.Create(2, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess.End("test_over")
	m.sweep(context.Background(), time.Now())

	if len(reaped) != 1 || reaped[0] != sess.ID() {
		t.Fatalf("teardown hook got %v, want [%d]", reaped, sess.ID())
	}
	if m.SessionCount() != 0 {
		t.Fatalf("ended session not reaped")
	}
}

func TestSweepKeepsFreshSessions(t *testing.T) {
	m := newTestManager()
	sess, err := m.Create(2, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.sweep(context.Background(), time.Now())
	if m.SessionCount() != 1 {
		t.Fatalf("fresh session reaped")
	}
	if !sess.HasPlayer("alice") {
		t.Fatalf("fresh player disconnected by sweep")
	}
}

func TestMonitorDisconnectsOnTimeout(t *testing.T) {
	m := newTestManager()
	sess, err := m.Create(2, "alice", &recListener{id: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bob := &recListener{id: "b"}
	if _, err := m.Join(sess.ID(), "bob", bob); err != nil {
		t.Fatalf("join: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartMonitor(ctx)

	// only bob keeps beating; alice must time out
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.Heartbeat(sess.ID(), "bob")
		snap := sess.Snapshot()
		offline := false
		for _, p := range snap.Players {
			if p.Nickname == "alice" && !p.Connected {
				offline = true
			}
		}
		if offline {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("monitor never disconnected the silent player")
}
