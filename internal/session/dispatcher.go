package session

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher fans session events out to the listener set. It is owned by
// exactly one session and is only used with that session's lock held, which
// is what guarantees the per-session total order of Seq values.
//
// A failed delivery removes the listener immediately. The caller receives
// the owners of removed listeners and is responsible for driving the normal
// disconnection path for them as a separate, non-reentrant step.
type Dispatcher struct {
	sessionID int
	listeners ListenerSet
	seq       int64
}

func NewDispatcher(sessionID int) *Dispatcher {
	return &Dispatcher{sessionID: sessionID}
}

func (d *Dispatcher) Register(owner string, lis Listener) {
	d.listeners.Add(owner, lis)
}

func (d *Dispatcher) Deregister(listenerID string) bool {
	return d.listeners.RemoveByID(listenerID)
}

func (d *Dispatcher) DeregisterOwner(owner string) int {
	return d.listeners.RemoveOwner(owner)
}

func (d *Dispatcher) ListenerCount() int { return d.listeners.Len() }

// Broadcast delivers one event to every listener in insertion order and
// returns the owners of listeners that failed delivery, deduplicated.
func (d *Dispatcher) Broadcast(kind Kind, snap Snapshot, data map[string]any) []string {
	ev := d.nextEvent(kind, snap, data)
	return d.deliver(ev, "")
}

// DeliverTo delivers one event to the listeners of a single player. The
// event still consumes a sequence number so streams never reuse one.
func (d *Dispatcher) DeliverTo(owner string, kind Kind, snap Snapshot, data map[string]any) []string {
	ev := d.nextEvent(kind, snap, data)
	return d.deliver(ev, owner)
}

func (d *Dispatcher) nextEvent(kind Kind, snap Snapshot, data map[string]any) Event {
	d.seq++
	return Event{
		Seq:      d.seq,
		Kind:     kind,
		ServerTS: time.Now().UnixMilli(),
		Snapshot: snap,
		Data:     data,
	}
}

func (d *Dispatcher) deliver(ev Event, onlyOwner string) []string {
	var failed []string
	seen := map[string]bool{}
	for _, e := range d.listeners.snapshot() {
		if onlyOwner != "" && e.owner != onlyOwner {
			continue
		}
		if err := e.lis.Deliver(ev); err != nil {
			log.Warn().
				Err(err).
				Int("session_id", d.sessionID).
				Str("listener_id", e.id).
				Str("player", e.owner).
				Str("event", string(ev.Kind)).
				Msg("listener delivery failed, dropping listener")
			d.listeners.RemoveByID(e.id)
			if !seen[e.owner] {
				seen[e.owner] = true
				failed = append(failed, e.owner)
			}
		}
	}
	return failed
}
