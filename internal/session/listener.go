package session

// Listener is a push subscriber for one connected client. Deliver must be
// at-most-once per call and must not block indefinitely; a returned error is
// interpreted as "this connection is already gone" and causes removal plus
// disconnection of the owning player.
type Listener interface {
	ID() string
	Deliver(Event) error
}

type listenerEntry struct {
	id    string
	owner string
	lis   Listener
}

// ListenerSet holds the live listeners of one session in insertion order.
// Fan-out order follows insertion order so test runs are reproducible.
// All methods are called with the owning session's lock held.
type ListenerSet struct {
	entries []listenerEntry
}

func (s *ListenerSet) Add(owner string, lis Listener) {
	id := lis.ID()
	for _, e := range s.entries {
		if e.id == id {
			return
		}
	}
	s.entries = append(s.entries, listenerEntry{id: id, owner: owner, lis: lis})
}

// RemoveByID removes a single listener, keeping relative order of the rest.
func (s *ListenerSet) RemoveByID(id string) bool {
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveOwner removes every listener registered for the given player and
// returns how many were dropped.
func (s *ListenerSet) RemoveOwner(owner string) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.owner == owner {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}

func (s *ListenerSet) Len() int { return len(s.entries) }

func (s *ListenerSet) snapshot() []listenerEntry {
	out := make([]listenerEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
