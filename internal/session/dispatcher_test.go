package session

import (
	"errors"
	"testing"
)

type failingListener struct {
	id string
}

func (l *failingListener) ID() string          { return l.id }
func (l *failingListener) Deliver(Event) error { return errors.New("gone") }

func TestListenerSetInsertionOrder(t *testing.T) {
	var set ListenerSet
	set.Add("alice", &recListener{id: "1"})
	set.Add("bob", &recListener{id: "2"})
	set.Add("alice", &recListener{id: "3"})
	set.Add("bob", &recListener{id: "2"}) // duplicate id, ignored

	if set.Len() != 3 {
		t.Fatalf("len = %d, want 3", set.Len())
	}
	var ids []string
	for _, e := range set.snapshot() {
		ids = append(ids, e.id)
	}
	want := []string{"1", "2", "3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order %v, want %v", ids, want)
		}
	}

	if !set.RemoveByID("2") {
		t.Fatalf("remove existing id failed")
	}
	if set.RemoveByID("2") {
		t.Fatalf("remove reported success for a missing id")
	}
	if got := set.RemoveOwner("alice"); got != 2 {
		t.Fatalf("removed %d listeners for alice, want 2", got)
	}
	if set.Len() != 0 {
		t.Fatalf("len = %d after removals, want 0", set.Len())
	}
}

func TestDispatcherSequenceAndTargeting(t *testing.T) {
	d := NewDispatcher(7)
	alice := &recListener{id: "a"}
	bob := &recListener{id: "b"}
	d.Register("alice", alice)
	d.Register("bob", bob)

	d.Broadcast(EventPlayerReady, Snapshot{}, nil)
	d.DeliverTo("alice", EventInvalidMove, Snapshot{}, nil)
	d.Broadcast(EventTurnAdvanced, Snapshot{}, nil)

	if len(bob.events) != 2 {
		t.Fatalf("bob saw %d events, want 2", len(bob.events))
	}
	if bob.count(EventInvalidMove) != 0 {
		t.Fatalf("targeted event leaked to another owner")
	}
	if len(alice.events) != 3 {
		t.Fatalf("alice saw %d events, want 3", len(alice.events))
	}
	// targeted events still consume a sequence number
	wantSeqs := []int64{1, 2, 3}
	for i, ev := range alice.events {
		if ev.Seq != wantSeqs[i] {
			t.Fatalf("alice seqs %v, want %v", alice.events, wantSeqs)
		}
	}
	if bob.events[1].Seq != 3 {
		t.Fatalf("bob's second event has seq %d, want 3", bob.events[1].Seq)
	}
}

func TestDispatcherRemovesFailedListeners(t *testing.T) {
	d := NewDispatcher(7)
	good := &recListener{id: "good"}
	d.Register("alice", &failingListener{id: "bad-1"})
	d.Register("alice", &failingListener{id: "bad-2"})
	d.Register("bob", good)

	failed := d.Broadcast(EventPlayerReady, Snapshot{}, nil)
	if len(failed) != 1 || failed[0] != "alice" {
		t.Fatalf("failed owners = %v, want [alice]", failed)
	}
	if d.ListenerCount() != 1 {
		t.Fatalf("listener count = %d, want 1", d.ListenerCount())
	}
	if len(good.events) != 1 {
		t.Fatalf("surviving listener saw %d events, want 1", len(good.events))
	}
}
