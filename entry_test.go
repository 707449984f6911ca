package perthread

import (
	"runtime"
	"testing"
)

func TestEntry_StaleWhileKeyReachable(t *testing.T) {
	id := &handleID{id: 1}
	e := newEntry(id, "bound")
	if e.stale() {
		t.Fatal("entry reported stale while its key is still reachable")
	}
	if e.key.Value() != id {
		t.Fatalf("key did not resolve to the original handleID: %v", e.key.Value())
	}
}

func TestEntry_StaleAfterKeyUnreachable(t *testing.T) {
	var e *entry
	func() {
		id := &handleID{id: 2}
		e = newEntry(id, "bound")
	}()

	// id is no longer reachable from anywhere but e.key, which is weak.
	for i := 0; i < 100 && !e.stale(); i++ {
		runtime.GC()
	}
	if !e.stale() {
		t.Fatal("entry did not go stale after its only strong reference was dropped")
	}
}

func TestEntry_ValueSurvivesKeyBecomingStale(t *testing.T) {
	var e *entry
	func() {
		id := &handleID{id: 3}
		e = newEntry(id, "still here")
	}()
	for i := 0; i < 100 && !e.stale(); i++ {
		runtime.GC()
	}
	if e.value != "still here" {
		t.Fatalf("value was cleared before expunge ran: %v", e.value)
	}
}
