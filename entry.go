package perthread

import "weak"

// entry is a single table slot's payload: a weakly-held handle identity
// plus a strongly-held, type-erased value. A nil *entry in the table
// means the slot is empty, not that it holds a stale entry. Staleness
// is a property of a non-nil entry whose key no longer resolves.
type entry struct {
	key   weak.Pointer[handleID]
	value any
}

// newEntry creates a live entry for id, taking a weak reference to it.
// id must be kept strongly reachable by the caller (normally via the
// Handle that owns it) for the entry to stay live.
func newEntry(id *handleID, value any) *entry {
	return &entry{key: weak.Make(id), value: value}
}

// stale reports whether this entry's key no longer resolves, i.e. the
// Handle that owns id has become unreachable outside of maps.
func (e *entry) stale() bool {
	return e.key.Value() == nil
}
