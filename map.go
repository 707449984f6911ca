package perthread

// perThreadMap is a linear-probe, open-addressed hash table keyed by
// handle identity, owned exclusively by the goroutine it is attached
// to in the registry (see registry.go). No field here is ever touched
// by more than one goroutine, so none of it is atomic, locked, or
// padded against false sharing: unlike a table shared across
// goroutines, this one never needs to be.
//
// table.length is always a power of two, never smaller than
// initialCapacity. A nil slot is empty; a non-nil slot holds an entry
// that is either live (its weak key still resolves) or stale (it
// doesn't, but the slot hasn't been expunged yet).
type perThreadMap struct {
	table     []*entry
	size      int
	threshold int
}

// initialCapacity is the table length a perThreadMap starts at.
const initialCapacity = 16

// setThreshold maintains a 2/3 load factor, same ratio as the table
// this type's algorithm is grounded on.
func setThreshold(length int) int {
	return length * 2 / 3
}

// nextIndex advances i by one slot, wrapping to 0 at the end of the
// table. Written as a comparison rather than a modulo: a modulo here
// would be an extra division on every probe step for no benefit, since
// i is already known to be in range.
func nextIndex(i, length int) int {
	if i+1 < length {
		return i + 1
	}
	return 0
}

// prevIndex retreats i by one slot, wrapping to the end of the table.
func prevIndex(i, length int) int {
	if i-1 >= 0 {
		return i - 1
	}
	return length - 1
}

// home computes the slot a handle's identity hashes to in a table of
// the given length.
func home(id *handleID, length int) int {
	return int(id.id) & (length - 1)
}

// newPerThreadMap constructs a map initially containing (firstKey,
// firstValue). Maps are created lazily, by Handle.Get or Handle.Set,
// so there is no empty constructor: there is never a reason to build
// one with nothing in it.
func newPerThreadMap(firstKey *handleID, firstValue any) *perThreadMap {
	m := &perThreadMap{table: make([]*entry, initialCapacity)}
	i := home(firstKey, initialCapacity)
	m.table[i] = newEntry(firstKey, firstValue)
	m.size = 1
	m.threshold = setThreshold(initialCapacity)
	return m
}

// getEntry handles only the fast path: a direct hit on a live entry at
// the handle's home slot. Everything else, collisions and staleness
// alike, is relayed to getEntryAfterMiss, so this stays small enough
// to inline.
func (m *perThreadMap) getEntry(id *handleID) (*entry, bool) {
	i := home(id, len(m.table))
	e := m.table[i]
	if e != nil && e.key.Value() == id {
		return e, true
	}
	return m.getEntryAfterMiss(id, i, e)
}

// getEntryAfterMiss walks the run starting at i looking for id. It
// expunges any stale entry it encounters along the way, continuing the
// walk from wherever expungeStaleEntry leaves off rather than simply
// advancing by one, since expunging can itself move later entries in
// the run.
func (m *perThreadMap) getEntryAfterMiss(id *handleID, i int, e *entry) (*entry, bool) {
	length := len(m.table)
	for e != nil {
		k := e.key.Value()
		if k == id {
			return e, true
		}
		if k == nil {
			i = m.expungeStaleEntry(i)
		} else {
			i = nextIndex(i, length)
		}
		e = m.table[i]
	}
	return nil, false
}

// set installs value under id, overwriting any existing binding. A
// fast path on the home slot is deliberately omitted: set is at least
// as likely to be creating a new binding as replacing one, so the fast
// path would miss more often than it hit.
func (m *perThreadMap) set(id *handleID, value any) {
	table := m.table
	length := len(table)
	i := home(id, length)

	e := table[i]
	for e != nil {
		k := e.key.Value()
		if k == id {
			e.value = value
			return
		}
		if k == nil {
			m.replaceStaleEntry(id, value, i)
			return
		}
		i = nextIndex(i, length)
		e = table[i]
	}

	table[i] = newEntry(id, value)
	m.size++
	if !m.cleanSomeSlots(i, m.size) && m.size >= m.threshold {
		m.rehash()
	}
}

// replaceStaleEntry is called when set finds a stale entry while
// searching for id's slot. It installs (id, value) at the correct
// probe position and, as a side effect, expunges every stale entry in
// the run containing staleSlot: stale entries tend to show up in
// clusters as the collector frees references in batches, so cleaning
// the whole run amortizes the cost instead of rehashing one slot at a
// time.
func (m *perThreadMap) replaceStaleEntry(id *handleID, value any, staleSlot int) {
	table := m.table
	length := len(table)
	slotToExpunge := staleSlot

	// Back up to find any earlier stale entry in this run.
	for i := prevIndex(staleSlot, length); table[i] != nil; i = prevIndex(i, length) {
		if table[i].key.Value() == nil {
			slotToExpunge = i
		}
	}

	// Scan forward for id or the end of the run.
	for i := nextIndex(staleSlot, length); table[i] != nil; i = nextIndex(i, length) {
		e := table[i]
		k := e.key.Value()
		if k == id {
			e.value = value

			// Swap the live entry into staleSlot: that's the
			// earliest position in its probe sequence it has ever
			// occupied, which keeps future lookups of id short even
			// as more garbage accumulates elsewhere in the run.
			table[i] = table[staleSlot]
			table[staleSlot] = e

			if slotToExpunge == staleSlot {
				slotToExpunge = i
			}
			m.cleanSomeSlots(m.expungeStaleEntry(slotToExpunge), length)
			return
		}
		if k == nil && slotToExpunge == staleSlot {
			slotToExpunge = i
		}
	}

	// id not found: claim staleSlot for it.
	table[staleSlot].value = nil
	table[staleSlot] = newEntry(id, value)

	if slotToExpunge != staleSlot {
		m.cleanSomeSlots(m.expungeStaleEntry(slotToExpunge), length)
	}
}

// expungeStaleEntry clears the stale entry at staleSlot and then walks
// forward through the rest of its run: every other stale entry it
// finds is cleared too, and every live entry is rehashed in place if
// the slots vacated ahead of it mean it's no longer reachable by
// probing from its home slot. It returns the index of the run's
// trailing empty slot.
func (m *perThreadMap) expungeStaleEntry(staleSlot int) int {
	table := m.table
	length := len(table)

	table[staleSlot].value = nil
	table[staleSlot] = nil
	m.size--

	var i int
	var e *entry
	for i = nextIndex(staleSlot, length); ; i = nextIndex(i, length) {
		e = table[i]
		if e == nil {
			break
		}
		if k := e.key.Value(); k == nil {
			e.value = nil
			table[i] = nil
			m.size--
			continue
		} else if h := home(k, length); h != i {
			table[i] = nil
			for table[h] != nil {
				h = nextIndex(h, length)
			}
			table[h] = e
		}
	}
	return i
}

// cleanSomeSlots scans a logarithmic number of slots after i looking
// for staleness, as a balance between never scanning (fast, but keeps
// garbage around indefinitely) and scanning proportionally to the
// table size on every insert (thorough, but makes some insertions
// O(length)). If it finds a stale slot it expunges the slot's whole
// run and extends the scan, so clustered garbage still gets fully
// cleaned eventually.
func (m *perThreadMap) cleanSomeSlots(i, n int) bool {
	removed := false
	table := m.table
	length := len(table)
	for {
		i = nextIndex(i, length)
		if e := table[i]; e != nil && e.key.Value() == nil {
			n = length
			removed = true
			i = m.expungeStaleEntry(i)
		}
		n >>= 1
		if n == 0 {
			break
		}
	}
	return removed
}

// expungeStaleEntries does one full pass over the table, expunging
// every stale entry it finds.
func (m *perThreadMap) expungeStaleEntries() {
	table := m.table
	for j := range table {
		if e := table[j]; e != nil && e.key.Value() == nil {
			m.expungeStaleEntry(j)
		}
	}
}

// rehash expunges all stale entries, then grows the table if that
// wasn't enough to bring size comfortably under threshold. The lowered
// trigger (threshold - threshold/4, not threshold) avoids oscillation:
// expunging staleness can leave size just under threshold, and without
// the lower bound the very next insert would immediately trigger
// another rehash.
func (m *perThreadMap) rehash() {
	m.expungeStaleEntries()
	if m.size >= m.threshold-m.threshold/4 {
		m.resize()
	}
}

// resize doubles the table length, reinserting every live entry by
// linear probing from its new home slot and dropping (and nulling the
// value of) every entry that turns out to be stale.
func (m *perThreadMap) resize() {
	oldTable := m.table
	newLength := len(oldTable) * 2
	newTable := make([]*entry, newLength)
	count := 0

	for _, e := range oldTable {
		if e == nil {
			continue
		}
		k := e.key.Value()
		if k == nil {
			e.value = nil
			continue
		}
		h := home(k, newLength)
		for newTable[h] != nil {
			h = nextIndex(h, newLength)
		}
		newTable[h] = e
		count++
	}

	m.table = newTable
	m.size = count
	m.threshold = setThreshold(newLength)
	logResize(newLength, count)
}

// remove deletes the binding for id, if one exists, by expunging the
// matched slot. It does not clear the entry's weak key first: Go's
// weak.Pointer has no explicit Clear (unlike the reference type this
// algorithm is grounded on), so dropping the entry's value and slot via
// expungeStaleEntry is itself the invalidation: the entry never holds
// id strongly.
func (m *perThreadMap) remove(id *handleID) {
	table := m.table
	length := len(table)
	for i := home(id, length); table[i] != nil; i = nextIndex(i, length) {
		if table[i].key.Value() == id {
			m.expungeStaleEntry(i)
			return
		}
	}
}

// createInheritedMap builds a new map of the same length and threshold
// as m, seeded from every live entry in m whose handle opted into the
// inheritance protocol (handleID.inherit != nil). Handles that never
// opted in are simply absent from the result. No error is raised for
// them, since skipping is the documented, normal behavior for a base
// handle (see handle.go's childValue).
func (m *perThreadMap) createInheritedMap() *perThreadMap {
	length := len(m.table)
	child := &perThreadMap{
		table:     make([]*entry, length),
		threshold: setThreshold(length),
	}

	for _, e := range m.table {
		if e == nil {
			continue
		}
		key := e.key.Value()
		if key == nil || key.inherit == nil {
			continue
		}
		value, err := key.childValue(e.value)
		if err != nil {
			// key.inherit != nil guarantees childValue succeeds; this
			// branch is structurally unreachable.
			continue
		}
		h := home(key, length)
		for child.table[h] != nil {
			h = nextIndex(h, length)
		}
		child.table[h] = newEntry(key, value)
		child.size++
	}
	return child
}

// MapStats is a point-in-time snapshot of a goroutine's map, exposed
// for diagnostics and tests. It never requires synchronization to
// produce: like every other perThreadMap method, it only runs on the
// map's own goroutine.
type MapStats struct {
	Length    int
	Size      int
	Threshold int
}

// Stats reports m's current table length, occupied-slot count (which
// includes not-yet-expunged stale entries), and resize threshold.
func (m *perThreadMap) Stats() MapStats {
	return MapStats{Length: len(m.table), Size: m.size, Threshold: m.threshold}
}
