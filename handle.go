package perthread

import "sync/atomic"

// handleIncrement is the golden-ratio multiplier for 32-bit Fibonacci
// hashing: the closest odd integer to 2^32/φ. Added to a shared counter
// on every handle construction, it spreads consecutively constructed
// handles' identifiers near-optimally across any power-of-two table
// without a secondary mixing step. Do not change this constant.
const handleIncrement uint32 = 0x61C88647

// nextHandleCounter is the shared, monotonically-advancing source of
// handle identifiers. It wraps silently on overflow.
var nextHandleCounter uint32

// nextHandleID dispenses the next process-unique handle identifier.
func nextHandleID() uint32 {
	return atomic.AddUint32(&nextHandleCounter, handleIncrement)
}

// handleID is the type-erased identity a perThreadMap actually stores.
// Handle[T] wraps one and keeps it alive for as long as the Handle
// itself is reachable; a perThreadMap entry only ever holds a weak
// reference to it (see entry.go).
type handleID struct {
	id uint32

	// inherit is nil for handles that never opted into the inheritance
	// protocol. It is type-erased so the table's inheritance-seeding
	// routine can invoke it without knowing the handle's value type.
	inherit func(parent any) (any, error)
}

// childValue computes the value a child goroutine's map should see for
// this handle, given the parent goroutine's value. It returns
// ErrInheritanceNotSupported if the handle was never constructed with
// NewInheritable; the inheritance-seeding routine in map.go never calls
// this in that case (it checks h.inherit directly), so this path is
// only reachable from code that walks a map's entries itself.
func (h *handleID) childValue(parent any) (any, error) {
	if h.inherit == nil {
		return nil, ErrInheritanceNotSupported
	}
	return h.inherit(parent)
}

// Handle binds a value of type T to every goroutine that touches it,
// independently. Each goroutine that calls Get or Set on a Handle gets
// its own copy, lazily initialized by the handle's producer.
//
// A Handle must be constructed with New, WithInitial, or NewInheritable;
// the zero Handle[T] is not usable.
type Handle[T any] struct {
	id      *handleID
	initial func() T
}

// New creates a handle whose initial value is the zero value of T.
func New[T any]() *Handle[T] {
	return &Handle[T]{
		id:      &handleID{id: nextHandleID()},
		initial: func() T { var zero T; return zero },
	}
}

// WithInitial creates a handle whose initial value is produced by
// calling producer the first time a given goroutine calls Get without
// holding a binding for the handle; a Set before that Get suppresses
// the call. producer must not be nil; WithInitial panics with
// ErrInvalidProducer immediately otherwise.
func WithInitial[T any](producer func() T) *Handle[T] {
	if producer == nil {
		panic(ErrInvalidProducer)
	}
	return &Handle[T]{id: &handleID{id: nextHandleID()}, initial: producer}
}

// NewInheritable creates a handle that opts into the inheritance
// protocol: a goroutine spawned with Go (see routine.go) whose parent
// has a live binding for this handle gets a binding seeded by calling
// child with the parent's value, before the child goroutine's function
// runs. Handles created with New or WithInitial are never inherited.
//
// Both producer and child must be non-nil; NewInheritable panics with
// ErrInvalidProducer otherwise.
func NewInheritable[T any](producer func() T, child func(parent T) T) *Handle[T] {
	if producer == nil || child == nil {
		panic(ErrInvalidProducer)
	}
	id := &handleID{id: nextHandleID()}
	id.inherit = func(parent any) (any, error) {
		return child(parent.(T)), nil
	}
	return &Handle[T]{id: id, initial: producer}
}

// Get returns the calling goroutine's value for this handle, invoking
// the producer and storing its result if this is the first time the
// calling goroutine has asked for it since construction or the last
// Remove. A panic from the producer propagates to the caller unchanged,
// and leaves the map exactly as it was before Get was called: no
// partial entry is ever installed.
func (h *Handle[T]) Get() T {
	g := currentGoroutine()
	m := registryGet(g)
	if m == nil {
		v := h.initial()
		registrySet(g, newPerThreadMap(h.id, v))
		return v
	}
	if e, ok := m.getEntry(h.id); ok {
		return e.value.(T)
	}
	v := h.initial()
	m.set(h.id, v)
	return v
}

// Set stores v as the calling goroutine's value for this handle. It
// suppresses the producer: a subsequent Get on the same goroutine
// returns v, not the result of calling the producer.
func (h *Handle[T]) Set(v T) {
	g := currentGoroutine()
	m := registryGet(g)
	if m == nil {
		registrySet(g, newPerThreadMap(h.id, v))
		return
	}
	m.set(h.id, v)
}

// Remove deletes the calling goroutine's binding for this handle, if
// any. It is a no-op if the goroutine has no map, or the map has no
// binding for this handle. After Remove, the next Get re-invokes the
// producer.
func (h *Handle[T]) Remove() {
	if m := registryGet(currentGoroutine()); m != nil {
		m.remove(h.id)
	}
}
