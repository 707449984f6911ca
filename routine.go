package perthread

// Go starts fn in a new goroutine, seeding its map from the calling
// goroutine's bindings before fn runs: every live binding whose handle
// opted into inheritance is copied in, transformed by that handle's
// child-value hook. Handles that never opted in are simply absent from
// the child, same as if the child had never touched them.
//
// The inheritance snapshot is taken on the calling goroutine, before
// the new goroutine starts, not inside it: a perThreadMap is touched by
// exactly one goroutine at a time, and the new goroutine hasn't started
// yet while the parent might still be calling Set or Get on its own
// map. Reading the parent's map concurrently with the child would
// violate that single-owner invariant the same way two arbitrary
// goroutines racing on it would.
//
// When fn returns (normally or by panicking), Go removes the child
// goroutine's registry slot so it doesn't outlive the goroutine. A
// goroutine started with plain `go fn()` instead of this launcher gets
// no such guarantee: its slot, if it ever creates one, stays in the
// registry until something calls Detach from inside it or the process
// exits. Individual handle bindings are still reclaimed via their weak
// references regardless of how the goroutine was started; only the
// registry slot itself needs this launcher (or Detach) to go away
// deterministically.
func Go(fn func()) {
	parent := registryGet(currentGoroutine())

	var inherited *perThreadMap
	if parent != nil {
		if snapshot := parent.createInheritedMap(); snapshot.size > 0 {
			inherited = snapshot
		}
	}

	go func() {
		child := currentGoroutine()
		defer defaultRegistry.delete(child)

		if inherited != nil {
			registrySet(child, inherited)
		}
		fn()
	}()
}

// Detach removes the calling goroutine's map from the registry
// immediately, discarding every binding it held. It is the manual
// escape hatch for goroutines that cannot use Go, most commonly a
// worker-pool goroutine that is about to be parked and reused, and
// wants a clean slate for whichever task picks it up next.
//
// Detach is a no-op if the calling goroutine has no map.
func Detach() {
	defaultRegistry.delete(currentGoroutine())
}
