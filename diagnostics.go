package perthread

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// pkgLogger holds the optional diagnostic logger. It is stored behind
// an atomic.Pointer rather than a plain package variable so SetLogger
// can be called concurrently with goroutines already using the
// package, without a data race on the logger itself. The events it
// guards (registry attach/detach, table resize) happen on arbitrary
// goroutines with no other synchronization between them.
var pkgLogger atomic.Pointer[zerolog.Logger]

func init() {
	nop := zerolog.Nop()
	pkgLogger.Store(&nop)
}

// SetLogger installs l as the destination for this package's
// diagnostic events: registry attach, registry detach, and
// perThreadMap resize. None of these are on the per-operation hot path
// (Get/Set/Remove never log), so the cost of a configured logger is
// bounded to goroutine-lifecycle and table-growth events, not to every
// lookup. Passing zerolog.Nop() (the default) disables diagnostics.
func SetLogger(l zerolog.Logger) {
	pkgLogger.Store(&l)
}

func logResize(newLength, liveEntries int) {
	pkgLogger.Load().Debug().
		Int("length", newLength).
		Int("live_entries", liveEntries).
		Msg("perthread: table resized")
}

func logAttach(goroutineID int64) {
	pkgLogger.Load().Debug().
		Int64("goroutine_id", goroutineID).
		Msg("perthread: map attached")
}

func logDetach(goroutineID int64) {
	pkgLogger.Load().Debug().
		Int64("goroutine_id", goroutineID).
		Msg("perthread: map detached")
}

// CurrentMapStats reports diagnostic stats for the calling goroutine's
// map. The second return value is false if the goroutine has never
// bound a Handle, in which case it has no map yet.
func CurrentMapStats() (MapStats, bool) {
	m := registryGet(currentGoroutine())
	if m == nil {
		return MapStats{}, false
	}
	return m.Stats(), true
}
