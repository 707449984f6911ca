package perthread

import (
	"runtime"
	"strconv"
)

// currentGoroutine returns an identifier for the calling goroutine.
//
// Go deliberately exposes no public API for this (the runtime.g
// pointer is reachable only through go:linkname tricks that have
// broken across releases before, and an exported goroutine-ID API has
// been proposed and rejected upstream more than once). The portable
// fallback every goroutine-local-storage shim in the wild converges on
// is parsing the header of the goroutine's own stack trace, which is
// stable public-ish text: "goroutine 123 [running]:\n...". That's what
// this does.
//
// This is not cheap: it allocates a small buffer and walks the
// runtime's stack formatter on every call, which is why it is
// isolated here instead of being inlined into the registry: a
// platform-specific adapter (reading a TLS slot via cgo or assembly)
// could replace this one function without touching anything else in
// the package.
func currentGoroutine() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

// parseGoroutineID extracts the integer from a stack trace header of
// the form "goroutine 123 [running]:". It panics if the header isn't
// in the expected shape, since that would mean the runtime changed a
// format this package depends on, which is a programming-environment
// invariant violation, not a recoverable condition.
func parseGoroutineID(header []byte) int64 {
	const prefix = "goroutine "
	if len(header) < len(prefix) || string(header[:len(prefix)]) != prefix {
		panic("perthread: unexpected stack trace header: " + string(header))
	}
	rest := header[len(prefix):]
	sp := -1
	for i, b := range rest {
		if b == ' ' {
			sp = i
			break
		}
	}
	if sp < 0 {
		panic("perthread: unexpected stack trace header: " + string(header))
	}
	id, err := strconv.ParseInt(string(rest[:sp]), 10, 64)
	if err != nil {
		panic("perthread: unexpected stack trace header: " + string(header))
	}
	return id
}
