// Package perthread provides goroutine-local variables: handles that
// bind a value of any type to every goroutine that touches them,
// independently, the way a thread-local variable does in runtimes that
// have one.
//
// A Handle is created once, typically as a package-level variable:
//
//	var requestID = perthread.WithInitial(func() string { return "" })
//
// Each goroutine that calls requestID.Get or requestID.Set gets its own
// copy. The underlying storage is a weak-keyed, open-addressed hash
// table attached to the calling goroutine: a handle that goes out of
// scope doesn't keep its bound values alive in every goroutine that
// ever set one, and a goroutine's table is reclaimed without any
// goroutine but its own ever touching it.
//
// Inheritance across goroutine boundaries is opt-in and only happens
// for goroutines started with Go, not with a plain `go` statement:
//
//	var traceID = perthread.NewInheritable(
//		func() string { return "" },
//		func(parent string) string { return parent },
//	)
package perthread
