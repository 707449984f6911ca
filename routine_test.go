package perthread

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGo_NonInheritableHandleNotSeededIntoChild(t *testing.T) {
	h := New[int]()
	h.Set(5)

	result := make(chan int, 1)
	Go(func() {
		result <- h.Get() // child never bound it; should re-run the producer
	})
	require.Equal(t, 0, <-result)
}

func TestGo_InheritableHandleSeedsChild(t *testing.T) {
	traceID := NewInheritable(
		func() string { return "" },
		func(parent string) string { return parent },
	)
	traceID.Set("req-123")

	result := make(chan string, 1)
	Go(func() {
		result <- traceID.Get()
	})
	require.Equal(t, "req-123", <-result)
}

func TestGo_ChildMutationDoesNotAffectParent(t *testing.T) {
	counter := NewInheritable(
		func() int { return 0 },
		func(parent int) int { return parent },
	)
	counter.Set(1)

	done := make(chan struct{})
	Go(func() {
		counter.Set(99)
		close(done)
	})
	<-done
	require.Equal(t, 1, counter.Get())
}

func TestGo_ChildValueTransformedByHook(t *testing.T) {
	depth := NewInheritable(
		func() int { return 0 },
		func(parent int) int { return parent + 1 },
	)
	depth.Set(3)

	result := make(chan int, 1)
	Go(func() {
		result <- depth.Get()
	})
	require.Equal(t, 4, <-result)
}

func TestGo_GrandchildInheritsFromChild(t *testing.T) {
	depth := NewInheritable(
		func() int { return 0 },
		func(parent int) int { return parent + 1 },
	)
	depth.Set(0)

	result := make(chan int, 1)
	Go(func() {
		Go(func() {
			result <- depth.Get()
		})
	})
	require.Equal(t, 2, <-result)
}

func TestGo_RegistrySlotRemovedAfterFnReturns(t *testing.T) {
	h := New[int]()
	gidCh := make(chan int64, 1)
	Go(func() {
		h.Set(1) // forces a map to exist for this goroutine
		gidCh <- currentGoroutine()
	})
	gid := <-gidCh

	require.Eventually(t, func() bool {
		return registryGet(gid) == nil
	}, time.Second, time.Millisecond)
}

func TestDetach_ClearsCallingGoroutinesBindings(t *testing.T) {
	h := New[int]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Set(10)
		require.Equal(t, 10, h.Get())
		Detach()
		require.Equal(t, 0, h.Get(), "Get after Detach should re-invoke the producer")
	}()
	<-done
}

func TestDetach_OnUnboundGoroutineIsNoOp(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NotPanics(t, Detach)
	}()
	<-done
}

func TestGo_ManyConcurrentChildrenEachGetOwnInheritedCopy(t *testing.T) {
	base := NewInheritable(
		func() int { return 0 },
		func(parent int) int { return parent },
	)
	base.Set(7)

	const n = 32
	var wg sync.WaitGroup
	results := make([]int, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		Go(func() {
			defer wg.Done()
			results[i] = base.Get()
		})
	}
	wg.Wait()
	for i, v := range results {
		require.Equal(t, 7, v, "child %d", i)
	}
}
