package perthread

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// cacheLineSize is used to pad registryShard so that two goroutines
// locking adjacent shards never fight over the same cache line. The
// size comes from golang.org/x/sys/cpu's CacheLinePad.
const cacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// shardMixer is the 64-bit golden-ratio multiplier used to spread
// goroutine IDs across shards. The Go runtime hands out goroutine IDs
// sequentially, so without mixing, any shardCount that isn't itself
// the count of live goroutines would concentrate consecutive
// goroutines' maps into the same few shards. This is the same
// distribution problem a golden-ratio hash multiplier always solves:
// it spreads any input, including a small run of consecutive integers,
// uniformly across a power-of-two range.
const shardMixer uint64 = 0x9E3779B185EBCA87

// defaultShardCount is the number of shards the registry starts with.
// It only needs to be large enough that concurrently starting
// goroutines rarely contend on the same shard's mutex; it has no
// relationship to how many goroutines actually use the package, since
// a goroutine that never touches a Handle is never registered at all.
const defaultShardCount = 64

// registryShard is one bucket of the goroutine registry: a plain
// mutex-guarded map. Plain, because the registry's access pattern
// (insert once per goroutine, delete once per goroutine, look up
// roughly once per Handle call in between) doesn't justify the
// lock-free, meta-byte, cache-line-bucket machinery a high-throughput
// concurrent hash map needs. That complexity earns its keep under much
// higher contention and much larger tables than a per-process goroutine
// count ever produces here.
type registryShard struct {
	mu sync.Mutex
	m  map[int64]*perThreadMap

	//lint:ignore U1000 prevents false sharing between adjacent shards
	pad [(cacheLineSize - unsafe.Sizeof(struct {
		mu sync.Mutex
		m  map[int64]*perThreadMap
	}{})%cacheLineSize) % cacheLineSize]byte
}

// registry is the sharded table from goroutine ID to that goroutine's
// perThreadMap. It is the only lock in this package: it guards
// attaching and detaching a map, never a map's own operations, which
// stay exactly as lock-free as a single-owner table requires.
type registry struct {
	shards []registryShard
}

func newRegistry(shardCount int) *registry {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	shardCount = nextPowerOfTwo(shardCount)
	r := &registry{shards: make([]registryShard, shardCount)}
	for i := range r.shards {
		r.shards[i].m = make(map[int64]*perThreadMap)
	}
	return r
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (r *registry) shardFor(goroutineID int64) *registryShard {
	h := uint64(goroutineID) * shardMixer
	h ^= h >> 32
	return &r.shards[h&uint64(len(r.shards)-1)]
}

func (r *registry) get(goroutineID int64) *perThreadMap {
	s := r.shardFor(goroutineID)
	s.mu.Lock()
	m := s.m[goroutineID]
	s.mu.Unlock()
	return m
}

func (r *registry) set(goroutineID int64, m *perThreadMap) {
	s := r.shardFor(goroutineID)
	s.mu.Lock()
	_, existed := s.m[goroutineID]
	s.m[goroutineID] = m
	s.mu.Unlock()
	if !existed {
		logAttach(goroutineID)
	}
}

func (r *registry) delete(goroutineID int64) {
	s := r.shardFor(goroutineID)
	s.mu.Lock()
	_, existed := s.m[goroutineID]
	delete(s.m, goroutineID)
	s.mu.Unlock()
	if existed {
		logDetach(goroutineID)
	}
}

// defaultRegistry is the registry every Handle and every call to Go /
// Detach uses. It is package-level because the current goroutine's map
// is meant to be reachable from any Handle without the caller threading
// a registry through, the Go analogue of a slot on a thread object.
var defaultRegistry = newRegistry(defaultShardCount)

func registryGet(goroutineID int64) *perThreadMap    { return defaultRegistry.get(goroutineID) }
func registrySet(goroutineID int64, m *perThreadMap) { defaultRegistry.set(goroutineID, m) }

// registryConfig holds the knobs Configure can adjust. There is
// deliberately no way to tune anything about a perThreadMap itself
// through this path. Only the registry, the Go-specific adapter
// layer, is configurable.
type registryConfig struct {
	shardCount int
}

// WithShardCount overrides the number of shards the default registry
// starts with. A higher count reduces mutex contention between
// goroutines attaching or detaching at the same time; it has no effect
// on lookup cost, which is a single map read inside one shard's lock
// regardless of shard count.
func WithShardCount(n int) func(*registryConfig) {
	return func(c *registryConfig) { c.shardCount = n }
}

// Configure replaces the package's default registry with one built
// from opts. Call it once, before any Handle is used: it discards
// whatever goroutines had already attached to the previous registry,
// so calling it after the package is already in use drops their
// bindings.
func Configure(opts ...func(*registryConfig)) {
	c := &registryConfig{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(c)
	}
	defaultRegistry = newRegistry(c.shardCount)
}
