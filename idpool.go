package scopez

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator allocates trace and span identifiers.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	NewTraceID() string
	NewSpanID() string
}

// IDPool keeps a buffer of pre-generated IDs filled by a background
// goroutine, so span creation rarely pays for entropy directly.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a pool holding up to capacity IDs made by factory.
func NewIDPool(capacity int, factory func() string) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled ID, or a freshly generated one when the pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *IDPool) refill() {
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

// randomIDs draws 128-bit trace IDs from uuid and 64-bit span IDs from
// crypto/rand, both hex encoded.
type randomIDs struct {
	traces *IDPool
	spans  *IDPool
	mu     sync.Mutex
}

// RandomIDs returns the default pooled random IDGenerator.
// Pools start lazily on first use.
func RandomIDs() IDGenerator {
	return &randomIDs{}
}

func (r *randomIDs) pools() (traces, spans *IDPool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.traces == nil {
		// Pool size based on number of CPUs for contention balance.
		size := runtime.NumCPU() * 100
		r.traces = NewIDPool(size, newTraceID)
		r.spans = NewIDPool(size, newSpanID)
	}
	return r.traces, r.spans
}

func (r *randomIDs) NewTraceID() string {
	traces, _ := r.pools()
	return traces.Get()
}

func (r *randomIDs) NewSpanID() string {
	_, spans := r.pools()
	return spans.Get()
}

// Close stops both pools if they were started. IDs remain available,
// generated on demand.
func (r *randomIDs) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.traces != nil {
		r.traces.Close()
		r.spans.Close()
	}
}

func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func newSpanID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fall back to a v4 uuid prefix; uuid keeps its own entropy source.
		id := uuid.New()
		copy(b[:], id[:8])
	}
	return hex.EncodeToString(b[:])
}

// sequentialIDs hands out increasing IDs. Deterministic, for tests.
type sequentialIDs struct {
	next atomic.Uint64
}

// SequentialIDs returns an IDGenerator producing 0000...0001, 0000...0002
// and so on, shared between trace and span IDs.
func SequentialIDs() IDGenerator {
	return &sequentialIDs{}
}

func (s *sequentialIDs) NewTraceID() string {
	return fmt.Sprintf("%032x", s.next.Add(1))
}

func (s *sequentialIDs) NewSpanID() string {
	return fmt.Sprintf("%016x", s.next.Add(1))
}
