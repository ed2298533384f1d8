package scopez

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// ErrWorkerPoolEnabled is returned by EnableWorkerPool on a second call.
var ErrWorkerPoolEnabled = errors.New("worker pool already enabled")

// ErrInvalidPoolSize is returned by EnableWorkerPool for non-positive sizes.
var ErrInvalidPoolSize = errors.New("workers and queue size must be > 0")

// SpanHandler is called when a span finishes.
type SpanHandler func(record Record)

// Reporter consumes finished spans. Report is called exactly once per span.
// Failures stay inside the reporter; they never reach Finish callers.
type Reporter interface {
	Report(record Record)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(record Record)

// Report implements Reporter.
func (f ReporterFunc) Report(record Record) { f(record) }

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer builds spans, owns the ScopeManager that activates them and
// delivers finished spans to registered handlers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	manager      ScopeManager
	ids          IDGenerator
	clock        clockz.Clock
	logger       *zap.Logger
	metrics      *Metrics
	handlersLock sync.RWMutex
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span and log timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the tracer's logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records tracer and default manager activity on m.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracer) {
		t.metrics = m
	}
}

// WithScopeManager replaces the default reference-counted manager.
func WithScopeManager(m ScopeManager) Option {
	return func(t *Tracer) {
		if m != nil {
			t.manager = m
		}
	}
}

// WithIDGenerator replaces the default random ID generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(t *Tracer) {
		if ids != nil {
			t.ids = ids
		}
	}
}

// New creates a tracer. Without options it uses the real clock, random IDs
// and a RefCountManager.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ids == nil {
		t.ids = RandomIDs()
	}
	if t.manager == nil {
		t.manager = NewRefCountManager(
			WithManagerLogger(t.logger),
			WithManagerMetrics(t.metrics),
		)
	}
	return t
}

// ScopeManager returns the tracer's activation discipline.
func (t *Tracer) ScopeManager() ScopeManager {
	return t.manager
}

// Now returns the tracer clock's current time in microseconds.
func (t *Tracer) Now() int64 {
	return t.now()
}

func (t *Tracer) now() int64 {
	if t == nil {
		return time.Now().UnixMicro()
	}
	return t.clock.Now().UnixMicro()
}

type spanOptions struct {
	tags         map[Tag]any
	refs         []Reference
	start        int64
	ignoreActive bool
}

// SpanOption configures a span at start.
type SpanOption func(*spanOptions)

// ChildOf adds a child-of reference. Invalid contexts are ignored, so the
// result of a failed extract can be passed straight in.
func ChildOf(parent SpanContext) SpanOption {
	return addReference(ChildOfRef, parent)
}

// FollowsFrom adds a follows-from reference. Invalid contexts are ignored.
func FollowsFrom(parent SpanContext) SpanOption {
	return addReference(FollowsFromRef, parent)
}

func addReference(kind ReferenceType, parent SpanContext) SpanOption {
	return func(o *spanOptions) {
		if parent.IsValid() {
			o.refs = append(o.refs, Reference{Type: kind, Context: parent})
		}
	}
}

// StartTime sets an explicit start timestamp in microseconds.
func StartTime(micros int64) SpanOption {
	return func(o *spanOptions) {
		o.start = micros
	}
}

// WithTag sets an initial tag. Values other than string, bool, integers
// and floats are ignored.
func WithTag(key Tag, value any) SpanOption {
	return func(o *spanOptions) {
		v, ok := normalizeTag(value)
		if !ok {
			return
		}
		if o.tags == nil {
			o.tags = make(map[Tag]any)
		}
		o.tags[key] = v
	}
}

// IgnoreActive stops StartActive from parenting to the slot's active span.
func IgnoreActive() SpanOption {
	return func(o *spanOptions) {
		o.ignoreActive = true
	}
}

func normalizeTag(value any) (any, bool) {
	switch v := value.(type) {
	case string, bool, int64, float64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return float64(v), true
	default:
		return nil, false
	}
}

// StartSpan creates a span parented only by explicit references.
// The span is not activated.
func (t *Tracer) StartSpan(operation Key, opts ...SpanOption) *Span {
	var o spanOptions
	for _, opt := range opts {
		opt(&o)
	}
	return t.startSpan(operation, &o)
}

func (t *Tracer) startSpan(operation Key, o *spanOptions) *Span {
	start := o.start
	if start == 0 {
		start = t.now()
	}

	var traceID string
	if len(o.refs) > 0 {
		traceID = o.refs[0].Context.traceID
	} else {
		traceID = t.ids.NewTraceID()
	}

	span := &Span{
		tracer:     t,
		operation:  operation,
		start:      start,
		references: o.refs,
		tags:       o.tags,
		context: SpanContext{
			traceID: traceID,
			spanID:  t.ids.NewSpanID(),
			baggage: mergeBaggage(o.refs),
		},
	}
	t.metrics.spanStarted()
	return span
}

// StartActive creates a span and activates it in slot. Unless references
// are given or IgnoreActive is set, the slot's active span becomes the
// parent.
func (t *Tracer) StartActive(slot *Slot, operation Key, opts ...SpanOption) Scope {
	var o spanOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.refs) == 0 && !o.ignoreActive {
		if parent := t.manager.Active(slot); parent != nil {
			ChildOf(parent.Span().Context())(&o)
		}
	}
	return t.manager.Activate(slot, t.startSpan(operation, &o))
}

// StartSpanFromContext is StartActive using the Slot carried by ctx.
// If ctx has no Slot, a fresh one is installed in the returned context.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operation Key, opts ...SpanOption) (context.Context, Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	slot := SlotFromContext(ctx)
	if slot == nil {
		slot = NewSlot()
		ctx = ContextWithSlot(ctx, slot)
	}
	return ctx, t.StartActive(slot, operation, opts...)
}

// Activate activates span in slot with the tracer's manager.
func (t *Tracer) Activate(slot *Slot, span *Span) Scope {
	return t.manager.Activate(slot, span)
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

// AddReporter registers r as a synchronous handler.
func (t *Tracer) AddReporter(r Reporter) uint64 {
	if r == nil {
		return 0
	}
	return t.registerHandler(r.Report, false)
}

// AddCollector registers c as a synchronous handler.
func (t *Tracer) AddCollector(c *Collector) uint64 {
	if c == nil {
		return 0
	}
	return t.AddReporter(c)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// collectSpan delivers a finished span to every handler.
func (t *Tracer) collectSpan(record Record) {
	if t == nil {
		return
	}
	t.metrics.spanFinished()

	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if !h.async {
			t.safeCall(h, record)
			continue
		}
		entry := h
		if workers == nil {
			go t.safeCall(entry, record)
			continue
		}
		if !workers.submit(func() { t.safeCall(entry, record) }) {
			t.droppedSpans.Add(1)
			t.metrics.spanDropped()
			t.logger.Warn("worker pool rejected span, dropping",
				zap.Uint64("handler_id", entry.id),
				zap.String("trace_id", record.TraceID),
				zap.String("span_id", record.SpanID),
			)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, record Record) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.handlerPanicked()
			t.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.String("span_id", record.SpanID),
				zap.Any("panic", r),
			)
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(record)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 || queueSize <= 0 {
		return ErrInvalidPoolSize
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	if t.workers != nil {
		return ErrWorkerPoolEnabled
	}

	t.workers = &workerPool{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
	}
	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of deliveries dropped due to a full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// Spans finished afterwards are no longer delivered.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Queued deliveries run before shutdown returns.
	if workers != nil {
		workers.shutdown()
	}

	if closer, ok := t.ids.(interface{ Close() }); ok {
		closer.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks  chan func()
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

// drain runs whatever is still queued. Nothing is added once stop is closed.
func (w *workerPool) drain() {
	for {
		select {
		case task := <-w.tasks:
			task()
		default:
			return
		}
	}
}

// submit reports false when the queue is full or the pool is shut down.
func (w *workerPool) submit(task func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

func (w *workerPool) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()
	w.wg.Wait()
}
