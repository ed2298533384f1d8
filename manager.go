package scopez

import (
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	disciplineStack    = "stack"
	disciplineRefCount = "refcount"
)

type managerConfig struct {
	logger        *zap.Logger
	metrics       *Metrics
	finishOnClose bool
}

// ManagerOption configures a ScopeManager.
type ManagerOption func(*managerConfig)

// SkipFinishOnClose stops a StackManager from finishing spans when their
// scope closes. Ignored by RefCountManager.
func SkipFinishOnClose() ManagerOption {
	return func(c *managerConfig) {
		c.finishOnClose = false
	}
}

// WithManagerLogger sets the logger used for ignored closes.
// If logger is nil, this option does nothing.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithManagerMetrics records activations, closes and captures on m.
func WithManagerMetrics(m *Metrics) ManagerOption {
	return func(c *managerConfig) {
		c.metrics = m
	}
}

func newManagerConfig(opts []ManagerOption) managerConfig {
	cfg := managerConfig{
		logger:        zap.NewNop(),
		finishOnClose: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func logIgnoredClose(logger *zap.Logger, span *Span, discipline string) {
	if ce := logger.Check(zap.DebugLevel, "ignored close of inactive scope"); ce != nil {
		sc := span.Context()
		ce.Write(
			zap.String("discipline", discipline),
			zap.String("trace_id", sc.TraceID()),
			zap.String("span_id", sc.SpanID()),
			zap.String("operation", span.OperationName()),
		)
	}
}

// StackManager is the simple discipline: a close always restores the
// previous scope and finishes the span (unless SkipFinishOnClose is set).
// There is no reference counting.
type StackManager struct {
	cfg managerConfig
}

// NewStackManager creates a StackManager.
func NewStackManager(opts ...ManagerOption) *StackManager {
	return &StackManager{cfg: newManagerConfig(opts)}
}

// Activate implements ScopeManager.
func (m *StackManager) Activate(slot *Slot, span *Span) Scope {
	mustActivate(slot, span)
	return m.activate(slot, span, m.cfg.finishOnClose)
}

// Active implements ScopeManager.
func (*StackManager) Active(slot *Slot) Scope {
	return slot.Active()
}

func (m *StackManager) activate(slot *Slot, span *Span, finishOnClose bool) *stackScope {
	s := &stackScope{
		manager:       m,
		slot:          slot,
		span:          span,
		restore:       slot.active,
		finishOnClose: finishOnClose,
	}
	slot.active = s
	m.cfg.metrics.scopeActivated(disciplineStack)
	return s
}

type stackScope struct {
	manager       *StackManager
	slot          *Slot
	span          *Span
	restore       Scope
	finishOnClose bool
}

func (s *stackScope) Span() *Span { return s.span }

// Capture returns a continuation whose scopes never finish the span; the
// scope that captured it keeps that responsibility.
func (s *stackScope) Capture() Continuation {
	s.manager.cfg.metrics.continuationCaptured()
	return &stackContinuation{manager: s.manager, span: s.span}
}

func (s *stackScope) Close() CloseResult {
	metrics := s.manager.cfg.metrics
	if s.slot.active != Scope(s) {
		logIgnoredClose(s.manager.cfg.logger, s.span, disciplineStack)
		metrics.scopeClosed(CloseIgnored)
		return CloseIgnored
	}

	result := Closed
	if s.finishOnClose && s.span.finish() {
		result = ClosedFinished
	}
	s.slot.active = s.restore
	metrics.scopeClosed(result)
	return result
}

type stackContinuation struct {
	manager *StackManager
	span    *Span
}

func (c *stackContinuation) Activate(slot *Slot) Scope {
	mustActivate(slot, c.span)
	return c.manager.activate(slot, c.span, false)
}

// RefCountManager is the auto-finish discipline: scopes produced from one
// activation and all of its continuations share a reference count, and the
// span finishes when the count reaches zero.
type RefCountManager struct {
	cfg managerConfig
}

// NewRefCountManager creates a RefCountManager.
func NewRefCountManager(opts ...ManagerOption) *RefCountManager {
	return &RefCountManager{cfg: newManagerConfig(opts)}
}

// Activate implements ScopeManager. The new scope starts a reference count
// of one.
func (m *RefCountManager) Activate(slot *Slot, span *Span) Scope {
	mustActivate(slot, span)
	refs := &refCount{}
	refs.n.Store(1)
	return m.activate(slot, span, refs)
}

// Active implements ScopeManager.
func (*RefCountManager) Active(slot *Slot) Scope {
	return slot.Active()
}

// activate never touches refs; the caller has already accounted for the
// new scope.
func (m *RefCountManager) activate(slot *Slot, span *Span, refs *refCount) *refScope {
	s := &refScope{
		manager: m,
		slot:    slot,
		span:    span,
		refs:    refs,
		restore: slot.active,
	}
	slot.active = s
	m.cfg.metrics.scopeActivated(disciplineRefCount)
	return s
}

// refCount is shared by every scope and continuation of one activation tree.
type refCount struct {
	n atomic.Int64
}

type refScope struct {
	manager *RefCountManager
	slot    *Slot
	span    *Span
	refs    *refCount
	restore Scope
}

func (s *refScope) Span() *Span { return s.span }

func (s *refScope) Capture() Continuation {
	s.refs.n.Add(1)
	s.manager.cfg.metrics.continuationCaptured()
	return &refContinuation{manager: s.manager, span: s.span, refs: s.refs}
}

func (s *refScope) Close() CloseResult {
	metrics := s.manager.cfg.metrics
	if s.slot.active != Scope(s) {
		logIgnoredClose(s.manager.cfg.logger, s.span, disciplineRefCount)
		metrics.scopeClosed(CloseIgnored)
		return CloseIgnored
	}

	result := Closed
	// Exactly one decrement observes zero.
	if s.refs.n.Add(-1) == 0 && s.span.finish() {
		result = ClosedFinished
	}
	s.slot.active = s.restore
	metrics.scopeClosed(result)
	return result
}

type refContinuation struct {
	manager *RefCountManager
	span    *Span
	refs    *refCount
}

func (c *refContinuation) Activate(slot *Slot) Scope {
	mustActivate(slot, c.span)
	return c.manager.activate(slot, c.span, c.refs)
}
