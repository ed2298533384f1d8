package scopez

// Scope marks a Span as active in one Slot. Closing it restores whatever
// was active before and may finish the Span, depending on the manager.
type Scope interface {
	// Span returns the wrapped span.
	Span() *Span

	// Capture returns a Continuation that can re-activate the same Span in
	// another Slot. Call it from the goroutine that owns the scope.
	Capture() Continuation

	// Close deactivates the scope. Closing a scope that is not the active
	// one in its Slot does nothing and returns CloseIgnored.
	Close() CloseResult
}

// Continuation carries a Span across an asynchronous boundary.
//
// Every Activate produces an independent Scope that must be closed. With
// reference counting, a Continuation that is never activated keeps its Span
// open forever.
type Continuation interface {
	// Activate installs a new Scope for the captured Span in slot.
	Activate(slot *Slot) Scope
}

// CloseResult reports what Scope.Close did.
type CloseResult int

const (
	// CloseIgnored means the scope was not active in its slot; nothing changed.
	CloseIgnored CloseResult = iota
	// Closed means the previous scope was restored and the span is still open.
	Closed
	// ClosedFinished means the previous scope was restored and the span finished.
	ClosedFinished
)

func (r CloseResult) String() string {
	switch r {
	case CloseIgnored:
		return "ignored"
	case Closed:
		return "closed"
	case ClosedFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ScopeManager is the activation discipline for a Tracer.
type ScopeManager interface {
	// Activate makes span the active span of slot and returns its Scope.
	// Panics if span or slot is nil.
	Activate(slot *Slot, span *Span) Scope

	// Active returns the active Scope of slot, or nil. No side effects.
	Active(slot *Slot) Scope
}

func mustActivate(slot *Slot, span *Span) {
	if span == nil {
		panic("scopez: activate called with nil span")
	}
	if slot == nil {
		panic("scopez: activate called with nil slot")
	}
}
