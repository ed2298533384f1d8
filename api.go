// Package scopez tracks the span currently in progress on a logical
// execution path and decides when that span is complete.
//
// scopez focuses on activation and lifetime, not export. It's designed for
// systems that hand one unit of work across goroutines, callbacks and
// queued tasks and still need it finished exactly once.
//
// Core Components:
//   - Span: a mutable record of one unit of work.
//   - SpanContext: immutable identity and baggage carried by a Span.
//   - Slot: the per-execution-context cell holding the active Scope.
//   - Scope: marks a Span active in one Slot until closed.
//   - Continuation: carries a Span across an asynchronous boundary.
//   - ScopeManager: the activation discipline (stack or reference counted).
//   - Tracer: builds spans and delivers finished ones to reporters.
//
// Basic Usage:
//
//	tracer := scopez.New()
//	defer tracer.Close()
//
//	slot := scopez.NewSlot()
//	scope := tracer.StartActive(slot, "request")
//	defer scope.Close()
//
//	cont := scope.Capture()
//	go func() {
//		s := cont.Activate(scopez.NewSlot())
//		defer s.Close()
//		s.Span().SetTag("worker", "1")
//	}()
//
// With the default reference-counted manager the "request" span finishes
// when both the original scope and the continuation's scope are closed, in
// whichever order that happens.
//
// Thread Safety:
//
// Tracer, Span and the reference counts behind Scopes are safe for
// concurrent use. A Slot is not: it belongs to exactly one goroutine (or
// one task on an event loop) and is never locked. Give every goroutine its
// own Slot, or use Fork on a context.Context.
//
// Misuse Policy:
//
// Closing a Scope that is not active in its Slot, finishing a finished Span
// and mutating a finished Span are all silent no-ops. Close reports what it
// did through CloseResult so the behaviour stays testable. The only panic is
// activating a nil Span or activating into a nil Slot.
package scopez

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string
