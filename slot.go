package scopez

import "context"

// slotKeyType is a private type for context keys to avoid collisions.
type slotKeyType struct{}

var slotKey = slotKeyType{}

// Slot holds the active Scope for one logical execution context, usually a
// single goroutine. It is never locked: only the owner reads or writes it.
// The zero value has no active scope.
type Slot struct {
	active Scope
}

// NewSlot creates an empty Slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Active returns the active Scope, or nil.
func (s *Slot) Active() Scope {
	if s == nil {
		return nil
	}
	return s.active
}

// ActiveSpan returns the Span of the active Scope, or nil.
func (s *Slot) ActiveSpan() *Span {
	if scope := s.Active(); scope != nil {
		return scope.Span()
	}
	return nil
}

// ContextWithSlot returns a copy of parent carrying slot.
func ContextWithSlot(parent context.Context, slot *Slot) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, slotKey, slot)
}

// SlotFromContext extracts the Slot from ctx.
// Returns nil if no slot is present.
func SlotFromContext(ctx context.Context) *Slot {
	if ctx == nil {
		return nil
	}
	if slot, ok := ctx.Value(slotKey).(*Slot); ok {
		return slot
	}
	return nil
}

// Fork returns a copy of ctx with a fresh, empty Slot. Use it before
// handing ctx to a new goroutine so the two never share a Slot.
func Fork(ctx context.Context) context.Context {
	return ContextWithSlot(ctx, NewSlot())
}

// SpanFromContext returns the active Span of the ctx's Slot, or nil.
func SpanFromContext(ctx context.Context) *Span {
	return SlotFromContext(ctx).ActiveSpan()
}
