package scopez

// SpanContext is the immutable identity and baggage of a Span.
// It is a value type; copies share the baggage map, which is never written
// after construction.
type SpanContext struct {
	baggage map[string]string
	traceID string
	spanID  string
}

// NewSpanContext builds a SpanContext from propagated identifiers.
// The baggage map is copied.
func NewSpanContext(traceID, spanID string, baggage map[string]string) SpanContext {
	sc := SpanContext{traceID: traceID, spanID: spanID}
	if len(baggage) > 0 {
		sc.baggage = make(map[string]string, len(baggage))
		for k, v := range baggage {
			sc.baggage[k] = v
		}
	}
	return sc
}

// TraceID returns the trace identifier.
func (c SpanContext) TraceID() string { return c.traceID }

// SpanID returns the span identifier.
func (c SpanContext) SpanID() string { return c.spanID }

// IsValid reports whether both identifiers are set.
func (c SpanContext) IsValid() bool {
	return c.traceID != "" && c.spanID != ""
}

// BaggageItem returns the baggage value stored under key.
func (c SpanContext) BaggageItem(key string) (string, bool) {
	v, ok := c.baggage[key]
	return v, ok
}

// ForeachBaggageItem calls handler for every baggage item until it returns false.
func (c SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// Baggage returns a copy of all baggage items, or nil when there are none.
func (c SpanContext) Baggage() map[string]string {
	if len(c.baggage) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.baggage))
	for k, v := range c.baggage {
		out[k] = v
	}
	return out
}

// WithBaggageItem returns a new SpanContext with key set to value.
// The receiver is not modified.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		baggage[k] = v
	}
	baggage[key] = value
	return SpanContext{traceID: c.traceID, spanID: c.spanID, baggage: baggage}
}

// ReferenceType describes how a span relates to one of its parents.
type ReferenceType int

const (
	// ChildOfRef means the parent depends on the child's result.
	ChildOfRef ReferenceType = iota
	// FollowsFromRef means the parent does not wait for the child.
	FollowsFromRef
)

func (r ReferenceType) String() string {
	switch r {
	case ChildOfRef:
		return "child_of"
	case FollowsFromRef:
		return "follows_from"
	default:
		return "unknown"
	}
}

// Reference links a span to a parent SpanContext.
type Reference struct {
	Context SpanContext   `json:"-"`
	Type    ReferenceType `json:"type"`
}

// mergeBaggage unions the baggage of all references, earlier references win.
// Returns nil when no reference carries baggage.
func mergeBaggage(refs []Reference) map[string]string {
	var out map[string]string
	for _, ref := range refs {
		for k, v := range ref.Context.baggage {
			if out == nil {
				out = make(map[string]string)
			}
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}
