package scopez

import (
	"sync"
	"time"
)

// Field is one key-value pair of a span log entry.
type Field struct {
	Value any    `json:"value"`
	Key   string `json:"key"`
}

// StringField creates a string log field.
func StringField(key, value string) Field { return Field{Key: key, Value: value} }

// IntField creates an integer log field.
func IntField(key string, value int64) Field { return Field{Key: key, Value: value} }

// BoolField creates a boolean log field.
func BoolField(key string, value bool) Field { return Field{Key: key, Value: value} }

// Float64Field creates a floating point log field.
func Float64Field(key string, value float64) Field { return Field{Key: key, Value: value} }

// LogRecord is a timestamped set of fields logged on a span.
type LogRecord struct {
	Fields    []Field `json:"fields"`
	Timestamp int64   `json:"timestamp_us"`
}

// Record is the immutable snapshot of a finished span handed to reporters.
type Record struct {
	Tags       map[Tag]any       `json:"tags,omitempty"`
	Baggage    map[string]string `json:"baggage,omitempty"`
	References []Reference       `json:"references,omitempty"`
	Logs       []LogRecord       `json:"logs,omitempty"`
	Start      int64             `json:"start_us"`
	End        int64             `json:"end_us"`
	Duration   time.Duration     `json:"duration"`
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	ParentID   string            `json:"parent_id,omitempty"`
	Operation  string            `json:"operation"`
}

// Span represents a single unit of work.
// Safe for concurrent use by multiple goroutines. Once finished, every
// mutation is a no-op.
type Span struct {
	tracer     *Tracer
	tags       map[Tag]any
	references []Reference
	logs       []LogRecord
	context    SpanContext
	operation  string
	start      int64
	end        int64
	mu         sync.Mutex // Guards all fields except tracer and start.
	finished   bool
}

// SetOperationName renames the span.
func (s *Span) SetOperationName(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.operation = name
	}
	return s
}

// SetTag adds a string tag.
func (s *Span) SetTag(key Tag, value string) *Span {
	return s.setTag(key, value)
}

// SetBoolTag adds a boolean tag.
func (s *Span) SetBoolTag(key Tag, value bool) *Span {
	return s.setTag(key, value)
}

// SetIntTag adds an integer tag.
func (s *Span) SetIntTag(key Tag, value int64) *Span {
	return s.setTag(key, value)
}

// SetFloatTag adds a floating point tag.
func (s *Span) SetFloatTag(key Tag, value float64) *Span {
	return s.setTag(key, value)
}

func (s *Span) setTag(key Tag, value any) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Don't modify finished spans.
	if s.finished {
		return s
	}

	if s.tags == nil {
		s.tags = make(map[Tag]any)
	}
	s.tags[key] = value
	return s
}

// GetTag retrieves a tag value by key.
func (s *Span) GetTag(key Tag) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.tags[key]
	return value, ok
}

// Log appends a log entry stamped with the tracer's clock.
func (s *Span) Log(fields ...Field) *Span {
	return s.LogAt(s.tracer.now(), fields...)
}

// LogAt appends a log entry with an explicit timestamp in microseconds.
func (s *Span) LogAt(micros int64, fields ...Field) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s
	}
	entry := LogRecord{Timestamp: micros, Fields: make([]Field, len(fields))}
	copy(entry.Fields, fields)
	s.logs = append(s.logs, entry)
	return s
}

// SetBaggageItem derives a new SpanContext carrying key=value.
// Contexts previously returned by Context are unaffected.
func (s *Span) SetBaggageItem(key, value string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.context = s.context.WithBaggageItem(key, value)
	}
	return s
}

// BaggageItem returns the baggage value stored under key.
func (s *Span) BaggageItem(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.context.BaggageItem(key)
	return v
}

// Context returns the span's identity. Valid before and after Finish.
func (s *Span) Context() SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// OperationName returns the current operation name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operation
}

// StartMicros returns the start timestamp in microseconds.
func (s *Span) StartMicros() int64 {
	return s.start
}

// Finished reports whether Finish has been called.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Finish completes the span at the tracer's current time.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) Finish() {
	s.FinishAt(s.tracer.now())
}

// FinishAt completes the span with an explicit end timestamp in
// microseconds. An end before the start is recorded as given.
func (s *Span) FinishAt(micros int64) {
	s.finishAt(micros)
}

// finishAt reports whether this call performed the transition.
func (s *Span) finishAt(micros int64) bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.finished = true
	s.end = micros
	record := s.recordLocked()
	s.mu.Unlock()

	// Reporters run outside the lock so they may read the span.
	s.tracer.collectSpan(record)
	return true
}

func (s *Span) finish() bool {
	return s.finishAt(s.tracer.now())
}

// Record returns a snapshot of the span's current state.
func (s *Span) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked()
}

func (s *Span) recordLocked() Record {
	r := Record{
		TraceID:   s.context.traceID,
		SpanID:    s.context.spanID,
		Operation: s.operation,
		Start:     s.start,
		End:       s.end,
		Baggage:   s.context.Baggage(),
	}
	if s.finished {
		r.Duration = time.Duration(s.end-s.start) * time.Microsecond
	}
	if len(s.references) > 0 {
		r.ParentID = s.references[0].Context.spanID
		r.References = make([]Reference, len(s.references))
		copy(r.References, s.references)
	}
	if s.tags != nil {
		r.Tags = make(map[Tag]any, len(s.tags))
		for k, v := range s.tags {
			r.Tags[k] = v
		}
	}
	if len(s.logs) > 0 {
		r.Logs = make([]LogRecord, len(s.logs))
		copy(r.Logs, s.logs)
	}
	return r
}
