package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/scopez"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []scopez.Record
	*scopez.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a synchronous collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := scopez.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]scopez.Record, 0),
	}
}

// NewTestTracer returns a tracer with sequential IDs wired to a MockCollector.
func NewTestTracer(t *testing.T, opts ...scopez.Option) (*scopez.Tracer, *MockCollector) {
	t.Helper()
	collector := NewMockCollector(t, "test", 1000)
	tracer := scopez.New(append([]scopez.Option{scopez.WithIDGenerator(scopez.SequentialIDs())}, opts...)...)
	tracer.AddCollector(collector.Collector)
	t.Cleanup(tracer.Close)
	return tracer, collector
}

// GetAll returns every record collected so far without losing any.
func (m *MockCollector) GetAll() []scopez.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]scopez.Record, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits for expected number of records with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []scopez.Record {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if all := m.GetAll(); len(all) >= expected {
			return all
		}
		<-ticker.C
	}

	all := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(all))
	return all
}

// AssertSpanCount verifies the exact number of finished spans.
func (m *MockCollector) AssertSpanCount(expected int) {
	m.t.Helper()
	if got := len(m.GetAll()); got != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, got)
	}
}

// AssertSpanNamed returns the first record with the given operation name.
func (m *MockCollector) AssertSpanNamed(name string) *scopez.Record {
	m.t.Helper()
	records := m.GetAll()
	for i := range records {
		if records[i].Operation == name {
			return &records[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// CountNamed returns how many records carry the given operation name.
func (m *MockCollector) CountNamed(name string) int {
	n := 0
	for _, r := range m.GetAll() {
		if r.Operation == name {
			n++
		}
	}
	return n
}

// SpanTree represents a hierarchical view of finished spans.
type SpanTree struct {
	Record   scopez.Record
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from a flat record list.
func BuildSpanTree(records []scopez.Record) []*SpanTree {
	nodes := make(map[string]*SpanTree, len(records))
	roots := make([]*SpanTree, 0)

	for i := range records {
		nodes[records[i].SpanID] = &SpanTree{Record: records[i]}
	}
	for i := range records {
		node := nodes[records[i].SpanID]
		if parent, ok := nodes[records[i].ParentID]; ok && records[i].ParentID != "" {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// PrintSpanTree formats span trees for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s [%s] (%v)\n",
		strings.Repeat("  ", depth), node.Record.Operation, node.Record.SpanID, node.Record.Duration)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TraceAnalyzer provides trace-level assertions over finished spans.
type TraceAnalyzer struct {
	byID   map[string]scopez.Record
	byName map[string][]scopez.Record
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of records.
func NewTraceAnalyzer(records []scopez.Record) *TraceAnalyzer {
	a := &TraceAnalyzer{
		byID:   make(map[string]scopez.Record, len(records)),
		byName: make(map[string][]scopez.Record),
	}
	for _, r := range records {
		a.byID[r.SpanID] = r
		a.byName[r.Operation] = append(a.byName[r.Operation], r)
	}
	a.trees = BuildSpanTree(records)
	return a
}

// GetSpansByName returns all records with the given operation name.
func (a *TraceAnalyzer) GetSpansByName(name string) []scopez.Record {
	return a.byName[name]
}

// CountTrees returns the number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// VerifyChain checks that the named spans form a parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *scopez.Record
	for i, name := range names {
		records := a.GetSpansByName(name)
		if len(records) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		r := records[0]
		if prev != nil && r.ParentID != prev.SpanID {
			return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
		}
		prev = &r
	}
	return nil
}

// VerifySingleTrace checks that every record shares one trace id.
func (a *TraceAnalyzer) VerifySingleTrace() error {
	var traceID string
	for id, r := range a.byID {
		if traceID == "" {
			traceID = r.TraceID
			continue
		}
		if r.TraceID != traceID {
			return fmt.Errorf("span %s has trace %s, expected %s", id, r.TraceID, traceID)
		}
	}
	return nil
}
