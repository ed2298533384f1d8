package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/scopez"
)

// TestFanOutChildren runs three independent callbacks, each resuming the
// parent and starting its own child.
func TestFanOutChildren(t *testing.T) {
	tracer, collector := NewTestTracer(t)
	slot := scopez.NewSlot()

	parent := tracer.StartActive(slot, "parent")
	parentCtx := parent.Span().Context()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		cont := parent.Capture()
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			callbackSlot := scopez.NewSlot()
			resumed := cont.Activate(callbackSlot)
			defer resumed.Close()

			child := tracer.StartActive(callbackSlot, fmt.Sprintf("callback-%d", n))
			child.Span().SetIntTag("callback", int64(n))
			child.Close()
		}(i)
	}
	parent.Close()
	wg.Wait()

	records := collector.GetAll()
	if len(records) != 4 {
		t.Fatalf("Expected parent and 3 children, got %d:\n%s", len(records), PrintSpanTree(BuildSpanTree(records)))
	}

	children := 0
	for _, r := range records {
		if r.Operation == "parent" {
			continue
		}
		children++
		if r.ParentID != parentCtx.SpanID() {
			t.Errorf("Expected %s parented to %s, got %s", r.Operation, parentCtx.SpanID(), r.ParentID)
		}
		if r.TraceID != parentCtx.TraceID() {
			t.Errorf("Expected %s in trace %s, got %s", r.Operation, parentCtx.TraceID(), r.TraceID)
		}
	}
	if children != 3 {
		t.Errorf("Expected 3 children, got %d", children)
	}

	analyzer := NewTraceAnalyzer(records)
	for n := 0; n < 3; n++ {
		name := fmt.Sprintf("callback-%d", n)
		if got := len(analyzer.GetSpansByName(name)); got != 1 {
			t.Errorf("Expected one %s span, got %d", name, got)
		}
	}
	if analyzer.CountTrees() != 1 {
		t.Errorf("Expected a single tree, got %d", analyzer.CountTrees())
	}
	if err := analyzer.VerifySingleTrace(); err != nil {
		t.Error(err)
	}
}

// TestFanOutThroughContext hands continuations to goroutines through a
// forked context.Context, the way request handlers usually do.
func TestFanOutThroughContext(t *testing.T) {
	tracer, collector := NewTestTracer(t)

	ctx, request := tracer.StartSpanFromContext(context.Background(), "request")

	var wg sync.WaitGroup
	for _, backend := range []string{"db", "cache", "search"} {
		cont := request.Capture()
		wg.Add(1)
		go func(ctx context.Context, backend string) {
			defer wg.Done()
			slot := scopez.SlotFromContext(ctx)
			resumed := cont.Activate(slot)
			defer resumed.Close()

			_, call := tracer.StartSpanFromContext(ctx, "call-"+backend)
			call.Span().SetTag("backend", backend)
			call.Close()
		}(scopez.Fork(ctx), backend)
	}
	request.Close()
	wg.Wait()

	for _, name := range []string{"call-db", "call-cache", "call-search"} {
		if err := NewTraceAnalyzer(collector.GetAll()).VerifyChain("request", name); err != nil {
			t.Error(err)
		}
	}
	collector.AssertSpanCount(4)
	if scopez.SpanFromContext(ctx) != nil {
		t.Error("Expected request context slot to be empty")
	}
}

// TestFanOutWorkerPool queues continuations onto a fixed pool of workers,
// each owning one long-lived slot.
func TestFanOutWorkerPool(t *testing.T) {
	tracer, collector := NewTestTracer(t)

	type job struct {
		cont scopez.Continuation
		id   int
	}
	jobs := make(chan job)
	var workers sync.WaitGroup
	for w := 0; w < 4; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			slot := scopez.NewSlot()
			for j := range jobs {
				resumed := j.cont.Activate(slot)
				task := tracer.StartActive(slot, "task")
				task.Span().SetIntTag("job", int64(j.id))
				task.Close()
				resumed.Close()
				if slot.Active() != nil {
					t.Errorf("Expected worker slot to be empty between jobs")
				}
			}
		}()
	}

	const batches = 10
	const perBatch = 5
	for b := 0; b < batches; b++ {
		scope := tracer.StartActive(scopez.NewSlot(), "batch")
		for i := 0; i < perBatch; i++ {
			jobs <- job{cont: scope.Capture(), id: b*perBatch + i}
		}
		scope.Close()
	}
	close(jobs)
	workers.Wait()

	collector.AssertSpanCount(batches + batches*perBatch)
	if got := collector.CountNamed("batch"); got != batches {
		t.Errorf("Expected %d finished batches, got %d", batches, got)
	}
}
