package integration

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/scopez"
)

// TestContinuationsFinishOnceRegardlessOfOrder fans N continuations out to
// goroutines that close in a random order; the span must finish once, on
// the last close.
func TestContinuationsFinishOnceRegardlessOfOrder(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		tracer, collector := NewTestTracer(t)
		rng := rand.New(rand.NewSource(seed))
		n := 1 + rng.Intn(32)

		slot := scopez.NewSlot()
		scope := tracer.StartActive(slot, "shared")
		continuations := make([]scopez.Continuation, n)
		for i := range continuations {
			continuations[i] = scope.Capture()
		}

		delays := make([]time.Duration, n)
		for i := range delays {
			delays[i] = time.Duration(rng.Intn(500)) * time.Microsecond
		}

		// The original scope closes at a random point among the others.
		closeOriginalAt := rng.Intn(n)

		var closes sync.WaitGroup
		var finishers int
		var mu sync.Mutex
		for i, c := range continuations {
			closes.Add(1)
			go func(c scopez.Continuation, delay time.Duration) {
				defer closes.Done()
				s := c.Activate(scopez.NewSlot())
				time.Sleep(delay)
				if s.Close() == scopez.ClosedFinished {
					mu.Lock()
					finishers++
					mu.Unlock()
				}
			}(c, delays[i])

			if i == closeOriginalAt && scope.Close() == scopez.ClosedFinished {
				mu.Lock()
				finishers++
				mu.Unlock()
			}
		}
		closes.Wait()

		if finishers != 1 {
			t.Errorf("seed %d: expected exactly one finishing close, got %d", seed, finishers)
		}
		collector.AssertSpanCount(1)
		if slot.Active() != nil {
			t.Errorf("seed %d: expected originating slot to be empty", seed)
		}
	}
}

func TestZeroCapturesFinishInsideClose(t *testing.T) {
	tracer, collector := NewTestTracer(t)
	slot := scopez.NewSlot()

	scope := tracer.StartActive(slot, "sync")
	scope.Close()

	// No waiting: the collector is synchronous and Close finished the span.
	collector.AssertSpanCount(1)
}

func TestAbandonedContinuationNeverFinishes(t *testing.T) {
	tracer, collector := NewTestTracer(t)
	slot := scopez.NewSlot()

	scope := tracer.StartActive(slot, "abandoned")
	scope.Capture()
	scope.Close()

	time.Sleep(10 * time.Millisecond)
	collector.AssertSpanCount(0)
	if scope.Span().Finished() {
		t.Error("Expected span to remain open")
	}
}

// TestConcreteThreeThreadScenario walks the documented T1/T2/T3 hand-off.
func TestConcreteThreeThreadScenario(t *testing.T) {
	tracer, collector := NewTestTracer(t)
	slot := scopez.NewSlot()

	scope := tracer.StartActive(slot, "S")
	span := scope.Span()
	first := scope.Capture()
	second := scope.Capture()

	scope.Close()
	if span.Finished() {
		t.Fatal("Expected S open after original close")
	}

	onThread := func(c scopez.Continuation) scopez.CloseResult {
		result := make(chan scopez.CloseResult, 1)
		go func() {
			s := c.Activate(scopez.NewSlot())
			s.Span().Log(scopez.StringField("event", "resumed"))
			result <- s.Close()
		}()
		return <-result
	}

	if res := onThread(first); res != scopez.Closed {
		t.Errorf("Expected T2 close %v, got %v", scopez.Closed, res)
	}
	if span.Finished() {
		t.Fatal("Expected S open after T2 close")
	}
	if res := onThread(second); res != scopez.ClosedFinished {
		t.Errorf("Expected T3 close %v, got %v", scopez.ClosedFinished, res)
	}

	record := collector.AssertSpanNamed("S")
	if record == nil {
		return
	}
	if len(record.Logs) != 2 {
		t.Errorf("Expected logs from both threads, got %d", len(record.Logs))
	}
	collector.AssertSpanCount(1)
}

// TestContinuationRestoresIntoBusySlot activates a continuation in a slot
// that already has an active scope; closing it restores that scope.
func TestContinuationRestoresIntoBusySlot(t *testing.T) {
	tracer, collector := NewTestTracer(t)

	source := scopez.NewSlot()
	request := tracer.StartActive(source, "request")
	cont := request.Capture()
	request.Close()

	worker := scopez.NewSlot()
	loop := tracer.StartActive(worker, "worker-loop")

	resumed := cont.Activate(worker)
	if worker.ActiveSpan() != request.Span() {
		t.Fatal("Expected resumed request to be active in worker slot")
	}
	child := tracer.StartActive(worker, "handle")
	child.Close()
	resumed.Close()

	if worker.Active() != loop {
		t.Error("Expected worker loop scope restored")
	}
	loop.Close()

	analyzer := NewTraceAnalyzer(collector.GetAll())
	if err := analyzer.VerifyChain("request", "handle"); err != nil {
		t.Errorf("Chain error: %v\n%s", err, PrintSpanTree(BuildSpanTree(collector.GetAll())))
	}
	if analyzer.CountTrees() != 2 {
		t.Errorf("Expected request and worker-loop trees, got %d", analyzer.CountTrees())
	}
}
