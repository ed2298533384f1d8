package benchmarks

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/scopez"
)

func managers() map[string]func() scopez.ScopeManager {
	return map[string]func() scopez.ScopeManager{
		"stack":    func() scopez.ScopeManager { return scopez.NewStackManager() },
		"refcount": func() scopez.ScopeManager { return scopez.NewRefCountManager() },
	}
}

// BenchmarkActivateClose measures a single activate/close cycle.
func BenchmarkActivateClose(b *testing.B) {
	for name, newManager := range managers() {
		b.Run(name, func(b *testing.B) {
			manager := newManager()
			tracer := scopez.New(scopez.WithScopeManager(manager))
			defer tracer.Close()
			span := tracer.StartSpan("bench")
			slot := scopez.NewSlot()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				manager.Activate(slot, span).Close()
			}
		})
	}
}

// BenchmarkStartActive measures span creation plus activation.
func BenchmarkStartActive(b *testing.B) {
	for name, newManager := range managers() {
		b.Run(name, func(b *testing.B) {
			tracer := scopez.New(scopez.WithScopeManager(newManager()))
			defer tracer.Close()
			slot := scopez.NewSlot()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				tracer.StartActive(slot, "bench").Close()
			}
		})
	}
}

// BenchmarkNestedScopes measures a stack of nested activations.
func BenchmarkNestedScopes(b *testing.B) {
	for _, depth := range []int{1, 5, 20} {
		b.Run(fmt.Sprintf("depth-%d", depth), func(b *testing.B) {
			tracer := scopez.New()
			defer tracer.Close()
			slot := scopez.NewSlot()
			scopes := make([]scopez.Scope, depth)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for d := 0; d < depth; d++ {
					scopes[d] = tracer.StartActive(slot, "nested")
				}
				for d := depth - 1; d >= 0; d-- {
					scopes[d].Close()
				}
			}
		})
	}
}

// BenchmarkCaptureResume measures capture on one goroutine and resume on
// another slot.
func BenchmarkCaptureResume(b *testing.B) {
	for name, newManager := range managers() {
		b.Run(name, func(b *testing.B) {
			tracer := scopez.New(scopez.WithScopeManager(newManager()))
			defer tracer.Close()
			source := scopez.NewSlot()
			target := scopez.NewSlot()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				scope := tracer.StartActive(source, "capture")
				cont := scope.Capture()
				scope.Close()
				cont.Activate(target).Close()
			}
		})
	}
}

// BenchmarkConcurrentContinuations tests reference counting under contention.
func BenchmarkConcurrentContinuations(b *testing.B) {
	for _, concurrency := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("concurrent-%d", concurrency), func(b *testing.B) {
			tracer := scopez.New()
			defer tracer.Close()
			scope := tracer.StartActive(scopez.NewSlot(), "shared")

			perWorker := b.N / concurrency
			if perWorker == 0 {
				perWorker = 1
			}

			b.ResetTimer()
			var wg sync.WaitGroup
			for w := 0; w < concurrency; w++ {
				conts := make([]scopez.Continuation, perWorker)
				for i := range conts {
					conts[i] = scope.Capture()
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					slot := scopez.NewSlot()
					for _, c := range conts {
						c.Activate(slot).Close()
					}
				}()
			}
			scope.Close()
			wg.Wait()
		})
	}
}

// BenchmarkContextPropagation measures the context.Context helpers.
func BenchmarkContextPropagation(b *testing.B) {
	tracer := scopez.New()
	defer tracer.Close()
	ctx, root := tracer.StartSpanFromContext(context.Background(), "root")
	defer root.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		forked := scopez.Fork(ctx)
		_, scope := tracer.StartSpanFromContext(forked, "child", scopez.ChildOf(root.Span().Context()))
		scope.Close()
	}
}
