package scopez

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for a Tracer and its manager.
// A nil *Metrics records nothing.
type Metrics struct {
	SpansStarted          prometheus.Counter
	SpansFinished         prometheus.Counter
	ScopesActivated       *prometheus.CounterVec
	ScopeCloses           *prometheus.CounterVec
	ContinuationsCaptured prometheus.Counter
	HandlerPanics         prometheus.Counter
	DroppedSpans          prometheus.Counter
}

// NewMetrics registers the scopez metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SpansStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopez_spans_started_total",
			Help: "Total number of spans started",
		}),
		SpansFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopez_spans_finished_total",
			Help: "Total number of spans finished",
		}),
		ScopesActivated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scopez_scopes_activated_total",
				Help: "Total number of scope activations",
			},
			[]string{"discipline"},
		),
		ScopeCloses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scopez_scope_closes_total",
				Help: "Total number of scope closes by outcome",
			},
			[]string{"result"},
		),
		ContinuationsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopez_continuations_captured_total",
			Help: "Total number of continuations captured",
		}),
		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopez_handler_panics_total",
			Help: "Total number of recovered span handler panics",
		}),
		DroppedSpans: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopez_dropped_spans_total",
			Help: "Total number of finished spans dropped by a full worker queue",
		}),
	}
}

func (m *Metrics) spanStarted() {
	if m != nil {
		m.SpansStarted.Inc()
	}
}

func (m *Metrics) spanFinished() {
	if m != nil {
		m.SpansFinished.Inc()
	}
}

func (m *Metrics) scopeActivated(discipline string) {
	if m != nil {
		m.ScopesActivated.WithLabelValues(discipline).Inc()
	}
}

func (m *Metrics) scopeClosed(result CloseResult) {
	if m != nil {
		m.ScopeCloses.WithLabelValues(result.String()).Inc()
	}
}

func (m *Metrics) continuationCaptured() {
	if m != nil {
		m.ContinuationsCaptured.Inc()
	}
}

func (m *Metrics) handlerPanicked() {
	if m != nil {
		m.HandlerPanics.Inc()
	}
}

func (m *Metrics) spanDropped() {
	if m != nil {
		m.DroppedSpans.Inc()
	}
}
