package routing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/botchat/internal/routing")

// Metrics holds the routing Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	routes      *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	replies     *prometheus.CounterVec
	genDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botchat",
			Subsystem: "routing",
			Name:      "routes_total",
			Help:      "Routing passes by decision path.",
		}, []string{"path"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botchat",
			Subsystem: "routing",
			Name:      "orchestrator_decisions_total",
			Help:      "Orchestrator outcomes: respond, decline, malformed, error.",
		}, []string{"result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botchat",
			Subsystem: "routing",
			Name:      "replies_total",
			Help:      "Bot reply generations by result.",
		}, []string{"result"}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "botchat",
			Subsystem: "routing",
			Name:      "generation_duration_seconds",
			Help:      "Latency of bot reply model calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.routes, m.decisions, m.replies, m.genDuration)
	}
	return m
}

func (m *Metrics) route(path string) {
	if m != nil {
		m.routes.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) decision(result string) {
	if m != nil {
		m.decisions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) reply(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(result).Inc()
	m.genDuration.Observe(took.Seconds())
}
