package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

const namespace = "localainews"

// Decision results.
const (
	DecisionApplied         = "applied"
	DecisionMiss            = "correlation_miss"
	DecisionAlreadyResolved = "already_resolved"
	DecisionExpired         = "expired"
	DecisionUnauthorized    = "unauthorized"
	DecisionDropped         = "dropped"
	DecisionInvalid         = "invalid"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	draftsCreated     prometheus.Counter
	draftsTerminal    *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	summarizeDuration *prometheus.HistogramVec
	pendingReview     prometheus.Gauge
	cycles            *prometheus.CounterVec
	publications      *prometheus.CounterVec
	sinkEvents        *prometheus.CounterVec
	articlesFetched   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		draftsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_created_total",
			Help:      "Drafts created from summarized articles.",
		}),
		draftsTerminal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_terminal_total",
			Help:      "Drafts that reached a terminal state.",
		}, []string{"state", "reason"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Reviewer decisions by source, outcome and result.",
		}, []string{"source", "outcome", "result"}),
		summarizeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarize_duration_seconds",
			Help:      "LM Studio summarization latency.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"result"}),
		pendingReview: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drafts_pending_review",
			Help:      "Drafts currently awaiting a reviewer decision.",
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_cycles_total",
			Help:      "Ingestion cycles by result.",
		}, []string{"result"}),
		publications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_total",
			Help:      "Public posts by result.",
		}, []string{"result"}),
		sinkEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_events_total",
			Help:      "Downstream sink deliveries by sink and result.",
		}, []string{"sink", "result"}),
		articlesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Articles returned by providers.",
		}, []string{"provider"}),
	}
}

func (m *Metrics) DraftCreated() {
	if m == nil {
		return
	}
	m.draftsCreated.Inc()
}

// DraftTerminal records a draft reaching a terminal state.
func (m *Metrics) DraftTerminal(d domain.Draft) {
	if m == nil || !d.State.Terminal() {
		return
	}
	m.draftsTerminal.WithLabelValues(string(d.State), d.Reason).Inc()
}

func (m *Metrics) Decision(source string, outcome domain.Outcome, result string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(source, string(outcome), result).Inc()
}

func (m *Metrics) SummarizeObserved(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.summarizeDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) SetPendingReview(n int) {
	if m == nil {
		return
	}
	m.pendingReview.Set(float64(n))
}

func (m *Metrics) Cycle(result string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
}

func (m *Metrics) Publication(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.publications.WithLabelValues(result).Inc()
}

func (m *Metrics) SinkEvent(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkEvents.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) ArticlesFetched(provider string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.articlesFetched.WithLabelValues(provider).Add(float64(n))
}
