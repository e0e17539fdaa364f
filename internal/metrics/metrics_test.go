package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DraftCreated()
	m.DraftTerminal(domain.Draft{State: domain.StateDiscarded, Reason: domain.ReasonExpired})
	m.DraftTerminal(domain.Draft{State: domain.StatePendingReview})
	m.Decision(domain.SourceDiscord, domain.OutcomeApprove, DecisionApplied)
	m.Decision(domain.SourceDiscord, domain.OutcomeApprove, DecisionApplied)
	m.SummarizeObserved(2*time.Second, nil)
	m.SetPendingReview(3)
	m.Publication(errors.New("boom"))
	m.SinkEvent("archive", nil)
	m.ArticlesFetched("newsapi", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.draftsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.draftsTerminal.WithLabelValues("discarded", "expired")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("discord", "approve", "applied")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pendingReview))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publications.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.articlesFetched.WithLabelValues("newsapi")))

	n, err := testutil.GatherAndCount(reg, "localainews_drafts_terminal_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.DraftCreated()
	m.DraftTerminal(domain.Draft{State: domain.StatePublished})
	m.Decision("kafka", domain.OutcomeReject, DecisionMiss)
	m.SummarizeObserved(time.Second, nil)
	m.SetPendingReview(1)
	m.Cycle("ok")
	m.Publication(nil)
	m.SinkEvent("s", nil)
	m.ArticlesFetched("rss", 1)
}
