package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/dedup"
	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/drafts"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
	"github.com/LiamFearon/LocalAINews/internal/summarizer"
	"github.com/LiamFearon/LocalAINews/pkg/providers"
)

var (
	// ErrIngestion wraps provider failures that ended a topic's fetch.
	ErrIngestion = errors.New("ingestion failed")
	// ErrCycleRunning is returned when a cycle is requested while one is in progress.
	ErrCycleRunning = errors.New("ingestion cycle already running")
)

// Cycle results recorded in metrics and reports.
const (
	CycleOK          = "ok"
	CycleRateLimited = "rate_limited"
	CycleStoreError  = "store_error"
	CycleCoolingDown = "cooling_down"
	CycleCancelled   = "cancelled"
)

const (
	defaultMaxDrafts        = 1
	defaultSummarizeTimeout = 150 * time.Second
	defaultPostAttempts     = 2
	defaultPostBackoff      = 2 * time.Second
	defaultExpiryInterval   = time.Minute
	defaultCooldown         = 15 * time.Minute
	acknowledgeTimeout      = 15 * time.Second
	markSeenTimeout         = 5 * time.Second
)

// Reviewer is the review surface the orchestrator posts drafts to and reads decisions from.
type Reviewer interface {
	Post(ctx context.Context, d domain.Draft) (string, error)
	Acknowledge(ctx context.Context, d domain.Draft) error
	Decisions() <-chan domain.Decision
}

// Publisher creates the public post for a claimed draft.
type Publisher interface {
	Publish(ctx context.Context, d domain.Draft) (domain.PublishedPost, error)
}

// Enricher fills in article metadata before summarizing.
type Enricher interface {
	Enrich(ctx context.Context, articles []domain.Article) []domain.Article
}

// Topics supplies the topic order for each cycle.
type Topics interface {
	Next() []string
	MarkUsed(topic string)
	Reset()
}

// Options wires an Orchestrator.
type Options struct {
	Fetchers   []providers.Fetcher
	Topics     Topics
	Store      dedup.Store
	Summarizer summarizer.Summarizer
	Drafts     *drafts.Manager
	Reviewer   Reviewer
	Publisher  Publisher
	// Enricher is optional.
	Enricher Enricher

	MaxDraftsPerCycle int
	SummarizeTimeout  time.Duration
	PostAttempts      int
	PostBackoff       time.Duration
	ExpiryInterval    time.Duration
	RateLimitCooldown time.Duration

	Clock   func() time.Time
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Result          string    `json:"result"`
	Topics          []string  `json:"topics"`
	Fetched         int       `json:"fetched"`
	Skipped         int       `json:"skipped"`
	Drafted         int       `json:"drafted"`
	SummarizeFailed int       `json:"summarize_failed"`
	DeliveryFailed  int       `json:"delivery_failed"`
	CooldownUntil   time.Time `json:"cooldown_until,omitempty"`
}

// Orchestrator runs ingestion cycles and the decision loop. Cycles are the only
// creators of drafts; the decision loop is the only resolver and expirer.
type Orchestrator struct {
	fetchers   []providers.Fetcher
	topics     Topics
	store      dedup.Store
	summarizer summarizer.Summarizer
	drafts     *drafts.Manager
	reviewer   Reviewer
	publisher  Publisher
	enricher   Enricher

	maxDrafts        int
	summarizeTimeout time.Duration
	postAttempts     int
	postBackoff      time.Duration
	expiryInterval   time.Duration
	cooldown         time.Duration

	now     func() time.Time
	log     logger.Logger
	metrics *metrics.Metrics

	running       atomic.Bool
	background    sync.WaitGroup
	mu            sync.Mutex
	cooldownUntil time.Time
	lastReport    *CycleReport
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case len(opts.Fetchers) == 0:
		return nil, errors.New("orchestrator: no fetchers")
	case opts.Topics == nil:
		return nil, errors.New("orchestrator: topics are nil")
	case opts.Store == nil:
		return nil, errors.New("orchestrator: store is nil")
	case opts.Summarizer == nil:
		return nil, errors.New("orchestrator: summarizer is nil")
	case opts.Drafts == nil:
		return nil, errors.New("orchestrator: draft manager is nil")
	case opts.Reviewer == nil:
		return nil, errors.New("orchestrator: reviewer is nil")
	case opts.Publisher == nil:
		return nil, errors.New("orchestrator: publisher is nil")
	}
	if opts.MaxDraftsPerCycle <= 0 {
		opts.MaxDraftsPerCycle = defaultMaxDrafts
	}
	if opts.SummarizeTimeout <= 0 {
		opts.SummarizeTimeout = defaultSummarizeTimeout
	}
	if opts.PostAttempts <= 0 {
		opts.PostAttempts = defaultPostAttempts
	}
	if opts.PostBackoff < 0 {
		opts.PostBackoff = 0
	} else if opts.PostBackoff == 0 {
		opts.PostBackoff = defaultPostBackoff
	}
	if opts.ExpiryInterval <= 0 {
		opts.ExpiryInterval = defaultExpiryInterval
	}
	if opts.RateLimitCooldown <= 0 {
		opts.RateLimitCooldown = defaultCooldown
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		fetchers:         opts.Fetchers,
		topics:           opts.Topics,
		store:            opts.Store,
		summarizer:       opts.Summarizer,
		drafts:           opts.Drafts,
		reviewer:         opts.Reviewer,
		publisher:        opts.Publisher,
		enricher:         opts.Enricher,
		maxDrafts:        opts.MaxDraftsPerCycle,
		summarizeTimeout: opts.SummarizeTimeout,
		postAttempts:     opts.PostAttempts,
		postBackoff:      opts.PostBackoff,
		expiryInterval:   opts.ExpiryInterval,
		cooldown:         opts.RateLimitCooldown,
		now:              opts.Clock,
		log:              logger.Ensure(opts.Logger),
		metrics:          opts.Metrics,
	}, nil
}

// Running reports whether a cycle is in progress.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// LastReport returns the most recent finished cycle, if any.
func (o *Orchestrator) LastReport() (CycleReport, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastReport == nil {
		return CycleReport{}, false
	}
	return *o.lastReport, true
}

// ResetTopics makes every topic available again.
func (o *Orchestrator) ResetTopics() {
	o.topics.Reset()
	o.log.InfoObj("topic rotation reset", "pipeline_topics_reset", nil)
}

// RunCycle runs one ingestion cycle and waits for it. It returns ErrCycleRunning when
// another cycle holds the slot.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleRunning
	}
	defer o.running.Store(false)
	return o.runCycle(ctx)
}

// StartCycle claims the cycle slot and runs the cycle in the background.
func (o *Orchestrator) StartCycle(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrCycleRunning
	}
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer o.running.Store(false)
		if _, err := o.runCycle(ctx); err != nil {
			o.log.ErrorObj("ingestion cycle aborted", "pipeline_cycle_aborted", map[string]any{"error": err.Error()})
		}
	}()
	return nil
}

// Wait blocks until cycles started with StartCycle have returned.
func (o *Orchestrator) Wait() { o.background.Wait() }

func (o *Orchestrator) runCycle(ctx context.Context) (report CycleReport, err error) {
	report.StartedAt = o.now()
	defer func() {
		report.FinishedAt = o.now()
		o.metrics.Cycle(report.Result)
		o.metrics.SetPendingReview(o.drafts.Stats()[domain.StatePendingReview])
		o.mu.Lock()
		r := report
		o.lastReport = &r
		o.mu.Unlock()
		o.log.InfoObj("ingestion cycle finished", "pipeline_cycle_done", map[string]any{
			"result":           report.Result,
			"topics":           len(report.Topics),
			"fetched":          report.Fetched,
			"skipped":          report.Skipped,
			"drafted":          report.Drafted,
			"summarize_failed": report.SummarizeFailed,
			"delivery_failed":  report.DeliveryFailed,
			"duration_ms":      report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		})
	}()

	o.mu.Lock()
	until := o.cooldownUntil
	o.mu.Unlock()
	if report.StartedAt.Before(until) {
		report.Result = CycleCoolingDown
		report.CooldownUntil = until
		return report, nil
	}

	report.Result = CycleOK
	for _, topic := range o.topics.Next() {
		if report.Drafted >= o.maxDrafts {
			break
		}
		if ctx.Err() != nil {
			report.Result = CycleCancelled
			return report, ctx.Err()
		}
		report.Topics = append(report.Topics, topic)

		candidates, rateLimited := o.fetchTopic(ctx, topic, &report)
		if rateLimited {
			until := o.now().Add(o.cooldown)
			o.mu.Lock()
			o.cooldownUntil = until
			o.mu.Unlock()
			report.Result = CycleRateLimited
			report.CooldownUntil = until
			o.log.WarnObj("provider rate limit reached, pausing ingestion", "pipeline_rate_limited", map[string]any{
				"topic": topic,
				"until": until,
			})
			return report, nil
		}

		drafted, err := o.processTopic(ctx, topic, candidates, &report)
		if err != nil {
			if errors.Is(err, dedup.ErrStoreUnavailable) {
				report.Result = CycleStoreError
			} else {
				report.Result = CycleCancelled
			}
			return report, err
		}
		if drafted > 0 {
			o.topics.MarkUsed(topic)
		}
	}
	return report, nil
}

// fetchTopic asks every fetcher for the topic. A failing fetcher is logged and
// skipped; a rate-limited one ends the cycle.
func (o *Orchestrator) fetchTopic(ctx context.Context, topic string, report *CycleReport) ([]domain.Article, bool) {
	var out []domain.Article
	for _, f := range o.fetchers {
		articles, err := f.Fetch(ctx, providers.Query{Topic: topic})
		if errors.Is(err, providers.ErrRateLimited) {
			return nil, true
		}
		if err != nil {
			o.log.WarnObj("topic fetch failed", "pipeline_fetch_failed", map[string]any{
				"provider": f.ID(),
				"topic":    topic,
				"error":    fmt.Errorf("%w: %w", ErrIngestion, err).Error(),
			})
			continue
		}
		o.metrics.ArticlesFetched(f.ID(), len(articles))
		report.Fetched += len(articles)
		out = append(out, articles...)
	}
	return out, false
}

// processTopic drafts unseen candidates until the per-cycle limit is reached. Only a
// store failure is returned.
func (o *Orchestrator) processTopic(ctx context.Context, topic string, candidates []domain.Article, report *CycleReport) (int, error) {
	fresh := make([]domain.Article, 0, len(candidates))
	picked := map[string]struct{}{}
	for _, a := range candidates {
		if _, dup := picked[a.ID]; dup {
			continue
		}
		seen, err := o.store.HasSeen(ctx, a.ID)
		if err != nil {
			return 0, fmt.Errorf("check seen %s: %w", a.ID, err)
		}
		if seen || o.drafts.HasLive(a.ID) {
			report.Skipped++
			continue
		}
		picked[a.ID] = struct{}{}
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		o.log.DebugObj("no new articles for topic", "pipeline_topic_empty", map[string]any{"topic": topic})
		return 0, nil
	}
	if o.enricher != nil {
		fresh = o.enricher.Enrich(ctx, fresh)
	}

	drafted := 0
	for _, a := range fresh {
		if report.Drafted >= o.maxDrafts {
			break
		}
		if ctx.Err() != nil {
			return drafted, ctx.Err()
		}
		ok, err := o.draftArticle(ctx, a, report)
		if err != nil {
			return drafted, err
		}
		if ok {
			drafted++
		}
	}
	return drafted, nil
}

// draftArticle summarizes, posts for review and marks the article seen. It reports
// whether a draft reached pending review.
func (o *Orchestrator) draftArticle(ctx context.Context, a domain.Article, report *CycleReport) (bool, error) {
	fields := map[string]any{"article_id": a.ID, "topic": a.Topic, "url": a.URL}

	sctx, cancel := context.WithTimeout(ctx, o.summarizeTimeout)
	started := o.now()
	summary, err := o.summarizer.Summarize(sctx, a)
	cancel()
	o.metrics.SummarizeObserved(o.now().Sub(started), err)
	if err != nil {
		d := o.drafts.RecordFailure(a, err)
		o.metrics.DraftTerminal(d)
		report.SummarizeFailed++
		return false, nil
	}

	d, err := o.drafts.Create(a, summary)
	if err != nil {
		o.log.WarnObj("draft not created", "pipeline_draft_create_failed", withErr(fields, err))
		report.Skipped++
		return false, nil
	}
	o.metrics.DraftCreated()

	key, err := o.post(ctx, d)
	if err != nil {
		o.failDraft(d.ID, domain.ReasonDeliveryFailed, err)
		report.DeliveryFailed++
		return false, nil
	}
	if _, err := o.drafts.MarkPosted(d.ID, key); err != nil {
		o.failDraft(d.ID, domain.ReasonDeliveryFailed, err)
		report.DeliveryFailed++
		return false, nil
	}
	report.Drafted++

	// The review message is already out, so the write must land even when the cycle
	// is being cancelled.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markSeenTimeout)
	err = o.store.MarkSeen(mctx, a.ID)
	cancel()
	if err != nil {
		o.log.ErrorObj("article posted but not marked seen", "pipeline_mark_seen_failed", withErr(fields, err))
		return true, fmt.Errorf("mark seen %s: %w", a.ID, err)
	}
	o.log.InfoObj("draft awaiting review", "pipeline_draft_posted", map[string]any{
		"draft_id":        d.ID,
		"article_id":      a.ID,
		"correlation_key": key,
		"topic":           a.Topic,
	})
	return true, nil
}

// post sends the review message with bounded attempts.
func (o *Orchestrator) post(ctx context.Context, d domain.Draft) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.postAttempts; attempt++ {
		key, err := o.reviewer.Post(ctx, d)
		if err == nil {
			return key, nil
		}
		lastErr = err
		o.log.WarnObj("review post failed", "pipeline_post_failed", map[string]any{
			"draft_id": d.ID,
			"attempt":  attempt,
			"error":    err.Error(),
		})
		if attempt == o.postAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(o.postBackoff):
		}
	}
	return "", lastErr
}

func (o *Orchestrator) failDraft(id, reason string, cause error) {
	d, err := o.drafts.Fail(id, reason)
	if err != nil {
		o.log.ErrorObj("draft could not be failed", "pipeline_fail_draft_error", map[string]any{
			"draft_id": id,
			"reason":   reason,
			"error":    err.Error(),
		})
		return
	}
	o.metrics.DraftTerminal(d)
	o.log.WarnObj("draft failed", "pipeline_draft_failed", map[string]any{
		"draft_id":   id,
		"article_id": d.Article.ID,
		"reason":     reason,
		"error":      cause.Error(),
	})
}

func withErr(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
