package drafts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
)

var (
	// ErrCorrelationMiss is returned for decisions whose key matches no draft.
	ErrCorrelationMiss = errors.New("correlation key matches no draft")
	// ErrAlreadyResolved is returned when a decision arrives for a draft that is no
	// longer pending review. The draft is left untouched.
	ErrAlreadyResolved = errors.New("draft already resolved")
	// ErrExpired wraps ErrAlreadyResolved when a decision arrived after the review
	// window and the draft was expired by that same call.
	ErrExpired = fmt.Errorf("review window elapsed: %w", ErrAlreadyResolved)

	ErrNotFound          = errors.New("draft not found")
	ErrDuplicateDraft    = errors.New("article already has a live draft")
	ErrInvalidTransition = errors.New("invalid draft transition")
	ErrKeyInUse          = errors.New("correlation key already registered")
	ErrInvalidOutcome    = errors.New("invalid decision outcome")
)

const (
	defaultReviewWindow = 24 * time.Hour
	defaultRetention    = 7 * 24 * time.Hour
)

// Options configures a Manager.
type Options struct {
	// ReviewWindow is how long a draft may stay pending before it expires.
	ReviewWindow time.Duration
	// Retention is how long terminal drafts stay in the table before Prune drops them.
	Retention time.Duration
	Clock     func() time.Time
	NewID     func() string
	Logger    logger.Logger
}

// Manager owns every draft and the correlation-key index. All transitions are a single
// locked check-and-set, so racing callers cannot both move the same draft.
type Manager struct {
	mu        sync.RWMutex
	drafts    map[string]*domain.Draft
	byKey     map[string]string
	byArticle map[string]string

	window    time.Duration
	retention time.Duration
	now       func() time.Time
	newID     func() string
	log       logger.Logger
}

// NewManager builds an empty manager.
func NewManager(opts Options) *Manager {
	if opts.ReviewWindow <= 0 {
		opts.ReviewWindow = defaultReviewWindow
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Manager{
		drafts:    make(map[string]*domain.Draft),
		byKey:     make(map[string]string),
		byArticle: make(map[string]string),
		window:    opts.ReviewWindow,
		retention: opts.Retention,
		now:       opts.Clock,
		newID:     opts.NewID,
		log:       logger.Ensure(opts.Logger),
	}
}

// ReviewWindow returns the configured pending-review timeout.
func (m *Manager) ReviewWindow() time.Duration { return m.window }

// Create registers a draft in the summarizing state with the summary attached. The
// draft becomes reviewable only after MarkPosted.
func (m *Manager) Create(article domain.Article, summary domain.Summary) (domain.Draft, error) {
	if article.ID == "" {
		return domain.Draft{}, errors.New("create draft: article id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byArticle[article.ID]; ok {
		return domain.Draft{}, fmt.Errorf("%w: article %s draft %s", ErrDuplicateDraft, article.ID, id)
	}

	now := m.now()
	d := &domain.Draft{
		ID:        m.newID(),
		Article:   article,
		Summary:   summary,
		State:     domain.StateSummarizing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.drafts[d.ID] = d
	m.byArticle[article.ID] = d.ID
	return *d, nil
}

// RecordFailure stores a terminal failed draft for an article whose summary could not
// be produced, so the attempt shows up in the audit trail.
func (m *Manager) RecordFailure(article domain.Article, cause error) domain.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	d := &domain.Draft{
		ID:        m.newID(),
		Article:   article,
		State:     domain.StateFailed,
		Reason:    domain.ReasonSummarizeFailed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.drafts[d.ID] = d

	fields := map[string]any{"draft_id": d.ID, "article_id": article.ID}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	m.log.WarnObj("draft failed during summarization", "draft_summarize_failed", fields)
	return *d
}

// MarkPosted records the review message key and moves the draft to pending review.
func (m *Manager) MarkPosted(draftID, key string) (domain.Draft, error) {
	if key == "" {
		return domain.Draft{}, errors.New("mark posted: correlation key is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[draftID]
	if !ok {
		return domain.Draft{}, fmt.Errorf("%w: %s", ErrNotFound, draftID)
	}
	if owner, taken := m.byKey[key]; taken && owner != draftID {
		return domain.Draft{}, fmt.Errorf("%w: %s", ErrKeyInUse, key)
	}
	if err := m.transition(d, domain.StatePendingReview); err != nil {
		return *d, err
	}
	d.CorrelationKey = key
	d.PostedAt = d.UpdatedAt
	m.byKey[key] = d.ID
	return *d, nil
}

// Fail moves a summarizing or publishing draft to failed with the given reason.
func (m *Manager) Fail(draftID, reason string) (domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[draftID]
	if !ok {
		return domain.Draft{}, fmt.Errorf("%w: %s", ErrNotFound, draftID)
	}
	if d.State != domain.StateSummarizing && d.State != domain.StatePublishing {
		return *d, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, d.State)
	}
	if err := m.transition(d, domain.StateFailed); err != nil {
		return *d, err
	}
	d.Reason = reason
	m.release(d)
	return *d, nil
}

// Resolve applies a reviewer decision to the draft registered under key. Approval
// claims the draft for publication (publishing); rejection discards it. A decision for
// a draft that is no longer pending returns ErrAlreadyResolved and changes nothing. A
// decision for a draft whose review window has elapsed expires it and returns
// ErrExpired.
func (m *Manager) Resolve(key string, outcome domain.Outcome, actor string) (domain.Draft, error) {
	if !outcome.Valid() {
		return domain.Draft{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		return domain.Draft{}, fmt.Errorf("%w: %s", ErrCorrelationMiss, key)
	}
	d := m.drafts[id]
	if d.State != domain.StatePendingReview {
		return *d, fmt.Errorf("%w: draft %s is %s", ErrAlreadyResolved, d.ID, d.State)
	}
	if m.overdue(d, m.now()) {
		m.expire(d)
		return *d, fmt.Errorf("%w: draft %s", ErrExpired, d.ID)
	}

	switch outcome {
	case domain.OutcomeApprove:
		if err := m.transition(d, domain.StatePublishing); err != nil {
			return *d, err
		}
	case domain.OutcomeReject:
		if err := m.transition(d, domain.StateDiscarded); err != nil {
			return *d, err
		}
		d.Reason = domain.ReasonRejected
		m.release(d)
	}
	d.Actor = actor
	return *d, nil
}

// CompletePublish records the public post for a claimed draft.
func (m *Manager) CompletePublish(draftID string, post domain.PublishedPost) (domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[draftID]
	if !ok {
		return domain.Draft{}, fmt.Errorf("%w: %s", ErrNotFound, draftID)
	}
	if d.State != domain.StatePublishing {
		return *d, fmt.Errorf("%w: complete publish from %s", ErrInvalidTransition, d.State)
	}
	if err := m.transition(d, domain.StatePublished); err != nil {
		return *d, err
	}
	d.Reason = domain.ReasonApproved
	d.PostID = post.MessageID
	m.release(d)
	return *d, nil
}

// Expire discards a pending draft because its review window elapsed.
func (m *Manager) Expire(draftID string) (domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[draftID]
	if !ok {
		return domain.Draft{}, fmt.Errorf("%w: %s", ErrNotFound, draftID)
	}
	if d.State != domain.StatePendingReview {
		return *d, fmt.Errorf("%w: draft %s is %s", ErrAlreadyResolved, d.ID, d.State)
	}
	m.expire(d)
	return *d, nil
}

// ExpireDue expires every pending draft older than the review window and returns them
// in posting order.
func (m *Manager) ExpireDue(now time.Time) []domain.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Draft
	for _, d := range m.drafts {
		if d.State == domain.StatePendingReview && m.overdue(d, now) {
			m.expire(d)
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out
}

// Prune drops terminal drafts last updated before now minus the retention period and
// returns how many were removed. Their correlation keys stop resolving.
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.retention)
	removed := 0
	for id, d := range m.drafts {
		if !d.State.Terminal() || !d.UpdatedAt.Before(cutoff) {
			continue
		}
		if d.CorrelationKey != "" && m.byKey[d.CorrelationKey] == id {
			delete(m.byKey, d.CorrelationKey)
		}
		delete(m.drafts, id)
		removed++
	}
	return removed
}

// Get returns a copy of the draft with the given id.
func (m *Manager) Get(id string) (domain.Draft, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return domain.Draft{}, false
	}
	return *d, true
}

// Lookup returns a copy of the draft registered under a correlation key.
func (m *Manager) Lookup(key string) (domain.Draft, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return domain.Draft{}, false
	}
	return *m.drafts[id], true
}

// HasLive reports whether a non-terminal draft exists for the article.
func (m *Manager) HasLive(articleID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byArticle[articleID]
	return ok
}

// Snapshot returns copies of all drafts, newest first.
func (m *Manager) Snapshot() []domain.Draft {
	m.mu.RLock()
	out := make([]domain.Draft, 0, len(m.drafts))
	for _, d := range m.drafts {
		out = append(out, *d)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats counts drafts by state.
func (m *Manager) Stats() map[domain.DraftState]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.DraftState]int)
	for _, d := range m.drafts {
		out[d.State]++
	}
	return out
}

// transition must be called with the lock held.
func (m *Manager) transition(d *domain.Draft, next domain.DraftState) error {
	if !d.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, next)
	}
	d.State = next
	d.UpdatedAt = m.now()
	return nil
}

func (m *Manager) expire(d *domain.Draft) {
	d.State = domain.StateDiscarded
	d.Reason = domain.ReasonExpired
	d.UpdatedAt = m.now()
	m.release(d)
}

func (m *Manager) overdue(d *domain.Draft, now time.Time) bool {
	return now.After(d.PostedAt.Add(m.window))
}

// release frees the article for future drafts once its draft is terminal.
func (m *Manager) release(d *domain.Draft) {
	if m.byArticle[d.Article.ID] == d.ID {
		delete(m.byArticle, d.Article.ID)
	}
}
