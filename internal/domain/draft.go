package domain

import "time"

// DraftState is a step in the review lifecycle.
type DraftState string

const (
	StateSummarizing   DraftState = "summarizing"
	StatePendingReview DraftState = "pending_review"
	StatePublishing    DraftState = "publishing"
	StatePublished     DraftState = "published"
	StateDiscarded     DraftState = "discarded"
	StateFailed        DraftState = "failed"
)

// rank orders states; transitions may only move to a higher rank.
var rank = map[DraftState]int{
	StateSummarizing:   1,
	StatePendingReview: 2,
	StatePublishing:    3,
	StatePublished:     4,
	StateDiscarded:     4,
	StateFailed:        4,
}

// Terminal reports whether no further transition can happen from s.
func (s DraftState) Terminal() bool {
	return s == StatePublished || s == StateDiscarded || s == StateFailed
}

// CanTransition reports whether moving from s to next keeps the lifecycle monotonic.
func (s DraftState) CanTransition(next DraftState) bool {
	if s.Terminal() {
		return false
	}
	from, ok := rank[s]
	if !ok {
		return false
	}
	to, ok := rank[next]
	return ok && to > from
}

// Terminal reasons recorded on drafts for audit.
const (
	ReasonApproved        = "approved"
	ReasonRejected        = "rejected"
	ReasonExpired         = "expired"
	ReasonSummarizeFailed = "summarize_failed"
	ReasonDeliveryFailed  = "delivery_failed"
	ReasonPublishFailed   = "publish_failed"
)

// Draft is the mutable unit of review work. The draft manager owns the canonical copy;
// everything else handles value snapshots.
type Draft struct {
	ID             string     `json:"id"`
	Article        Article    `json:"article"`
	Summary        Summary    `json:"summary"`
	CorrelationKey string     `json:"correlation_key,omitempty"`
	State          DraftState `json:"state"`
	Reason         string     `json:"reason,omitempty"`
	Actor          string     `json:"actor,omitempty"`
	PostID         string     `json:"post_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	PostedAt       time.Time  `json:"posted_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
