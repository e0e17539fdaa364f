package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/drafts"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
)

// Run is the decision loop. It applies queued decisions one at a time and expires
// overdue drafts on every tick, until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.expiryInterval)
	defer ticker.Stop()

	decisions := o.reviewer.Decisions()
	o.log.InfoObj("decision loop started", "pipeline_loop_started", map[string]any{
		"expiry_interval": o.expiryInterval.String(),
		"review_window":   o.drafts.ReviewWindow().String(),
	})
	for {
		select {
		case <-ctx.Done():
			o.log.InfoObj("decision loop stopped", "pipeline_loop_stopped", nil)
			return nil
		case dec, ok := <-decisions:
			if !ok {
				return nil
			}
			_ = o.HandleDecision(ctx, dec)
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// HandleDecision applies one decision end to end: resolve, publish on approval,
// record the outcome and update the review message. The returned error describes why
// a decision had no effect; it is informational.
func (o *Orchestrator) HandleDecision(ctx context.Context, dec domain.Decision) error {
	fields := map[string]any{
		"correlation_key": dec.CorrelationKey,
		"outcome":         string(dec.Outcome),
		"actor":           dec.Actor,
		"source":          dec.Source,
	}

	d, err := o.drafts.Resolve(dec.CorrelationKey, dec.Outcome, dec.Actor)
	switch {
	case err == nil:
	case errors.Is(err, drafts.ErrCorrelationMiss):
		o.metrics.Decision(dec.Source, dec.Outcome, metrics.DecisionMiss)
		o.log.WarnObj("decision for unknown draft ignored", "pipeline_correlation_miss", fields)
		return err
	case errors.Is(err, drafts.ErrExpired):
		o.metrics.Decision(dec.Source, dec.Outcome, metrics.DecisionExpired)
		o.metrics.DraftTerminal(d)
		o.log.InfoObj("decision arrived after review window, draft expired", "pipeline_decision_late", withDraft(fields, d))
		o.acknowledge(ctx, d)
		o.refreshPending()
		return err
	case errors.Is(err, drafts.ErrAlreadyResolved):
		o.metrics.Decision(dec.Source, dec.Outcome, metrics.DecisionAlreadyResolved)
		o.log.InfoObj("decision for resolved draft ignored", "pipeline_already_resolved", withDraft(fields, d))
		return err
	case errors.Is(err, drafts.ErrInvalidOutcome):
		o.metrics.Decision(dec.Source, dec.Outcome, metrics.DecisionInvalid)
		o.log.WarnObj("decision with invalid outcome ignored", "pipeline_invalid_decision", fields)
		return err
	default:
		o.log.ErrorObj("decision failed", "pipeline_decision_error", withErr(fields, err))
		return err
	}

	o.metrics.Decision(dec.Source, dec.Outcome, metrics.DecisionApplied)
	defer o.refreshPending()

	if d.State == domain.StateDiscarded {
		o.metrics.DraftTerminal(d)
		o.log.InfoObj("draft rejected", "pipeline_draft_rejected", withDraft(fields, d))
		o.acknowledge(ctx, d)
		return nil
	}

	post, err := o.publisher.Publish(ctx, d)
	if err != nil {
		failed, ferr := o.drafts.Fail(d.ID, domain.ReasonPublishFailed)
		if ferr != nil {
			o.log.ErrorObj("publish failure not recorded", "pipeline_fail_draft_error", withErr(withDraft(fields, d), ferr))
			return err
		}
		o.metrics.DraftTerminal(failed)
		o.log.ErrorObj("approved draft could not be published", "pipeline_publish_failed", withErr(withDraft(fields, failed), err))
		o.acknowledge(ctx, failed)
		return err
	}

	done, err := o.drafts.CompletePublish(d.ID, post)
	if err != nil {
		o.log.ErrorObj("published draft not recorded", "pipeline_complete_publish_error", withErr(withDraft(fields, d), err))
		return err
	}
	o.metrics.DraftTerminal(done)
	o.log.InfoObj("draft approved and published", "pipeline_draft_published", map[string]any{
		"draft_id":   done.ID,
		"article_id": done.Article.ID,
		"actor":      done.Actor,
		"post_id":    done.PostID,
	})
	o.acknowledge(ctx, done)
	return nil
}

// Sweep expires every overdue pending draft and prunes old terminal drafts.
func (o *Orchestrator) Sweep(ctx context.Context) []domain.Draft {
	now := o.now()
	expired := o.drafts.ExpireDue(now)
	for _, d := range expired {
		o.metrics.DraftTerminal(d)
		o.log.InfoObj("draft expired without a decision", "pipeline_draft_expired", map[string]any{
			"draft_id":        d.ID,
			"article_id":      d.Article.ID,
			"correlation_key": d.CorrelationKey,
		})
		o.acknowledge(ctx, d)
	}
	if n := o.drafts.Prune(now); n > 0 {
		o.log.DebugObj("pruned terminal drafts", "pipeline_pruned", map[string]any{"count": n})
	}
	o.refreshPending()
	return expired
}

// acknowledge is best effort; the draft's state is already final.
func (o *Orchestrator) acknowledge(ctx context.Context, d domain.Draft) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), acknowledgeTimeout)
	defer cancel()
	if err := o.reviewer.Acknowledge(actx, d); err != nil {
		o.log.WarnObj("review message not updated", "pipeline_acknowledge_failed", map[string]any{
			"draft_id": d.ID,
			"state":    string(d.State),
			"error":    err.Error(),
		})
	}
}

func (o *Orchestrator) refreshPending() {
	o.metrics.SetPendingReview(o.drafts.Stats()[domain.StatePendingReview])
}

func withDraft(fields map[string]any, d domain.Draft) map[string]any {
	out := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	out["draft_id"] = d.ID
	out["article_id"] = d.Article.ID
	out["state"] = string(d.State)
	return out
}
