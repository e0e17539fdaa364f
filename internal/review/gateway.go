package review

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
	"github.com/LiamFearon/LocalAINews/internal/render"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
)

var (
	// ErrDelivery means the review surface could not be reached or refused the post.
	ErrDelivery = errors.New("review delivery failed")
	// ErrQueueFull is returned by Submit when the decision loop is not keeping up.
	ErrQueueFull = errors.New("decision queue full")
)

const defaultQueueSize = 64

// Messenger is the subset of the Discord client the gateway needs.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg discord.MessageCreate) (discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, edit discord.MessageEdit) (discord.Message, error)
}

// Options configures a Gateway.
type Options struct {
	Messenger    Messenger
	ChannelID    string
	QueueSize    int
	AdminUserIDs []string
	AdminRoleIDs []string
	// PublicKey verifies inbound interaction webhooks. Without it every webhook is
	// rejected.
	PublicKey ed25519.PublicKey
	Clock     func() time.Time
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// Gateway posts drafts to the private review channel and turns reviewer actions into
// decisions on a single queue.
type Gateway struct {
	messenger Messenger
	channelID string
	queue     chan domain.Decision
	users     map[string]struct{}
	roles     map[string]struct{}
	publicKey ed25519.PublicKey
	now       func() time.Time
	log       logger.Logger
	metrics   *metrics.Metrics
}

// New builds a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Messenger == nil {
		return nil, errors.New("review gateway: messenger is nil")
	}
	if strings.TrimSpace(opts.ChannelID) == "" {
		return nil, errors.New("review gateway: channel id is empty")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	g := &Gateway{
		messenger: opts.Messenger,
		channelID: strings.TrimSpace(opts.ChannelID),
		queue:     make(chan domain.Decision, opts.QueueSize),
		users:     toSet(opts.AdminUserIDs),
		roles:     toSet(opts.AdminRoleIDs),
		publicKey: opts.PublicKey,
		now:       opts.Clock,
		log:       logger.Ensure(opts.Logger),
		metrics:   opts.Metrics,
	}
	if len(g.publicKey) == 0 {
		g.log.WarnObj("no interaction public key configured; button clicks will be rejected", "review_no_public_key", nil)
	}
	return g, nil
}

// Post renders the draft to the review channel and returns the message id, which
// becomes the draft's correlation key.
func (g *Gateway) Post(ctx context.Context, d domain.Draft) (string, error) {
	msg, err := g.messenger.SendMessage(ctx, g.channelID, render.ReviewMessage(d))
	if err != nil {
		return "", fmt.Errorf("%w: draft %s: %w", ErrDelivery, d.ID, err)
	}
	if msg.ID == "" {
		return "", fmt.Errorf("%w: draft %s: reply carried no message id", ErrDelivery, d.ID)
	}
	g.log.InfoObj("draft posted for review", "review_posted", map[string]any{
		"draft_id":        d.ID,
		"article_id":      d.Article.ID,
		"correlation_key": msg.ID,
	})
	return msg.ID, nil
}

// Acknowledge edits the review message to show the draft's final state and removes
// the buttons. Failures are returned for logging only.
func (g *Gateway) Acknowledge(ctx context.Context, d domain.Draft) error {
	if d.CorrelationKey == "" {
		return nil
	}
	if _, err := g.messenger.EditMessage(ctx, g.channelID, d.CorrelationKey, render.Acknowledgement(d)); err != nil {
		return fmt.Errorf("acknowledge draft %s: %w", d.ID, err)
	}
	return nil
}

// Decisions is the queue consumed by the decision loop.
func (g *Gateway) Decisions() <-chan domain.Decision {
	return g.queue
}

// Submit enqueues a decision without blocking.
func (g *Gateway) Submit(dec domain.Decision) error {
	g.stamp(&dec)
	select {
	case g.queue <- dec:
		return nil
	default:
		g.metrics.Decision(dec.Source, dec.Outcome, metrics.DecisionDropped)
		g.log.WarnObj("decision dropped, queue full", "review_queue_full", map[string]any{
			"correlation_key": dec.CorrelationKey,
			"actor":           dec.Actor,
		})
		return ErrQueueFull
	}
}

// SubmitWait enqueues a decision, waiting for room until ctx ends.
func (g *Gateway) SubmitWait(ctx context.Context, dec domain.Decision) error {
	g.stamp(&dec)
	select {
	case g.queue <- dec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authorized reports whether a user may decide on drafts.
func (g *Gateway) Authorized(userID string, roles []string) bool {
	if _, ok := g.users[userID]; ok && userID != "" {
		return true
	}
	for _, r := range roles {
		if _, ok := g.roles[r]; ok {
			return true
		}
	}
	return false
}

func (g *Gateway) stamp(dec *domain.Decision) {
	if dec.ReceivedAt.IsZero() {
		dec.ReceivedAt = g.now()
	}
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out[it] = struct{}{}
		}
	}
	return out
}
