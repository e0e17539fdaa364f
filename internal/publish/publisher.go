package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
	"github.com/LiamFearon/LocalAINews/internal/render"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
	"github.com/LiamFearon/LocalAINews/pkg/publishers"
)

// ErrPublish wraps every failure to create the public post.
var ErrPublish = errors.New("publish failed")

const defaultSinkTimeout = 10 * time.Second

// Sender is the Discord call the publisher makes.
type Sender interface {
	SendMessage(ctx context.Context, channelID string, msg discord.MessageCreate) (discord.Message, error)
}

// Options configures a Publisher.
type Options struct {
	Sender      Sender
	ChannelID   string
	Sinks       []publishers.Publisher
	SinkTimeout time.Duration
	Clock       func() time.Time
	Logger      logger.Logger
	Metrics     *metrics.Metrics
}

// Publisher posts approved drafts to the public channel and notifies the downstream sinks.
type Publisher struct {
	sender      Sender
	channelID   string
	sinks       []publishers.Publisher
	sinkTimeout time.Duration
	now         func() time.Time
	log         logger.Logger
	metrics     *metrics.Metrics
	wg          sync.WaitGroup
}

func New(opts Options) (*Publisher, error) {
	if opts.Sender == nil {
		return nil, errors.New("publisher: sender is nil")
	}
	channel := strings.TrimSpace(opts.ChannelID)
	if channel == "" {
		return nil, errors.New("publisher: channel id is empty")
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = defaultSinkTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Publisher{
		sender:      opts.Sender,
		channelID:   channel,
		sinks:       opts.Sinks,
		sinkTimeout: opts.SinkTimeout,
		now:         opts.Clock,
		log:         logger.Ensure(opts.Logger),
		metrics:     opts.Metrics,
	}, nil
}

// Publish creates the public post for d with a single send. The caller must hold the
// publication claim for d; Publish never retries an ambiguous send itself.
func (p *Publisher) Publish(ctx context.Context, d domain.Draft) (domain.PublishedPost, error) {
	now := p.now()
	msg, err := p.sender.SendMessage(ctx, p.channelID, render.PublicMessage(d, now))
	if err == nil && msg.ID == "" {
		err = errors.New("reply carried no message id")
	}
	p.metrics.Publication(err)
	if err != nil {
		return domain.PublishedPost{}, fmt.Errorf("%w: draft %s: %w", ErrPublish, d.ID, err)
	}

	post := domain.PublishedPost{
		DraftID:     d.ID,
		ChannelID:   p.channelID,
		MessageID:   msg.ID,
		PublishedAt: now,
	}
	p.log.InfoObj("draft published", "publish_done", map[string]any{
		"draft_id":   d.ID,
		"article_id": d.Article.ID,
		"message_id": msg.ID,
		"actor":      d.Actor,
	})
	p.fanOut(d, post)
	return post, nil
}

// Wait blocks until in-flight sink deliveries finish.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// fanOut delivers the event to every sink in the background so a slow sink never
// holds up the decision loop.
func (p *Publisher) fanOut(d domain.Draft, post domain.PublishedPost) {
	if len(p.sinks) == 0 {
		return
	}
	evt := Event(d, post)
	for _, sink := range p.sinks {
		p.wg.Add(1)
		go func(sink publishers.Publisher) {
			defer p.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), p.sinkTimeout)
			defer cancel()
			err := sink.Publish(ctx, evt)
			p.metrics.SinkEvent(sink.ID(), err)
			if err != nil {
				p.log.WarnObj("sink delivery failed", "publish_sink_failed", map[string]any{
					"sink":     sink.ID(),
					"type":     sink.Type(),
					"draft_id": d.ID,
					"error":    err.Error(),
				})
			}
		}(sink)
	}
}

// Event converts a published draft into the payload downstream sinks receive.
func Event(d domain.Draft, post domain.PublishedPost) publishers.Event {
	return publishers.Event{
		DraftID:      d.ID,
		ArticleID:    d.Article.ID,
		Topic:        d.Article.Topic,
		Title:        domain.DisplayTitle(d.Article, d.Summary),
		Summary:      d.Summary.Text,
		KeyPoints:    d.Summary.KeyPoints,
		WhyItMatters: d.Summary.WhyItMatters,
		ArticleURL:   d.Article.URL,
		Source:       d.Article.Source,
		ImageURL:     d.Article.ImageURL,
		ApprovedBy:   d.Actor,
		ChannelID:    post.ChannelID,
		MessageID:    post.MessageID,
		PublishedAt:  post.PublishedAt,
	}
}
