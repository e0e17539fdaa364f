package publishers

import (
	"context"
	"fmt"
	"io"
)

// queueSender hands an encoded event to one provider and returns the provider's
// message id.
type queueSender interface {
	Send(ctx context.Context, body []byte, attrs map[string]string, evt Event) (string, error)
}

// queuePublisher delivers events to a cloud queue or topic.
type queuePublisher struct {
	id       string
	provider string
	sender   queueSender
	log      Logger
}

func newQueuePublisher(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error) {
	q := cfg.Queue
	if q == nil {
		return nil, fmt.Errorf("sink %q: queue section is missing", cfg.ID)
	}
	var (
		sender queueSender
		err    error
	)
	switch q.Provider {
	case ProviderSQS:
		sender, err = newSQSSender(ctx, q.SQS)
	case ProviderSNS:
		sender, err = newSNSSender(ctx, q.SNS)
	case ProviderPubSub:
		sender, err = newPubSubSender(ctx, q.PubSub)
	default:
		err = fmt.Errorf("queue provider %q not supported", q.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &queuePublisher{id: cfg.ID, provider: q.Provider, sender: sender, log: log}, nil
}

func (p *queuePublisher) ID() string   { return p.id }
func (p *queuePublisher) Type() string { return TypeQueue }

func (p *queuePublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.encode()
	if err != nil {
		return err
	}
	msgID, err := p.sender.Send(ctx, body, evt.attributes(), evt)
	if err != nil {
		return fmt.Errorf("%s send: %w", p.provider, err)
	}
	p.log.DebugObj("queue sink delivered event", "sink_queue_delivered", map[string]any{
		"sink":       p.id,
		"provider":   p.provider,
		"draft_id":   evt.DraftID,
		"message_id": msgID,
	})
	return nil
}

func (p *queuePublisher) Close() error {
	if c, ok := p.sender.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
