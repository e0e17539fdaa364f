package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// pubsubTopic is the part of *pubsub.Topic the sender uses.
type pubsubTopic interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicAdapter struct{ t *pubsub.Topic }

func (a topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return a.t.Publish(ctx, msg)
}

func (a topicAdapter) Stop() { a.t.Stop() }

type pubsubSender struct {
	topic  pubsubTopic
	client io.Closer
}

func newPubSubSender(ctx context.Context, cfg *PubSubConfig) (*pubsubSender, error) {
	if cfg == nil {
		return nil, errors.New("pubsub section is missing")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &pubsubSender{topic: topicAdapter{t: client.Topic(cfg.Topic)}, client: client}, nil
}

// Send waits for the server to acknowledge the message.
func (s *pubsubSender) Send(ctx context.Context, body []byte, attrs map[string]string, _ Event) (string, error) {
	return s.topic.Publish(ctx, &pubsub.Message{Data: body, Attributes: attrs}).Get(ctx)
}

// Close flushes buffered messages and closes the client.
func (s *pubsubSender) Close() error {
	s.topic.Stop()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
