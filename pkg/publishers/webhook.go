package publishers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
)

// webhookPublisher sends each event as a JSON body to a URL.
type webhookPublisher struct {
	id      string
	url     string
	method  string
	headers map[string]string
	client  *resty.Client
	log     Logger
}

func newWebhookPublisher(_ context.Context, cfg SinkConfig, log Logger) (Publisher, error) {
	w := cfg.Webhook
	if w == nil || w.URL == "" {
		return nil, fmt.Errorf("sink %q: webhook.url is missing", cfg.ID)
	}
	timeout := time.Duration(w.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultWebhookTimeout * time.Second
	}
	method := w.Method
	if method == "" {
		method = defaultWebhookMethod
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetLogger(httpclient.RestyLogger(log))
	return &webhookPublisher{
		id:      cfg.ID,
		url:     w.URL,
		method:  method,
		headers: w.Headers,
		client:  client,
		log:     log,
	}, nil
}

func (p *webhookPublisher) ID() string   { return p.id }
func (p *webhookPublisher) Type() string { return TypeWebhook }

func (p *webhookPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.encode()
	if err != nil {
		return err
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeaders(p.headers).
		SetHeader("Idempotency-Key", evt.DraftID).
		SetBody(body).
		Execute(p.method, p.url)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", p.id, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook %s: HTTP %d", p.id, resp.StatusCode())
	}
	p.log.DebugObj("webhook sink delivered event", "sink_webhook_delivered", map[string]any{
		"sink":     p.id,
		"draft_id": evt.DraftID,
		"status":   resp.StatusCode(),
	})
	return nil
}
