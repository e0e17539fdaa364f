package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
)

const DefaultAPIBase = "https://discord.com/api/v10"

// APIError is a non-2xx reply from the Discord REST API.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("discord api: HTTP %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// Options configures the REST client.
type Options struct {
	Token   string
	APIBase string
	Timeout time.Duration
	// Attempts bounds transport retries. Retries only happen on 429 and on failures to
	// connect, so a message is never sent twice.
	Attempts int
	HTTP     httpclient.Client
	// Logger receives transport diagnostics; nil discards them.
	Logger httpclient.Logger
}

// Client is a minimal bot-token REST client for channel messages.
type Client struct {
	http    httpclient.Client
	base    string
	headers map[string]string
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.APIBase), "/")
	if base == "" {
		base = DefaultAPIBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := opts.HTTP
	if hc == nil {
		hc = httpclient.NewRestyClient(opts.Timeout,
			httpclient.WithRetry(opts.Attempts, 500*time.Millisecond, 5*time.Second,
				httpclient.RetryOnTooManyRequests, httpclient.RetryOnDialError),
			httpclient.WithLogger(opts.Logger),
		)
	}
	return &Client{
		http:    hc,
		base:    base,
		headers: map[string]string{"Authorization": "Bot " + token},
	}, nil
}

// SendMessage posts a message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID string, msg MessageCreate) (Message, error) {
	if channelID == "" {
		return Message{}, errors.New("send message: channel id is empty")
	}
	resp, err := c.http.Post(ctx, c.base+"/channels/"+channelID+"/messages", c.headers, msg)
	if err != nil {
		return Message{}, fmt.Errorf("send message to channel %s: %w", channelID, err)
	}
	var out Message
	if err := decode(resp, &out); err != nil {
		return Message{}, fmt.Errorf("send message to channel %s: %w", channelID, err)
	}
	return out, nil
}

// EditMessage replaces a message's content, embeds and components.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, edit MessageEdit) (Message, error) {
	if channelID == "" || messageID == "" {
		return Message{}, errors.New("edit message: channel and message id are required")
	}
	if edit.Components == nil {
		edit.Components = []Component{}
	}
	resp, err := c.http.Patch(ctx, c.base+"/channels/"+channelID+"/messages/"+messageID, c.headers, edit)
	if err != nil {
		return Message{}, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	var out Message
	if err := decode(resp, &out); err != nil {
		return Message{}, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return out, nil
}

// GetChannel fetches channel metadata; used to check access at startup.
func (c *Client) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	resp, err := c.http.Get(ctx, c.base+"/channels/"+channelID, c.headers)
	if err != nil {
		return Channel{}, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	var out Channel
	if err := decode(resp, &out); err != nil {
		return Channel{}, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	return out, nil
}

func decode(resp *resty.Response, out any) error {
	if !resp.IsSuccess() {
		apiErr := &APIError{Status: resp.StatusCode()}
		_ = json.Unmarshal(resp.Body(), apiErr)
		return apiErr
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}
