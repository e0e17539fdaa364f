package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event describes one article that went live on the public channel. It is the payload
// every downstream sink receives.
type Event struct {
	DraftID      string    `json:"draft_id"`
	ArticleID    string    `json:"article_id"`
	Topic        string    `json:"topic,omitempty"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary,omitempty"`
	KeyPoints    []string  `json:"key_points,omitempty"`
	WhyItMatters string    `json:"why_it_matters,omitempty"`
	ArticleURL   string    `json:"article_url"`
	Source       string    `json:"source,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	ApprovedBy   string    `json:"approved_by,omitempty"`
	ChannelID    string    `json:"channel_id"`
	MessageID    string    `json:"message_id"`
	PublishedAt  time.Time `json:"published_at"`
}

// attributes are copied onto queue messages so subscribers can filter without decoding.
func (e Event) attributes() map[string]string {
	out := map[string]string{"draft_id": e.DraftID}
	if e.Topic != "" {
		out["topic"] = e.Topic
	}
	return out
}

func (e Event) encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.DraftID, err)
	}
	return b, nil
}

// Publisher delivers events to one downstream sink. Sinks that hold connections also
// implement io.Closer.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Logger is the logging surface sinks use.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	InfoObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
}

type nopLogger struct{}

func (nopLogger) DebugObj(string, string, map[string]any) {}
func (nopLogger) InfoObj(string, string, map[string]any)  {}
func (nopLogger) WarnObj(string, string, map[string]any)  {}
func (nopLogger) ErrorObj(string, string, map[string]any) {}

func ensureLogger(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
