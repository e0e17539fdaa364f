package domain

import (
	"strings"
	"time"
)

// Domain contains core models shared by the pipeline packages.

// Article is an item returned by an ingestion provider. It is never mutated after fetch.
type Article struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"provider_id,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Summary is the model output for one article.
type Summary struct {
	Title        string   `json:"title,omitempty"`
	Text         string   `json:"text,omitempty"`
	KeyPoints    []string `json:"key_points,omitempty"`
	WhyItMatters string   `json:"why_it_matters,omitempty"`
}

// Body renders the summary as display text: bullets when key points exist, otherwise
// the plain text.
func (s Summary) Body() string {
	if len(s.KeyPoints) == 0 {
		return strings.TrimSpace(s.Text)
	}
	var b strings.Builder
	for i, pt := range s.KeyPoints {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(pt))
	}
	return b.String()
}

// IsEmpty reports whether the summary carries no usable text.
func (s Summary) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.KeyPoints) == 0
}

// DisplayTitle prefers the model-proposed title and falls back to the article title.
func DisplayTitle(a Article, s Summary) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return strings.TrimSpace(a.Title)
}

// Outcome is the reviewer's verdict.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeApprove || o == OutcomeReject
}

// ParseOutcome maps loose reviewer input onto an Outcome.
func ParseOutcome(raw string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved", "accept", "accepted":
		return OutcomeApprove, true
	case "reject", "rejected", "deny", "denied":
		return OutcomeReject, true
	}
	return "", false
}

// Decision sources.
const (
	SourceDiscord = "discord"
	SourceKafka   = "kafka"
)

// Decision is an inbound reviewer signal. It is consumed once and not retained.
type Decision struct {
	CorrelationKey string    `json:"correlation_key"`
	Outcome        Outcome   `json:"outcome"`
	Actor          string    `json:"actor"`
	Source         string    `json:"source,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// PublishedPost describes the public message created for an approved draft.
type PublishedPost struct {
	DraftID     string    `json:"draft_id"`
	ChannelID   string    `json:"channel_id"`
	MessageID   string    `json:"message_id"`
	PublishedAt time.Time `json:"published_at"`
}
