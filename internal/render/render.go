package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
)

// Button custom ids on review messages.
const (
	CustomIDApprove = "review:approve"
	CustomIDReject  = "review:reject"
)

const (
	colorReview    = 0x5865F2
	colorPublic    = 0x2ECC71
	colorRejected  = 0xE74C3C
	colorNeutral   = 0x95A5A6
	noSummaryValue = "No summary available."
)

// OutcomeForCustomID maps a review button id to its outcome.
func OutcomeForCustomID(id string) (domain.Outcome, bool) {
	switch id {
	case CustomIDApprove:
		return domain.OutcomeApprove, true
	case CustomIDReject:
		return domain.OutcomeReject, true
	}
	return "", false
}

// ReviewMessage renders a draft for the private review channel with Accept/Reject
// buttons.
func ReviewMessage(d domain.Draft) discord.MessageCreate {
	return discord.MessageCreate{
		Content: discord.Truncate(reviewContent(d), discord.MaxContent),
		Embeds:  []discord.Embed{draftEmbed(d, colorReview)},
		Components: []discord.Component{
			discord.ActionRow(
				discord.Button(discord.ButtonSuccess, "Accept", CustomIDApprove),
				discord.Button(discord.ButtonDanger, "Reject", CustomIDReject),
			),
		},
	}
}

// Acknowledgement rewrites a review message once its draft has a final outcome. The
// buttons are removed.
func Acknowledgement(d domain.Draft) discord.MessageEdit {
	color := colorNeutral
	switch {
	case d.State == domain.StatePublished:
		color = colorPublic
	case d.Reason == domain.ReasonRejected || d.State == domain.StateFailed:
		color = colorRejected
	}
	return discord.MessageEdit{
		Content:    StatusLine(d),
		Embeds:     []discord.Embed{draftEmbed(d, color)},
		Components: []discord.Component{},
	}
}

// StatusLine describes a resolved draft in one line.
func StatusLine(d domain.Draft) string {
	actor := d.Actor
	if actor == "" {
		actor = "unknown reviewer"
	}
	switch {
	case d.State == domain.StatePublished:
		return fmt.Sprintf("✅ Accepted and posted by %s", actor)
	case d.State == domain.StateDiscarded && d.Reason == domain.ReasonRejected:
		return fmt.Sprintf("❌ Rejected by %s", actor)
	case d.State == domain.StateDiscarded && d.Reason == domain.ReasonExpired:
		return "⌛ Expired without a decision"
	case d.State == domain.StateFailed && d.Reason == domain.ReasonPublishFailed:
		return fmt.Sprintf("⚠️ Accepted by %s but publishing failed", actor)
	case d.State == domain.StatePublishing:
		return fmt.Sprintf("⏳ Accepted by %s, publishing", actor)
	}
	return fmt.Sprintf("Draft is %s", d.State)
}

// PublicMessage renders an approved draft for the public channel.
func PublicMessage(d domain.Draft, now time.Time) discord.MessageCreate {
	e := draftEmbed(d, colorPublic)
	e.Timestamp = now.UTC().Format(time.RFC3339)
	return discord.MessageCreate{Embeds: []discord.Embed{e}}
}

func reviewContent(d domain.Draft) string {
	var b strings.Builder
	b.WriteString("📰 New article for review")
	if d.Article.Topic != "" {
		fmt.Fprintf(&b, " (topic: %s)", d.Article.Topic)
	}
	return b.String()
}

func draftEmbed(d domain.Draft, color int) discord.Embed {
	body := d.Summary.Body()
	if body == "" {
		body = strings.TrimSpace(d.Article.Description)
	}
	if body == "" {
		body = noSummaryValue
	}

	e := discord.Embed{
		Title:       discord.Truncate(domain.DisplayTitle(d.Article, d.Summary), discord.MaxEmbedTitle),
		Description: discord.Truncate(body, 4000),
		URL:         d.Article.URL,
		Color:       color,
	}
	if src := strings.TrimSpace(d.Article.Source); src != "" {
		e.Fields = append(e.Fields, discord.EmbedField{Name: "Source", Value: discord.Truncate(src, discord.MaxEmbedFieldValue), Inline: true})
	}
	if d.Article.URL != "" {
		e.Fields = append(e.Fields, discord.EmbedField{Name: "Link", Value: discord.Truncate(d.Article.URL, discord.MaxEmbedFieldValue), Inline: true})
	}
	if why := strings.TrimSpace(d.Summary.WhyItMatters); why != "" {
		e.Fields = append(e.Fields, discord.EmbedField{Name: "Why it matters", Value: discord.Truncate(why, discord.MaxEmbedFieldValue)})
	}
	if d.Article.Topic != "" {
		e.Footer = &discord.EmbedFooter{Text: discord.Truncate("#"+d.Article.Topic, discord.MaxEmbedFooter)}
	}
	if d.Article.ImageURL != "" {
		e.Image = &discord.EmbedImage{URL: d.Article.ImageURL}
	}
	return e
}
