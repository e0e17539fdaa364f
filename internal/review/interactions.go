package review

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
	"github.com/LiamFearon/LocalAINews/internal/render"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
)

const maxInteractionBody = 1 << 20

// HandleInteraction serves the Discord interactions webhook. Button clicks from
// reviewers become decisions; the click is answered with a deferred update because
// the decision loop edits the message itself once the outcome is applied.
func (g *Gateway) HandleInteraction(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInteractionBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	sig := c.GetHeader(discord.HeaderSignature)
	ts := c.GetHeader(discord.HeaderTimestamp)
	if !discord.VerifySignature(g.publicKey, sig, ts, body) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid request signature"})
		return
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid interaction payload"})
		return
	}

	switch in.Type {
	case discord.InteractionPing:
		c.JSON(http.StatusOK, discord.InteractionResponse{Type: discord.ResponsePong})
	case discord.InteractionMessageComponent:
		c.JSON(http.StatusOK, g.handleComponent(in))
	default:
		c.JSON(http.StatusOK, discord.Ephemeral("Unsupported interaction."))
	}
}

func (g *Gateway) handleComponent(in discord.Interaction) discord.InteractionResponse {
	if in.Data == nil || in.Message == nil || in.Message.ID == "" {
		return discord.Ephemeral("Unknown action.")
	}
	outcome, ok := render.OutcomeForCustomID(in.Data.CustomID)
	if !ok {
		return discord.Ephemeral("Unknown action.")
	}

	user, roles := in.Actor()
	if !g.Authorized(user.ID, roles) {
		g.metrics.Decision(domain.SourceDiscord, outcome, metrics.DecisionUnauthorized)
		g.log.WarnObj("decision from non-admin ignored", "review_unauthorized", map[string]any{
			"user_id":         user.ID,
			"user":            user.DisplayName(),
			"correlation_key": in.Message.ID,
		})
		return discord.Ephemeral("You are not allowed to review drafts.")
	}

	err := g.Submit(domain.Decision{
		CorrelationKey: in.Message.ID,
		Outcome:        outcome,
		Actor:          user.DisplayName(),
		Source:         domain.SourceDiscord,
	})
	if errors.Is(err, ErrQueueFull) {
		return discord.Ephemeral("The review queue is busy, please click again in a moment.")
	}
	return discord.InteractionResponse{Type: discord.ResponseDeferredUpdate}
}
