package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Interaction types.
const (
	InteractionPing             = 1
	InteractionApplicationCmd   = 2
	InteractionMessageComponent = 3
)

// Interaction callback types.
const (
	ResponsePong           = 1
	ResponseChannelMessage = 4
	ResponseDeferredUpdate = 6
	ResponseUpdateMessage  = 7
)

// Signature headers sent with every interaction webhook.
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// Interaction is the inbound webhook payload. Only the fields used for button clicks
// are decoded.
type Interaction struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"application_id"`
	Type          int            `json:"type"`
	Token         string         `json:"token"`
	ChannelID     string         `json:"channel_id"`
	GuildID       string         `json:"guild_id,omitempty"`
	Data          *ComponentData `json:"data,omitempty"`
	Member        *Member        `json:"member,omitempty"`
	User          *User          `json:"user,omitempty"`
	Message       *Message       `json:"message,omitempty"`
}

type ComponentData struct {
	CustomID      string `json:"custom_id"`
	ComponentType int    `json:"component_type"`
}

// Actor returns the clicking user and their guild roles. Guild interactions carry the
// user inside member; DMs carry it at the top level.
func (i Interaction) Actor() (User, []string) {
	if i.Member != nil && i.Member.User != nil {
		return *i.Member.User, i.Member.Roles
	}
	if i.User != nil {
		return *i.User, nil
	}
	return User{}, nil
}

// InteractionResponse is the synchronous reply to an interaction webhook.
type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionCallbackData `json:"data,omitempty"`
}

type InteractionCallbackData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

// Ephemeral builds a reply only the clicking user sees.
func Ephemeral(content string) InteractionResponse {
	return InteractionResponse{
		Type: ResponseChannelMessage,
		Data: &InteractionCallbackData{Content: content, Flags: MessageFlagEphemeral},
	}
}

// ParsePublicKey decodes the application's hex-encoded Ed25519 public key.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("public key has wrong length")
	}
	return ed25519.PublicKey(raw), nil
}

// VerifySignature checks the Ed25519 signature Discord computes over timestamp+body.
func VerifySignature(key ed25519.PublicKey, signatureHex, timestamp string, body []byte) bool {
	if len(key) != ed25519.PublicKeySize || signatureHex == "" || timestamp == "" {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	return ed25519.Verify(key, msg, sig)
}
