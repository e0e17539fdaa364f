package review

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/render"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []discord.MessageCreate
	edits   map[string]discord.MessageEdit
	sendErr error
	nextID  string
}

func (f *fakeMessenger) SendMessage(_ context.Context, channelID string, msg discord.MessageCreate) (discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return discord.Message{}, f.sendErr
	}
	f.sent = append(f.sent, msg)
	return discord.Message{ID: f.nextID, ChannelID: channelID}, nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, channelID, messageID string, edit discord.MessageEdit) (discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edits == nil {
		f.edits = map[string]discord.MessageEdit{}
	}
	f.edits[messageID] = edit
	return discord.Message{ID: messageID, ChannelID: channelID}, nil
}

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T, m Messenger, pub ed25519.PublicKey, queue int) *Gateway {
	t.Helper()
	g, err := New(Options{
		Messenger:    m,
		ChannelID:    "111",
		QueueSize:    queue,
		AdminUserIDs: []string{"42"},
		AdminRoleIDs: []string{"mods"},
		PublicKey:    pub,
		Clock:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return g
}

func TestPostReturnsMessageIDAsKey(t *testing.T) {
	m := &fakeMessenger{nextID: "msg-42"}
	g := newTestGateway(t, m, nil, 4)

	key, err := g.Post(context.Background(), domain.Draft{ID: "d1", Article: domain.Article{ID: "a1", Title: "X raises funding"}})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", key)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "X raises funding", m.sent[0].Embeds[0].Title)
}

func TestPostFailureIsDeliveryError(t *testing.T) {
	g := newTestGateway(t, &fakeMessenger{sendErr: errors.New("502")}, nil, 4)
	_, err := g.Post(context.Background(), domain.Draft{ID: "d1"})
	require.ErrorIs(t, err, ErrDelivery)

	g = newTestGateway(t, &fakeMessenger{}, nil, 4)
	_, err = g.Post(context.Background(), domain.Draft{ID: "d1"})
	require.ErrorIs(t, err, ErrDelivery)
}

func TestAcknowledgeEditsReviewMessage(t *testing.T) {
	m := &fakeMessenger{}
	g := newTestGateway(t, m, nil, 4)

	require.NoError(t, g.Acknowledge(context.Background(), domain.Draft{
		ID: "d1", CorrelationKey: "msg-42", State: domain.StateDiscarded, Reason: domain.ReasonRejected, Actor: "bob",
	}))
	edit := m.edits["msg-42"]
	assert.Equal(t, "❌ Rejected by bob", edit.Content)
	assert.Empty(t, edit.Components)

	require.NoError(t, g.Acknowledge(context.Background(), domain.Draft{ID: "d2"}))
	assert.Len(t, m.edits, 1)
}

func TestSubmitDropsWhenFull(t *testing.T) {
	g := newTestGateway(t, &fakeMessenger{}, nil, 1)

	require.NoError(t, g.Submit(domain.Decision{CorrelationKey: "msg-1", Outcome: domain.OutcomeApprove}))
	require.ErrorIs(t, g.Submit(domain.Decision{CorrelationKey: "msg-2", Outcome: domain.OutcomeApprove}), ErrQueueFull)

	dec := <-g.Decisions()
	assert.Equal(t, "msg-1", dec.CorrelationKey)
	assert.Equal(t, testNow, dec.ReceivedAt)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, g.SubmitWait(ctx, domain.Decision{CorrelationKey: "msg-3"}))
	cancel()
	require.ErrorIs(t, g.SubmitWait(ctx, domain.Decision{CorrelationKey: "msg-4"}), context.Canceled)
}

func TestAuthorized(t *testing.T) {
	g := newTestGateway(t, &fakeMessenger{}, nil, 1)
	assert.True(t, g.Authorized("42", nil))
	assert.True(t, g.Authorized("7", []string{"x", "mods"}))
	assert.False(t, g.Authorized("7", []string{"x"}))
	assert.False(t, g.Authorized("", nil))
}

type signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) signer {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return signer{pub: pub, priv: priv}
}

func (s signer) request(t *testing.T, body string) *http.Request {
	t.Helper()
	ts := "1700000000"
	sig := ed25519.Sign(s.priv, []byte(ts+body))
	req := httptest.NewRequest(http.MethodPost, "/discord/interactions", strings.NewReader(body))
	req.Header.Set(discord.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(discord.HeaderTimestamp, ts)
	return req
}

func serve(g *Gateway, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/discord/interactions", g.HandleInteraction)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func clickBody(customID, userID string, roles []string) string {
	body, _ := json.Marshal(map[string]any{
		"id":   "i1",
		"type": discord.InteractionMessageComponent,
		"data": map[string]any{"custom_id": customID, "component_type": discord.ComponentButton},
		"member": map[string]any{
			"user":  map[string]any{"id": userID, "username": "alice"},
			"roles": roles,
		},
		"message": map[string]any{"id": "msg-42", "channel_id": "111"},
	})
	return string(body)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) discord.InteractionResponse {
	t.Helper()
	var resp discord.InteractionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestInteractionPing(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 4)

	w := serve(g, s.request(t, `{"type":1}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, discord.ResponsePong, decodeResponse(t, w).Type)
}

func TestInteractionRejectsBadSignature(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 4)

	req := s.request(t, `{"type":1}`)
	req.Header.Set(discord.HeaderTimestamp, "1700000001")
	assert.Equal(t, http.StatusUnauthorized, serve(g, req).Code)

	noKey := newTestGateway(t, &fakeMessenger{}, nil, 4)
	assert.Equal(t, http.StatusUnauthorized, serve(noKey, s.request(t, `{"type":1}`)).Code)
}

func TestAdminClickQueuesDecision(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 4)

	w := serve(g, s.request(t, clickBody(render.CustomIDApprove, "42", nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, discord.ResponseDeferredUpdate, decodeResponse(t, w).Type)

	select {
	case dec := <-g.Decisions():
		assert.Equal(t, "msg-42", dec.CorrelationKey)
		assert.Equal(t, domain.OutcomeApprove, dec.Outcome)
		assert.Equal(t, "alice", dec.Actor)
		assert.Equal(t, domain.SourceDiscord, dec.Source)
	default:
		t.Fatal("expected a queued decision")
	}
}

func TestRoleHolderClickQueuesDecision(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 4)

	w := serve(g, s.request(t, clickBody(render.CustomIDReject, "7", []string{"mods"})))
	assert.Equal(t, discord.ResponseDeferredUpdate, decodeResponse(t, w).Type)
	dec := <-g.Decisions()
	assert.Equal(t, domain.OutcomeReject, dec.Outcome)
}

func TestNonAdminClickIsIgnored(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 4)

	w := serve(g, s.request(t, clickBody(render.CustomIDApprove, "7", []string{"everyone"})))
	resp := decodeResponse(t, w)
	assert.Equal(t, discord.ResponseChannelMessage, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(t, discord.MessageFlagEphemeral, resp.Data.Flags)
	assert.Empty(t, g.Decisions())
}

func TestUnknownButtonIsIgnored(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 4)

	resp := decodeResponse(t, serve(g, s.request(t, clickBody("other:thing", "42", nil))))
	assert.Equal(t, discord.ResponseChannelMessage, resp.Type)
	assert.Empty(t, g.Decisions())
}

func TestFullQueueAsksToRetry(t *testing.T) {
	s := newSigner(t)
	g := newTestGateway(t, &fakeMessenger{}, s.pub, 1)
	require.NoError(t, g.Submit(domain.Decision{CorrelationKey: "msg-1"}))

	resp := decodeResponse(t, serve(g, s.request(t, clickBody(render.CustomIDApprove, "42", nil))))
	assert.Equal(t, discord.ResponseChannelMessage, resp.Type)
	assert.Contains(t, resp.Data.Content, "busy")
}
