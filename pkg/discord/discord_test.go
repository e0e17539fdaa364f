package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessagePostsToChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/111/messages", r.URL.Path)
		assert.Equal(t, "Bot token", r.Header.Get("Authorization"))

		var body MessageCreate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Content)
		require.Len(t, body.Components, 1)
		assert.Equal(t, "review:approve", body.Components[0].Components[0].CustomID)

		fmt.Fprint(w, `{"id":"msg-42","channel_id":"111","content":"hello"}`)
	}))
	defer srv.Close()

	c, err := New(Options{Token: "token", APIBase: srv.URL})
	require.NoError(t, err)

	msg, err := c.SendMessage(context.Background(), "111", MessageCreate{
		Content:    "hello",
		Components: []Component{ActionRow(Button(ButtonSuccess, "Accept", "review:approve"))},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", msg.ID)
}

func TestEditMessageAlwaysSendsComponents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/channels/111/messages/msg-42", r.URL.Path)
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `[]`, string(raw["components"]))
		fmt.Fprint(w, `{"id":"msg-42","channel_id":"111"}`)
	}))
	defer srv.Close()

	c, err := New(Options{Token: "token", APIBase: srv.URL})
	require.NoError(t, err)
	_, err = c.EditMessage(context.Background(), "111", "msg-42", MessageEdit{Content: "done"})
	require.NoError(t, err)
}

func TestAPIErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"code":50001,"message":"Missing Access"}`)
	}))
	defer srv.Close()

	c, err := New(Options{Token: "token", APIBase: srv.URL})
	require.NoError(t, err)
	_, err = c.GetChannel(context.Background(), "111")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, 50001, apiErr.Code)
	assert.Equal(t, "Missing Access", apiErr.Message)
}

func TestSendMessageRetriesOnlyRateLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c, err := New(Options{Token: "token", APIBase: srv.URL, Attempts: 5, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.SendMessage(context.Background(), "111", MessageCreate{Content: "x"})
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	body := []byte(`{"type":1}`)
	ts := "1700000000"
	sig := hex.EncodeToString(ed25519.Sign(priv, append([]byte(ts), body...)))

	key, err := ParsePublicKey(hex.EncodeToString(pub))
	require.NoError(t, err)
	assert.True(t, VerifySignature(key, sig, ts, body))
	assert.False(t, VerifySignature(key, sig, "1700000001", body))
	assert.False(t, VerifySignature(key, sig, ts, []byte(`{"type":3}`)))
	assert.False(t, VerifySignature(key, "zz", ts, body))
	assert.False(t, VerifySignature(key, "", ts, body))

	_, err = ParsePublicKey("abcd")
	require.Error(t, err)
}

func TestInteractionActor(t *testing.T) {
	var i Interaction
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": 3,
		"data": {"custom_id": "review:approve", "component_type": 2},
		"member": {"user": {"id": "42", "username": "alice"}, "roles": ["r1"]},
		"message": {"id": "msg-42", "channel_id": "111"}
	}`), &i))

	u, roles := i.Actor()
	assert.Equal(t, "42", u.ID)
	assert.Equal(t, "alice", u.DisplayName())
	assert.Equal(t, []string{"r1"}, roles)
	assert.Equal(t, "review:approve", i.Data.CustomID)

	u, roles = Interaction{User: &User{ID: "7", Username: "dm", GlobalName: "Dee"}}.Actor()
	assert.Equal(t, "Dee", u.DisplayName())
	assert.Nil(t, roles)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab…", Truncate("abcd", 3))
}
