package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

var article = domain.Article{
	ID:          "a1",
	Title:       "X raises funding",
	Description: "X announced a $10M seed round.",
	URL:         "https://example.com/x",
	Source:      "Example News",
}

type recorder struct {
	mu       sync.Mutex
	requests []chatRequest
}

func (r *recorder) add(req chatRequest) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return len(r.requests)
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(body)
}

const summaryJSON = `{"title":"X closes $10M seed","key_points":["X raised $10M","Led by Y","Hiring engineers"],"why_it_matters":"Local AI tooling keeps attracting money."}`

func newTestClient(t *testing.T, url string, useTools bool) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: url + "/", Model: "qwen2.5-7b-instruct", APIKey: "secret", UseTools: useTools, Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestSummarizeUsesJSONSchemaFirst(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatCompletions, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rec.add(req)
		fmt.Fprint(w, completion(summaryJSON))
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv.URL, false).Summarize(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, "X closes $10M seed", s.Title)
	assert.Equal(t, []string{"X raised $10M", "Led by Y", "Hiring engineers"}, s.KeyPoints)
	assert.Equal(t, "Local AI tooling keeps attracting money.", s.WhyItMatters)

	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_schema", req.ResponseFormat.Type)
	assert.Equal(t, schemaName, req.ResponseFormat.JSONSchema.Name)
	assert.Contains(t, req.Messages[1].Content, "Title: X raises funding")
	assert.Contains(t, req.Messages[1].Content, "Source: Example News")
}

func TestSummarizeFallsBackToToolCall(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if rec.add(req) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]any{{
					"type":     "function",
					"function": map[string]any{"name": toolName, "arguments": summaryJSON},
				}},
			}}},
		})
		w.Write(body)
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv.URL, true).Summarize(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, "X closes $10M seed", s.Title)

	require.Len(t, rec.requests, 2)
	assert.Nil(t, rec.requests[1].ResponseFormat)
	require.Len(t, rec.requests[1].Tools, 1)
	assert.Equal(t, toolName, rec.requests[1].Tools[0].Function.Name)
	require.NotNil(t, rec.requests[1].ToolChoice)
}

func TestSummarizeParsesFencedPlainJSON(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if rec.add(req) < 3 {
			fmt.Fprint(w, completion("I cannot comply."))
			return
		}
		fmt.Fprint(w, completion("```json\n"+summaryJSON+"\n```"))
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv.URL, false).Summarize(context.Background(), article)
	require.NoError(t, err)
	assert.Len(t, s.KeyPoints, 3)
	require.Len(t, rec.requests, 3)
	assert.Empty(t, rec.requests[1].Tools)
}

func TestSummarizeReportsMalformedAfterAllStrategies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completion(`{"title":""}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, false).Summarize(context.Background(), article)
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.ErrorIs(t, err, ErrSummarization)
}

func TestSummarizeTimeoutStopsChain(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(chatRequest{})
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Model: "qwen2.5-7b-instruct", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Summarize(context.Background(), article)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, rec.requests, 1)
}

func TestSummarizeUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url, false).Summarize(context.Background(), article)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractPrefersParsedField(t *testing.T) {
	s, err := extract(chatMessage{Parsed: json.RawMessage(summaryJSON), Content: "noise"})
	require.NoError(t, err)
	assert.Equal(t, "X closes $10M seed", s.Title)
	assert.Equal(t, "X raised $10M Led by Y Hiring engineers", s.Text)
}

func TestParseSummaryCapsKeyPoints(t *testing.T) {
	s, ok := parseSummary(`{"title":"t","key_points":["1","2"," ","3","4","5","6"],"why_it_matters":"w"}`)
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, s.KeyPoints)
}

func TestModelsAndInstructHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, modelsPath, r.URL.Path)
		fmt.Fprint(w, `{"data":[{"id":"qwen2.5-7b-instruct"},{"id":"deepseek-r1"}]}`)
	}))
	defer srv.Close()

	ids, err := newTestClient(t, srv.URL, false).Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5-7b-instruct", "deepseek-r1"}, ids)

	assert.True(t, LooksLikeInstructModel("llama-3.1-8b-instruct-mlx"))
	assert.True(t, LooksLikeInstructModel("gemma-2-9b"))
	assert.False(t, LooksLikeInstructModel("deepseek-r1-qwen-7b"))
	assert.False(t, LooksLikeInstructModel("gpt-oss-20b"))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Model: "m"})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost:1234"})
	require.Error(t, err)
}
