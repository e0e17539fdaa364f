package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
)

var (
	// ErrSummarization is the parent of every summarizer failure.
	ErrSummarization     = errors.New("summarization failed")
	ErrTimeout           = fmt.Errorf("%w: timeout", ErrSummarization)
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrSummarization)
	ErrUnsupported       = fmt.Errorf("%w: capability unsupported", ErrSummarization)
	ErrUnavailable       = fmt.Errorf("%w: server unreachable", ErrSummarization)
)

const (
	maxKeyPoints       = 5
	maxSnippetRunes    = 2000
	toolName           = "summarize_article"
	schemaName         = "NewsSummary"
	chatCompletions    = "/v1/chat/completions"
	modelsPath         = "/v1/models"
	defaultMaxTokens   = 600
	defaultHTTPTimeout = 120 * time.Second
)

// Summarizer turns an article into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, article domain.Article) (domain.Summary, error)
}

// Options configures the LM Studio client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	UseTools    bool
	MaxTokens   int
	Temperature float64
	// HTTP overrides the resty client, mainly for tests.
	HTTP   httpclient.Client
	Logger logger.Logger
}

// strategy is one way of asking the model for structured output.
type strategy struct {
	name  string
	build func(prompt string) chatRequest
	// unsupportedStatus lists HTTP codes meaning the server rejected the request shape.
	unsupportedStatus map[int]bool
}

// Client talks to an LM Studio server through its OpenAI-compatible API.
type Client struct {
	http       httpclient.Client
	baseURL    string
	headers    map[string]string
	model      string
	log        logger.Logger
	strategies []strategy
}

var _ Summarizer = (*Client)(nil)

// New builds a Client. It does not contact the server; call Preflight for that.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("lm studio base url is empty")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("lm studio model is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHTTPTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	hc := opts.HTTP
	if hc == nil {
		hc = httpclient.NewRestyClient(opts.Timeout, httpclient.WithLogger(logger.Ensure(opts.Logger)))
	}
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + opts.APIKey
	}

	c := &Client{
		http:    hc,
		baseURL: base,
		headers: headers,
		model:   strings.TrimSpace(opts.Model),
		log:     logger.Ensure(opts.Logger),
	}
	c.strategies = c.buildStrategies(opts)
	return c, nil
}

func (c *Client) buildStrategies(opts Options) []strategy {
	schema := newsSummarySchema()
	return []strategy{
		{
			name: "json_schema",
			build: func(prompt string) chatRequest {
				return chatRequest{
					Model: c.model,
					Messages: []chatMessage{
						{Role: "system", Content: "Return only what the schema requires."},
						{Role: "user", Content: prompt},
					},
					Temperature: 0.1,
					MaxTokens:   opts.MaxTokens,
					ResponseFormat: &responseFormat{
						Type:       "json_schema",
						JSONSchema: jsonSchema{Name: schemaName, Schema: schema, Strict: true},
					},
				}
			},
			unsupportedStatus: map[int]bool{
				http.StatusBadRequest:           true,
				http.StatusNotFound:             true,
				http.StatusUnsupportedMediaType: true,
				http.StatusUnprocessableEntity:  true,
				http.StatusInternalServerError:  true,
			},
		},
		{
			name: "tool_call",
			build: func(prompt string) chatRequest {
				req := chatRequest{
					Model: c.model,
					Messages: []chatMessage{
						{Role: "system", Content: "You are a crisp news summarizer for a Discord channel. Reply with a JSON object."},
						{Role: "user", Content: prompt},
					},
					Temperature: opts.Temperature,
					MaxTokens:   opts.MaxTokens,
				}
				if opts.UseTools {
					fn := toolFunction{
						Name:        toolName,
						Description: "Summarize a news article for Discord in a structured way.",
						Parameters:  schema,
					}
					req.Tools = []tool{{Type: "function", Function: fn}}
					req.ToolChoice = &toolChoice{Type: "function", Function: toolFunction{Name: toolName}}
				}
				return req
			},
		},
		{
			name: "plain_json",
			build: func(prompt string) chatRequest {
				return chatRequest{
					Model: c.model,
					Messages: []chatMessage{
						{Role: "system", Content: "Return ONLY a compact JSON object with keys: title (string), key_points (array of 3 short strings), why_it_matters (string)."},
						{Role: "user", Content: prompt},
					},
					Temperature: 0.1,
					MaxTokens:   opts.MaxTokens,
				}
			},
		},
	}
}

// Summarize runs the strategy chain until one yields a usable summary. Timeouts and an
// unreachable server stop the chain immediately.
func (c *Client) Summarize(ctx context.Context, article domain.Article) (domain.Summary, error) {
	prompt := buildPrompt(article)
	var lastErr error

	for _, st := range c.strategies {
		summary, err := c.attempt(ctx, st, prompt)
		if err == nil {
			c.log.DebugObj("summary produced", "summarizer_success", map[string]any{
				"article_id": article.ID,
				"strategy":   st.name,
			})
			return summary, nil
		}
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
			return domain.Summary{}, err
		}
		c.log.InfoObj("summary strategy failed, falling back", "summarizer_fallback", map[string]any{
			"article_id": article.ID,
			"strategy":   st.name,
			"error":      err.Error(),
		})
		lastErr = err
	}
	return domain.Summary{}, fmt.Errorf("no structured output after %d attempts: %w", len(c.strategies), lastErr)
}

func (c *Client) attempt(ctx context.Context, st strategy, prompt string) (domain.Summary, error) {
	resp, err := c.http.Post(ctx, c.baseURL+chatCompletions, c.headers, st.build(prompt))
	if err != nil {
		return domain.Summary{}, classifyTransport(ctx, err)
	}
	status := resp.StatusCode()
	if st.unsupportedStatus[status] {
		return domain.Summary{}, fmt.Errorf("%w: %s rejected with HTTP %d", ErrUnsupported, st.name, status)
	}
	if !resp.IsSuccess() {
		return domain.Summary{}, fmt.Errorf("%w: HTTP %d: %s", ErrSummarization, status, snippet(resp.Body()))
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return domain.Summary{}, fmt.Errorf("%w: decode completion: %v", ErrMalformedResponse, err)
	}
	if len(cr.Choices) == 0 {
		return domain.Summary{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return extract(cr.Choices[0].Message)
}

// extract looks for the summary object in the parsed field, the content, then tool
// call arguments.
func extract(msg chatMessage) (domain.Summary, error) {
	candidates := make([]string, 0, 2+len(msg.ToolCalls))
	if len(msg.Parsed) > 0 && string(msg.Parsed) != "null" {
		candidates = append(candidates, string(msg.Parsed))
	}
	candidates = append(candidates, msg.Content)
	for _, call := range msg.ToolCalls {
		candidates = append(candidates, call.Function.Arguments)
	}

	for _, raw := range candidates {
		if s, ok := parseSummary(raw); ok {
			return s, nil
		}
	}
	return domain.Summary{}, fmt.Errorf("%w: no summary object in reply", ErrMalformedResponse)
}

func parseSummary(raw string) (domain.Summary, bool) {
	raw = stripFences(raw)
	if raw == "" {
		return domain.Summary{}, false
	}
	var ns newsSummary
	if err := json.Unmarshal([]byte(raw), &ns); err != nil {
		return domain.Summary{}, false
	}
	title := strings.TrimSpace(ns.Title)
	if title == "" {
		return domain.Summary{}, false
	}

	points := make([]string, 0, len(ns.KeyPoints))
	for _, p := range ns.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
		if len(points) == maxKeyPoints {
			break
		}
	}
	s := domain.Summary{
		Title:        title,
		KeyPoints:    points,
		WhyItMatters: strings.TrimSpace(ns.WhyItMatters),
		Text:         strings.TrimSpace(ns.Summary),
	}
	if s.Text == "" {
		s.Text = strings.Join(points, " ")
	}
	if s.IsEmpty() {
		return domain.Summary{}, false
	}
	return s, true
}

// stripFences trims markdown code fences and any prose around the outermost object.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func buildPrompt(a domain.Article) string {
	desc := strings.TrimSpace(a.Description)
	if r := []rune(desc); len(r) > maxSnippetRunes {
		desc = string(r[:maxSnippetRunes])
	}
	return fmt.Sprintf("Source: %s\nURL: %s\nTitle: %s\n\nDescription snippet (may be partial):\n%s",
		strings.TrimSpace(a.Source), strings.TrimSpace(a.URL), strings.TrimSpace(a.Title), desc)
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if httpclient.RetryOnDialError(nil, err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrSummarization, err)
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
