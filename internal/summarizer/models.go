package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Models lists the model ids the server currently exposes.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	resp, err := c.http.Get(ctx, c.baseURL+modelsPath, c.headers)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: list models: HTTP %d", ErrSummarization, resp.StatusCode())
	}
	var mr modelsResponse
	if err := json.Unmarshal(resp.Body(), &mr); err != nil {
		return nil, fmt.Errorf("%w: decode models: %v", ErrMalformedResponse, err)
	}
	ids := make([]string, 0, len(mr.Data))
	for _, m := range mr.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Preflight checks that the server is reachable and serves the configured model. It
// only logs; a failed preflight does not stop startup because LM Studio may load the
// model later.
func (c *Client) Preflight(ctx context.Context) {
	ids, err := c.Models(ctx)
	if err != nil {
		c.log.WarnObj("could not reach lm studio models endpoint", "summarizer_preflight_failed", map[string]any{
			"base_url": c.baseURL,
			"error":    err.Error(),
		})
		return
	}
	c.log.InfoObj("lm studio models listed", "summarizer_preflight", map[string]any{
		"models": ids,
		"model":  c.model,
	})
	if len(ids) > 0 && !slices.Contains(ids, c.model) {
		c.log.WarnObj("configured model not served; use an exact id from the list", "summarizer_model_missing", map[string]any{
			"model":  c.model,
			"models": ids,
		})
	}
	if !LooksLikeInstructModel(c.model) {
		c.log.InfoObj("prefer an instruct model for structured output", "summarizer_model_hint", map[string]any{
			"model": c.model,
		})
	}
}

// LooksLikeInstructModel guesses whether a model id names an instruction-tuned model.
func LooksLikeInstructModel(id string) bool {
	m := strings.ToLower(id)
	if strings.Contains(m, "instruct") {
		return true
	}
	family := false
	for _, f := range []string{"qwen", "mistral", "llama", "phi", "gemma"} {
		if strings.Contains(m, f) {
			family = true
			break
		}
	}
	return family && !strings.Contains(m, "r1") && !strings.Contains(m, "reasoning")
}
