package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

const (
	NewsAPIProviderID     = "newsapi"
	defaultNewsAPIBaseURL = "https://newsapi.org"
	removedMarker         = "[Removed]"
)

// NewsAPIOptions configures the NewsAPI /v2/everything fetcher.
type NewsAPIOptions struct {
	BaseURL  string
	APIKey   string
	Language string
	PageSize int
	Lookback time.Duration
	Clock    func() time.Time
}

type newsAPIFetcher struct {
	client HTTPClient
	opts   NewsAPIOptions
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage"`
	PublishedAt time.Time `json:"publishedAt"`
}

// NewNewsAPIFetcher builds the NewsAPI fetcher.
func NewNewsAPIFetcher(client HTTPClient, opts NewsAPIOptions) (Fetcher, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("newsapi: api key is empty")
	}
	if client == nil {
		client = DefaultHTTPClient(0)
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		opts.BaseURL = defaultNewsAPIBaseURL
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &newsAPIFetcher{client: client, opts: opts}, nil
}

func (f *newsAPIFetcher) ID() string { return NewsAPIProviderID }

// Fetch queries /v2/everything for the topic, newest first.
func (f *newsAPIFetcher) Fetch(ctx context.Context, q Query) ([]domain.Article, error) {
	topic := strings.TrimSpace(q.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: newsapi: topic is empty", ErrFetch)
	}
	pageSize := f.opts.PageSize
	if q.Limit > 0 && q.Limit < pageSize {
		pageSize = q.Limit
	}
	since := q.Since
	if since.IsZero() && f.opts.Lookback > 0 {
		since = f.opts.Clock().Add(-f.opts.Lookback)
	}

	query := map[string]string{
		"q":        topic,
		"language": f.opts.Language,
		"pageSize": strconv.Itoa(pageSize),
		"sortBy":   "publishedAt",
	}
	if !since.IsZero() {
		query["from"] = since.UTC().Format(time.RFC3339)
	}
	headers := map[string]string{"X-Api-Key": f.opts.APIKey, "Accept": "application/json"}

	resp, err := f.client.GetWithQuery(ctx, f.opts.BaseURL+"/v2/everything", headers, query)
	if err != nil {
		return nil, fmt.Errorf("%w: newsapi request: %w", ErrFetch, err)
	}
	body := resp.Body()
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: newsapi returned 429", ErrRateLimited)
	}

	var payload newsAPIResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode newsapi response (status %d): %s", ErrFetch, resp.StatusCode(), responseSnippet(body))
	}
	if payload.Code == "rateLimited" {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, payload.Message)
	}
	if resp.StatusCode() != http.StatusOK || payload.Status != "ok" {
		return nil, fmt.Errorf("%w: newsapi status %d %s: %s", ErrFetch, resp.StatusCode(), payload.Code, payload.Message)
	}

	articles := make([]domain.Article, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		title := strings.TrimSpace(a.Title)
		link := strings.TrimSpace(a.URL)
		if link == "" || title == "" || title == removedMarker {
			continue
		}
		articles = append(articles, domain.Article{
			ID:          hashURL(link),
			ProviderID:  NewsAPIProviderID,
			Topic:       topic,
			Title:       title,
			Description: strings.TrimSpace(a.Description),
			URL:         link,
			Source:      strings.TrimSpace(a.Source.Name),
			ImageURL:    strings.TrimSpace(a.URLToImage),
			PublishedAt: a.PublishedAt,
		})
	}
	return finalize(articles, time.Time{}, q.Limit), nil
}
