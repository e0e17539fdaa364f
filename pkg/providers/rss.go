package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

const RSSProviderID = "rss"

// rssFetcher reads a fixed set of feeds and keeps items mentioning the topic.
type rssFetcher struct {
	client HTTPClient
	feeds  []string
}

// NewRSSFetcher builds a fetcher over the given feed URLs.
func NewRSSFetcher(client HTTPClient, feeds []string) (Fetcher, error) {
	var clean []string
	for _, f := range feeds {
		if f = strings.TrimSpace(f); f != "" {
			clean = append(clean, f)
		}
	}
	if len(clean) == 0 {
		return nil, errors.New("rss: no feeds configured")
	}
	if client == nil {
		client = DefaultHTTPClient(0)
	}
	return &rssFetcher{client: client, feeds: clean}, nil
}

func (f *rssFetcher) ID() string { return RSSProviderID }

// Fetch reads every feed. A feed that fails is skipped unless all of them fail.
func (f *rssFetcher) Fetch(ctx context.Context, q Query) ([]domain.Article, error) {
	topic := strings.TrimSpace(q.Topic)
	var (
		all     []domain.Article
		lastErr error
		okFeeds int
	)
	for _, feedURL := range f.feeds {
		feed, err := fetchFeed(ctx, f.client, feedURL)
		if err != nil {
			lastErr = err
			continue
		}
		okFeeds++
		for _, item := range feed.Items {
			if !matchesTopic(topic, item.Title, item.Description) {
				continue
			}
			if a, ok := articleFromItem(item, feed.Title, topic, RSSProviderID); ok {
				all = append(all, a)
			}
		}
	}
	if okFeeds == 0 && lastErr != nil {
		return nil, lastErr
	}
	return finalize(all, q.Since, q.Limit), nil
}

// fetchFeed downloads and parses one feed.
func fetchFeed(ctx context.Context, client HTTPClient, feedURL string) (*gofeed.Feed, error) {
	resp, err := client.Get(ctx, feedURL, map[string]string{"Accept": "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch feed %s: %w", ErrFetch, feedURL, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: feed %s returned 429", ErrRateLimited, feedURL)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: feed %s returned status %d body: %s", ErrFetch, feedURL, resp.StatusCode(), responseSnippet(resp.Body()))
	}
	feed, err := gofeed.NewParser().ParseString(string(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed %s: %w", ErrFetch, feedURL, err)
	}
	return feed, nil
}

func articleFromItem(item *gofeed.Item, feedTitle, topic, providerID string) (domain.Article, bool) {
	if item == nil {
		return domain.Article{}, false
	}
	link := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return domain.Article{}, false
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = *item.UpdatedParsed
	}

	image := ""
	if item.Image != nil {
		image = strings.TrimSpace(item.Image.URL)
	}
	if image == "" {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				image = strings.TrimSpace(enc.URL)
				break
			}
		}
	}

	source := strings.TrimSpace(feedTitle)
	if item.Author != nil && source == "" {
		source = strings.TrimSpace(item.Author.Name)
	}

	return domain.Article{
		ID:          hashURL(link),
		ProviderID:  providerID,
		Topic:       topic,
		Title:       title,
		Description: plainText(item.Description),
		URL:         link,
		Source:      source,
		ImageURL:    image,
		PublishedAt: published,
	}, true
}

// plainText turns an HTML description into readable text: markup is dropped and
// entities are decoded.
func plainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
