package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

const (
	GoogleNewsProviderID     = "google-news"
	defaultGoogleNewsBaseURL = "https://news.google.com/rss/search"
)

// googleNewsFetcher queries the Google News search feed for each topic.
type googleNewsFetcher struct {
	client  HTTPClient
	baseURL string
	lang    string
	region  string
}

// NewGoogleNewsFetcher builds a fetcher for Google News search feeds. lang is a
// locale such as "en-US".
func NewGoogleNewsFetcher(client HTTPClient, lang string) Fetcher {
	if client == nil {
		client = DefaultHTTPClient(0)
	}
	f := &googleNewsFetcher{client: client, baseURL: defaultGoogleNewsBaseURL, lang: "en-US", region: "US"}
	if lang = strings.TrimSpace(lang); lang != "" {
		f.lang = lang
		if i := strings.LastIndex(lang, "-"); i > 0 && i < len(lang)-1 {
			f.region = strings.ToUpper(lang[i+1:])
		}
	}
	return f
}

// ID returns the provider id for the Google News fetcher.
func (f *googleNewsFetcher) ID() string {
	return GoogleNewsProviderID
}

// Fetch retrieves the search feed for the topic. Google News titles carry a
// " - Publisher" suffix which becomes the article source.
func (f *googleNewsFetcher) Fetch(ctx context.Context, q Query) ([]domain.Article, error) {
	topic := strings.TrimSpace(q.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: google news: topic is empty", ErrFetch)
	}

	feed, err := fetchFeed(ctx, f.client, f.searchURL(topic))
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		a, ok := articleFromItem(item, "", topic, GoogleNewsProviderID)
		if !ok {
			continue
		}
		if i := strings.LastIndex(a.Title, " - "); i > 0 {
			a.Source = strings.TrimSpace(a.Title[i+3:])
			a.Title = strings.TrimSpace(a.Title[:i])
		}
		articles = append(articles, a)
	}
	return finalize(articles, q.Since, q.Limit), nil
}

func (f *googleNewsFetcher) searchURL(topic string) string {
	lang := f.lang
	if i := strings.Index(lang, "-"); i > 0 {
		lang = lang[:i]
	}
	v := url.Values{}
	v.Set("q", topic)
	v.Set("hl", f.lang)
	v.Set("gl", f.region)
	v.Set("ceid", f.region+":"+lang)
	return f.baseURL + "?" + v.Encode()
}
