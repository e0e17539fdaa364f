package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
)

const (
	maxPageBytes   = 1 << 20
	defaultWorkers = 4
	maxWorkers     = 10
	defaultTimeout = 10 * time.Second
)

// Options configures a Scraper.
type Options struct {
	Client  httpclient.Client
	Workers int
	// Timeout bounds each page fetch.
	Timeout time.Duration
	Logger  logger.Logger
}

// Scraper fills in descriptions and images that providers left empty by reading the
// article page's Open Graph tags.
type Scraper struct {
	client  httpclient.Client
	workers int
	timeout time.Duration
	log     logger.Logger
}

func NewScraper(opts Options) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	opts.Logger = logger.Ensure(opts.Logger)
	if opts.Client == nil {
		opts.Client = httpclient.NewRestyClient(opts.Timeout, httpclient.WithLogger(opts.Logger))
	}
	opts.Workers = min(max(opts.Workers, 0), maxWorkers)
	if opts.Workers == 0 {
		opts.Workers = defaultWorkers
	}
	return &Scraper{
		client:  opts.Client,
		workers: opts.Workers,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
}

func incomplete(a domain.Article) bool {
	return a.URL != "" && (strings.TrimSpace(a.Description) == "" || strings.TrimSpace(a.ImageURL) == "")
}

// Enrich returns a copy of articles with missing metadata filled in. Articles that
// already have both fields, or whose page cannot be read, come back unchanged. Each
// goroutine writes only its own index of the result.
func (s *Scraper) Enrich(ctx context.Context, articles []domain.Article) []domain.Article {
	out := append([]domain.Article(nil), articles...)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range out {
		if !incomplete(out[i]) {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			page, err := s.fetchPage(gctx, out[i].URL)
			if err != nil {
				s.log.WarnObj("article page unreadable", "crawler_page_failed", map[string]any{
					"article_id": out[i].ID,
					"url":        out[i].URL,
					"error":      err.Error(),
				})
				return nil
			}
			out[i] = page.fill(out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (openGraph, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, pageURL, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return openGraph{}, fmt.Errorf("fetch page: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return openGraph{}, fmt.Errorf("fetch page: HTTP %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) > maxPageBytes {
		body = body[:maxPageBytes]
	}
	return readOpenGraph(body)
}

// openGraph is the subset of page metadata an article can borrow.
type openGraph struct {
	Title       string
	Description string
	Image       string
	SiteName    string
}

// fill copies metadata into the article's empty fields only.
func (og openGraph) fill(a domain.Article) domain.Article {
	if strings.TrimSpace(a.Title) == "" {
		a.Title = og.Title
	}
	if strings.TrimSpace(a.Description) == "" {
		a.Description = og.Description
	}
	if strings.TrimSpace(a.ImageURL) == "" && og.Image != "" {
		a.ImageURL = absoluteURL(og.Image, a.URL)
	}
	if strings.TrimSpace(a.Source) == "" {
		a.Source = og.SiteName
	}
	return a
}

// Selectors are tried in order; the first non-empty content attribute wins.
var (
	titleSelectors = []string{`meta[property="og:title"]`, `meta[name="twitter:title"]`}
	descSelectors  = []string{`meta[property="og:description"]`, `meta[name="twitter:description"]`, `meta[name="description"]`}
	imageSelectors = []string{`meta[property="og:image"]`, `meta[property="og:image:url"]`, `meta[name="twitter:image"]`}
)

func readOpenGraph(body []byte) (openGraph, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return openGraph{}, fmt.Errorf("parse page: %w", err)
	}
	content := func(selectors []string) string {
		for _, sel := range selectors {
			if v, ok := doc.Find(sel).First().Attr("content"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
		return ""
	}

	og := openGraph{
		Title:       content(titleSelectors),
		Description: content(descSelectors),
		Image:       content(imageSelectors),
		SiteName:    content([]string{`meta[property="og:site_name"]`}),
	}
	if og.Title == "" {
		og.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	}
	return og, nil
}

// absoluteURL resolves ref against the page it was found on.
func absoluteURL(ref, page string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := url.Parse(page)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
