package providers

import (
	"context"
	"errors"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
)

var (
	// ErrRateLimited means the provider refused the request for quota reasons. Callers
	// should stop fetching for a while.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrFetch wraps every other provider failure.
	ErrFetch = errors.New("provider fetch failed")
)

// HTTPClient is the transport fetchers use.
type HTTPClient = httpclient.Client

// Query asks a provider for recent articles on one topic.
type Query struct {
	Topic string
	Since time.Time
	Limit int
}

// Fetcher retrieves candidate articles for a query. Articles come back newest first
// with ID, Topic and ProviderID set.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, q Query) ([]domain.Article, error)
}
