package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LiamFearon/LocalAINews/pkg/httpclient"
)

// Registry holds the enabled fetchers in registration order.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
	order    []string
}

// NewRegistry builds a registry for the provided fetchers. Nil entries are skipped and
// a later fetcher with the same id replaces an earlier one.
func NewRegistry(fetchers ...Fetcher) *Registry {
	reg := &Registry{fetchers: make(map[string]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		reg.Register(f)
	}
	return reg
}

func (r *Registry) Register(f Fetcher) {
	if f == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(f.ID()))
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fetchers[key]; !ok {
		r.order = append(r.order, key)
	}
	r.fetchers[key] = f
}

// FetcherFor selects the fetcher registered under id.
func (r *Registry) FetcherFor(id string) (Fetcher, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return nil, fmt.Errorf("provider id is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.fetchers[key]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("no fetcher registered for provider %q", id)
}

// All returns the fetchers in registration order.
func (r *Registry) All() []Fetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Fetcher, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.fetchers[k])
	}
	return out
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Len reports how many fetchers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// DefaultHTTPClient returns a resty client tuned for provider fetches. Extra options
// are applied after the retry policy.
func DefaultHTTPClient(timeout time.Duration, opts ...httpclient.Option) HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts = append([]httpclient.Option{
		httpclient.WithRetry(2, time.Second, 3*time.Second, httpclient.RetryOnServerError, httpclient.RetryOnDialError),
	}, opts...)
	return httpclient.NewRestyClient(timeout, opts...)
}
