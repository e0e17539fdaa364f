package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "LocalAINews/1.0 (+https://github.com/LiamFearon/LocalAINews)"

// Client is the narrow HTTP surface used by fetchers, the summarizer and the Discord
// client. Responses are returned as-is; callers inspect the status code.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
	GetWithQuery(ctx context.Context, url string, headers, query map[string]string) (*resty.Response, error)
	Post(ctx context.Context, url string, headers map[string]string, body any) (*resty.Response, error)
	Patch(ctx context.Context, url string, headers map[string]string, body any) (*resty.Response, error)
}

// RetryCondition decides whether resty should retry a request.
type RetryCondition func(resp *resty.Response, err error) bool

// Option customises the resty client.
type Option func(*resty.Client)

// WithRetry enables bounded retries. attempts counts the first try, so attempts <= 1
// disables retrying.
func WithRetry(attempts int, wait, maxWait time.Duration, conds ...RetryCondition) Option {
	return func(c *resty.Client) {
		if attempts <= 1 {
			return
		}
		c.SetRetryCount(attempts - 1)
		if wait > 0 {
			c.SetRetryWaitTime(wait)
		}
		if maxWait > 0 {
			c.SetRetryMaxWaitTime(maxWait)
		}
		for _, cond := range conds {
			if cond == nil {
				continue
			}
			cond := cond
			c.AddRetryCondition(func(r *resty.Response, err error) bool { return cond(r, err) })
		}
	}
}

// WithBaseURL sets a base URL so callers can pass relative paths.
func WithBaseURL(base string) Option {
	return func(c *resty.Client) { c.SetBaseURL(base) }
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *resty.Client) {
		if value != "" {
			c.SetHeader(key, value)
		}
	}
}

type restyClient struct {
	client *resty.Client
}

// NewRestyClient builds a Client with the given per-request timeout.
func NewRestyClient(timeout time.Duration, opts ...Option) Client {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetLogger(RestyLogger(nil))
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return &restyClient{client: c}
}

func (r *restyClient) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	return r.request(ctx, headers).Get(url)
}

func (r *restyClient) GetWithQuery(ctx context.Context, url string, headers, query map[string]string) (*resty.Response, error) {
	return r.request(ctx, headers).SetQueryParams(query).Get(url)
}

func (r *restyClient) Post(ctx context.Context, url string, headers map[string]string, body any) (*resty.Response, error) {
	return r.request(ctx, headers).SetHeader("Content-Type", "application/json").SetBody(body).Post(url)
}

func (r *restyClient) Patch(ctx context.Context, url string, headers map[string]string, body any) (*resty.Response, error) {
	return r.request(ctx, headers).SetHeader("Content-Type", "application/json").SetBody(body).Patch(url)
}

func (r *restyClient) request(ctx context.Context, headers map[string]string) *resty.Request {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	return req
}

// RetryOnTooManyRequests retries rate-limited responses.
func RetryOnTooManyRequests(resp *resty.Response, _ error) bool {
	return resp != nil && resp.StatusCode() == http.StatusTooManyRequests
}

// RetryOnServerError retries 5xx responses and transport failures. Only safe for
// idempotent or duplicate-tolerant requests.
func RetryOnServerError(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
}

// RetryOnDialError retries only when the connection could not be established, so the
// server never saw the request.
func RetryOnDialError(_ *resty.Response, err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
