// Package notion reads the label section catalog from a Notion database.
// Editors maintain one page per section; the catalog loader pages through
// the database with QueryAll or QueryChecked.
package notion

import (
	"context"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond matches Notion's published integration limit.
const DefaultRequestsPerSecond = 3

// Client is the single Notion call the section catalog needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Option configures a catalog client.
type Option func(*catalogClient)

// WithRateLimit overrides the default request rate. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *catalogClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient sends catalog queries through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *catalogClient) {
		if hc != nil {
			c.apiOpts = append(c.apiOpts, notionapi.WithHTTPClient(hc))
		}
	}
}

// WithTimeout bounds each catalog query.
func WithTimeout(d time.Duration) Option {
	return func(c *catalogClient) {
		c.timeout = d
	}
}

// WithRetries sets how many times a 429 from Notion is retried after
// honouring Retry-After.
func WithRetries(n int) Option {
	return func(c *catalogClient) {
		if n > 0 {
			c.apiOpts = append(c.apiOpts, notionapi.WithRetry(n))
		}
	}
}

type catalogClient struct {
	api     *notionapi.Client
	apiOpts []notionapi.ClientOption
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient returns a Client authenticated with an internal integration
// token. Queries are throttled to DefaultRequestsPerSecond unless
// overridden.
func NewClient(token string, opts ...Option) Client {
	c := &catalogClient{
		limiter: rate.NewLimiter(DefaultRequestsPerSecond, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = notionapi.NewClient(notionapi.Token(token), c.apiOpts...)
	return c
}

func (c *catalogClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *catalogClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query section database %s", dbID)
	}
	return resp, nil
}
