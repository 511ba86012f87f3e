package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestNewClientReturnsClient(t *testing.T) {
	c := NewClient("test-token")
	assert.NotNil(t, c)
	var _ Client = c //nolint:staticcheck // interface compliance check
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(10)).(*catalogClient)
	assert.NotNil(t, c.limiter)

	c = NewClient("test-token", WithRateLimit(0)).(*catalogClient)
	assert.Nil(t, c.limiter)
	assert.NoError(t, c.wait(context.Background()))
}

func TestWait_ContextCancelled(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0.001)).(*catalogClient)
	assert.NoError(t, c.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.wait(ctx))
}

// redirectTransport sends every request to target instead of api.notion.com.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newCatalogServer(t *testing.T, h http.HandlerFunc, opts ...Option) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	hc := &http.Client{Transport: redirectTransport{target: u}}
	return NewClient("secret-token", append([]Option{WithRateLimit(0), WithHTTPClient(hc)}, opts...)...)
}

func TestQueryDatabase_SendsSectionQuery(t *testing.T) {
	c := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/databases/db-sections/query", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","results":[],"has_more":false}`)
	})

	resp, err := c.QueryDatabase(context.Background(), "db-sections", &notionapi.DatabaseQueryRequest{PageSize: 10})
	require.NoError(t, err)
	assert.False(t, resp.HasMore)
	assert.Empty(t, resp.Results)
}

func TestQueryDatabase_WrapsAPIError(t *testing.T) {
	c := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"object":"error","status":400,"code":"validation_error","message":"bad filter"}`)
	})

	_, err := c.QueryDatabase(context.Background(), "db-sections", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query section database db-sections")
}

func TestWithRetries_RetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	c := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"object":"list","results":[],"has_more":false}`)
	}, WithRetries(3))

	_, err := c.QueryDatabase(context.Background(), "db-sections", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithTimeout_BoundsQuery(t *testing.T) {
	c := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.QueryDatabase(context.Background(), "db-sections", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithHTTPClient_NilKeepsDefault(t *testing.T) {
	c := NewClient("t", WithHTTPClient(nil), WithRetries(0)).(*catalogClient)
	assert.Empty(t, c.apiOpts)
	assert.NotNil(t, c.api)
}
