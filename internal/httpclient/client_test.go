package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/data-power-io/commerce-export/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL + "/rest/V1", RateLimit: -1}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := New(cfg)
	require.NoError(t, err)
	return client, srv
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestGetJSONSendsBearerToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/rest/V1/categories/7", r.URL.Path)
		assert.Equal(t, "name,path", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"name":"Shoes"}`))
	})

	var out struct {
		Name string `json:"name"`
	}
	err := client.GetJSON(context.Background(), "/categories/7", url.Values{"fields": {"name,path"}}, "tok-123", &out)
	require.NoError(t, err)
	assert.Equal(t, "Shoes", out.Name)
}

func TestHTTPErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
		errType   string
	}{
		{"server error", 503, true, "upstream"},
		{"rate limited", 429, true, "rate_limited"},
		{"not found", 404, false, "client"},
		{"unauthorized", 401, false, "auth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			_, err := client.Get(context.Background(), "/products", nil, "")
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.errType, ErrorType(err))
		})
	}
}

func TestTimeoutIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}, func(c *Config) { c.Timeout = 10 * time.Millisecond })

	_, err := client.Get(context.Background(), "/slow", nil, "")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "timeout", ErrorType(err))
}

func TestCanceledIsNotRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "/products", nil, "")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestPostEncodesJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`"ok"`))
	})

	resp, err := client.Post(context.Background(), "/integration/admin/token", map[string]string{"username": "u"}, "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestGetJSONCachedAvoidsDuplicateCalls(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"total_count":3}`))
	})
	rc := cache.NewLocked[string, []byte](time.Minute)

	var out struct {
		Total int `json:"total_count"`
	}
	hit, err := client.GetJSONCached(context.Background(), rc, "/products", url.Values{"p": {"1"}}, "t", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = client.GetJSONCached(context.Background(), rc, "/products", url.Values{"p": {"1"}}, "t", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// a different token is a different cache entry
	_, err = client.GetJSONCached(context.Background(), rc, "/products", url.Values{"p": {"1"}}, "other", &out)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "categories", endpointLabel("/categories/42"))
	assert.Equal(t, "products", endpointLabel("products"))
	assert.Equal(t, "inventory/source-items", endpointLabel("/inventory/source-items"))
}
