package commerce

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/data-power-io/commerce-export/internal/batch"
	"github.com/data-power-io/commerce-export/internal/httpclient"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves a synthetic catalog: product i has SKU "SKU-%03d" and
// belongs to category (i % categories) + 1. Every SKU has two sources holding
// 2 and 3 units; only the first is in stock.
type fakeBackend struct {
	products   int
	categories int

	// failCategories and missingSKUs inject failures.
	failCategories map[string]bool
	missingSKUs    map[string]bool
	failProducts   bool

	productCalls   atomic.Int64
	categoryCalls  atomic.Int64
	inventoryCalls atomic.Int64

	mu          sync.Mutex
	lastQueries []string
	tokens      []string
}

func (b *fakeBackend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastQueries = append(b.lastQueries, r.URL.RawQuery)
	b.tokens = append(b.tokens, r.Header.Get("Authorization"))
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.record(r)
	switch {
	case r.URL.Path == "/products":
		b.productCalls.Add(1)
		b.serveProducts(w, r)
	case strings.HasPrefix(r.URL.Path, "/categories/"):
		b.categoryCalls.Add(1)
		b.serveCategory(w, strings.TrimPrefix(r.URL.Path, "/categories/"))
	case r.URL.Path == "/inventory/source-items":
		b.inventoryCalls.Add(1)
		b.serveInventory(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) serveProducts(w http.ResponseWriter, r *http.Request) {
	if b.failProducts {
		http.Error(w, `{"message":"upstream down"}`, http.StatusBadGateway)
		return
	}
	q := r.URL.Query()
	size := pagingParam(q, "pageSize")
	page := pagingParam(q, "currentPage")
	start := (page - 1) * size
	end := start + size
	if end > b.products {
		end = b.products
	}

	items := []map[string]any{}
	for i := start; i < end; i++ {
		items = append(items, map[string]any{
			"id":           i + 1,
			"sku":          fmt.Sprintf("SKU-%03d", i),
			"name":         fmt.Sprintf("Product %d", i),
			"price":        19.9,
			"status":       1,
			"type_id":      "simple",
			"category_ids": []int{i%b.categories + 1},
			"media_gallery_entries": []map[string]any{
				{"id": i, "media_type": "image", "file": fmt.Sprintf("/p/%d.jpg", i), "position": 1},
			},
			"custom_attributes": []map[string]any{
				{"attribute_code": "color", "value": "red"},
			},
		})
	}
	writeJSON(w, map[string]any{"items": items, "total_count": b.products})
}

func (b *fakeBackend) serveCategory(w http.ResponseWriter, id string) {
	if b.failCategories[id] {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"id":        json.Number(id),
		"parent_id": 2,
		"name":      "Category " + id,
		"path":      "1/2/" + id,
	})
}

func (b *fakeBackend) serveInventory(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("searchCriteria[filter_groups][0][filters][0][value]")
	items := []map[string]any{}
	for _, sku := range strings.Split(value, ",") {
		if b.missingSKUs["*"] || b.missingSKUs[sku] {
			continue
		}
		items = append(items,
			map[string]any{"sku": sku, "source_code": "default", "quantity": 2, "status": 1},
			map[string]any{"sku": sku, "source_code": "eu", "quantity": 3.0, "status": 0},
		)
	}
	writeJSON(w, map[string]any{"items": items, "total_count": len(items)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *httpclient.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := httpclient.New(httpclient.Config{BaseURL: srv.URL, RateLimit: -1})
	require.NoError(t, err)
	return client
}

func testRetry() batch.RetryPolicy {
	return batch.RetryPolicy{Retries: 2, Retryable: httpclient.IsRetryable}
}

// httpHandlerFunc serves a fixed body per products page.
type httpHandlerFunc func(page int) string

func (f httpHandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := pagingParam(r.URL.Query(), "currentPage")
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(f(page)))
}

// pagingParam reads a paging parameter in either query style.
func pagingParam(q url.Values, name string) int {
	v := q.Get("searchCriteria[" + name + "]")
	if v == "" {
		v = q.Get(name)
	}
	n, _ := strconv.Atoi(v)
	return n
}
