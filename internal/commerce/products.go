package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/data-power-io/commerce-export/internal/batch"
	"github.com/data-power-io/commerce-export/internal/httpclient"
	"github.com/data-power-io/commerce-export/libs/metrics"
	"go.uber.org/zap"
)

// Query parameter styles for page requests.
const (
	// QueryStyleSearchCriteria sends searchCriteria[pageSize] and
	// searchCriteria[currentPage].
	QueryStyleSearchCriteria = "search_criteria"

	// QueryStyleFlat sends bare pageSize and currentPage.
	QueryStyleFlat = "flat"
)

// FetcherConfig configures product pagination.
type FetcherConfig struct {
	// Path of the products collection (default: "/products").
	Path string

	// PageSize is the number of products per page (default: 100).
	PageSize int

	// MaxPages caps the number of pages read in one run (default: 50).
	MaxPages int

	// QueryStyle names the paging parameters (default: QueryStyleSearchCriteria).
	QueryStyle string

	Retry batch.RetryPolicy
}

// FetchParams selects what one run reads.
type FetchParams struct {
	Fields FieldSet

	// Filters are extra query parameters appended to every page request.
	Filters url.Values
}

type productPage struct {
	Items      json.RawMessage `json:"items"`
	TotalCount Int             `json:"total_count"`
}

// records decodes the items array one product at a time. ok is false when
// items is missing, null or not an array. skipped counts products that did
// not decode.
func (p productPage) records() (records []ProductRecord, skipped int, ok bool) {
	raw := bytes.TrimSpace(p.Items)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, 0, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, false
	}
	records = make([]ProductRecord, 0, len(items))
	for _, item := range items {
		var rec ProductRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, true
}

// Fetcher reads the product catalog page by page.
type Fetcher struct {
	client  *httpclient.Client
	cache   *httpclient.ResponseCache
	config  FetcherConfig
	logger  *zap.Logger
	metrics *metrics.ExportMetrics
}

// NewFetcher creates a product fetcher. rc may be nil to disable memoization.
func NewFetcher(client *httpclient.Client, rc *httpclient.ResponseCache, cfg FetcherConfig, logger *zap.Logger, m *metrics.ExportMetrics) *Fetcher {
	if cfg.Path == "" {
		cfg.Path = "/products"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.QueryStyle == "" {
		cfg.QueryStyle = QueryStyleSearchCriteria
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = httpclient.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, cache: rc, config: cfg, logger: logger, metrics: m}
}

// pageQuery builds the query for one page.
func (f *Fetcher) pageQuery(page int, params FetchParams) url.Values {
	q := url.Values{}
	for k, vs := range params.Filters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if f.config.QueryStyle == QueryStyleFlat {
		q.Set("pageSize", strconv.Itoa(f.config.PageSize))
		q.Set("currentPage", strconv.Itoa(page))
	} else {
		q.Set("searchCriteria[pageSize]", strconv.Itoa(f.config.PageSize))
		q.Set("searchCriteria[currentPage]", strconv.Itoa(page))
	}
	q.Set("fields", params.Fields.APIFields())
	return q
}

func (f *Fetcher) fetchPage(ctx context.Context, token string, page int, params FetchParams) (productPage, error) {
	var out productPage
	query := f.pageQuery(page, params)

	policy := f.config.Retry
	policy.OnRetry = func(attempt int, err error) {
		f.metrics.RecordRetry("products")
		f.logger.Warn("Retrying product page",
			zap.Int("page", page),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	result, attempts, err := batch.Retry(ctx, policy, func(ctx context.Context) (productPage, error) {
		var p productPage
		_, err := f.client.GetJSONCached(ctx, f.cache, f.config.Path, query, token, &p)
		return p, err
	})
	if err != nil {
		return out, fmt.Errorf("fetch products page %d after %d attempts: %w", page, attempts, err)
	}
	return result, nil
}

// FetchAll reads every page up to the page cap. Page 1 fixes the page count
// from total_count; an empty page or an items value that is not an array ends
// the loop early. Products that do not decode are skipped. Records are
// projected onto params.Fields as they arrive. Any page that still fails
// after its retries fails the whole fetch.
func (f *Fetcher) FetchAll(ctx context.Context, token string, params FetchParams) ([]ProductRecord, error) {
	var (
		products   []ProductRecord
		totalPages = 1
	)

	for page := 1; page <= totalPages; page++ {
		result, err := f.fetchPage(ctx, token, page, params)
		if err != nil {
			return nil, err
		}

		if page == 1 {
			totalPages = pageCount(int(result.TotalCount), f.config.PageSize, f.config.MaxPages)
			f.logger.Info("Product catalog size",
				zap.Int("total_count", int(result.TotalCount)),
				zap.Int("pages", totalPages),
				zap.Int("page_size", f.config.PageSize))
		}

		records, skipped, ok := result.records()
		if !ok {
			if raw := bytes.TrimSpace(result.Items); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
				f.logger.Warn("Malformed product page, stopping", zap.Int("page", page))
			} else {
				f.logger.Debug("Product page without items, stopping", zap.Int("page", page))
			}
			break
		}
		if skipped > 0 {
			f.logger.Warn("Skipped undecodable products",
				zap.Int("page", page),
				zap.Int("skipped", skipped))
		}
		if len(records) == 0 && skipped == 0 {
			f.logger.Debug("Empty product page, stopping", zap.Int("page", page))
			break
		}

		for _, p := range records {
			products = append(products, Project(p, params.Fields))
		}

		f.logger.Debug("Fetched product page",
			zap.Int("page", page),
			zap.Int("records", len(records)),
			zap.Int("total", len(products)))
	}

	return products, nil
}

// pageCount returns ceil(total/pageSize) clamped to [1, max].
func pageCount(total, pageSize, max int) int {
	if total <= 0 || pageSize <= 0 {
		return 1
	}
	pages := (total + pageSize - 1) / pageSize
	if pages > max {
		pages = max
	}
	return pages
}
