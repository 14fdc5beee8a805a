package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/data-power-io/commerce-export/internal/batch"
	"github.com/data-power-io/commerce-export/internal/httpclient"
	"github.com/data-power-io/commerce-export/libs/logging"
	"github.com/data-power-io/commerce-export/libs/metrics"
	"go.uber.org/zap"
)

// ErrNoStockRows marks a SKU the source-items search returned nothing for.
var ErrNoStockRows = errors.New("no source items for sku")

// InventoryConfig configures stock lookups.
type InventoryConfig struct {
	// Path of the source-items search (default: "/inventory/source-items").
	Path string

	// BatchSize is the number of SKUs per search request (default: 20).
	BatchSize int

	// Concurrency is the number of search requests in flight (default: 5).
	Concurrency int

	// BatchPause is slept between request batches.
	BatchPause time.Duration

	Retry batch.RetryPolicy
}

type sourceItem struct {
	SKU        string          `json:"sku"`
	SourceCode string          `json:"source_code"`
	Quantity   json.Number     `json:"quantity"`
	Status     json.RawMessage `json:"status"`
}

type sourceItemsPage struct {
	Items      []sourceItem `json:"items"`
	TotalCount int          `json:"total_count"`
}

// inStock accepts the status encodings seen across inventory sources.
func (s sourceItem) inStock() bool {
	raw := string(bytes.TrimSpace(s.Status))
	switch strings.Trim(raw, `"`) {
	case "1", "true", "in_stock":
		return true
	}
	return false
}

// InventoryResolver aggregates per-source stock into one record per SKU.
type InventoryResolver struct {
	client  *httpclient.Client
	cache   *httpclient.ResponseCache
	config  InventoryConfig
	logger  *logging.ExportLogger
	metrics *metrics.ExportMetrics
}

// NewInventoryResolver creates a resolver. rc may be nil.
func NewInventoryResolver(client *httpclient.Client, rc *httpclient.ResponseCache, cfg InventoryConfig, logger *zap.Logger, m *metrics.ExportMetrics) *InventoryResolver {
	if cfg.Path == "" {
		cfg.Path = "/inventory/source-items"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = httpclient.IsRetryable
	}
	return &InventoryResolver{
		client:  client,
		cache:   rc,
		config:  cfg,
		logger:  logging.Wrap(logger).WithField("resolver", "inventory"),
		metrics: m,
	}
}

// searchQuery filters source items by a list of SKUs.
func searchQuery(skus []string) url.Values {
	q := url.Values{}
	q.Set("searchCriteria[filter_groups][0][filters][0][field]", "sku")
	q.Set("searchCriteria[filter_groups][0][filters][0][condition_type]", "in")
	q.Set("searchCriteria[filter_groups][0][filters][0][value]", strings.Join(skus, ","))
	return q
}

// Resolve returns one lookup per distinct SKU. Quantities are summed across
// sources and a SKU is in stock when any source says so. SKUs with no rows, or
// whose batch failed, get {0, false} flagged as degraded. Resolve never fails.
func (r *InventoryResolver) Resolve(ctx context.Context, skus []string, token string) map[string]Lookup[InventoryRecord] {
	unique := make([]string, 0, len(skus))
	seen := make(map[string]bool, len(skus))
	for _, sku := range skus {
		if sku == "" || seen[sku] {
			continue
		}
		seen[sku] = true
		unique = append(unique, sku)
	}

	out := make(map[string]Lookup[InventoryRecord], len(unique))
	if len(unique) == 0 {
		return out
	}

	chunks := batch.Chunk(unique, r.config.BatchSize)
	outcomes := batch.RunAll(ctx, chunks, func(ctx context.Context, chunk []string) ([]sourceItem, error) {
		var page sourceItemsPage
		if _, err := r.client.GetJSONCached(ctx, r.cache, r.config.Path, searchQuery(chunk), token, &page); err != nil {
			return nil, fmt.Errorf("inventory batch of %d skus: %w", len(chunk), err)
		}
		return page.Items, nil
	}, batch.Options{
		Name:        "inventory",
		Concurrency: r.config.Concurrency,
		Retry:       r.config.Retry,
		BatchPause:  r.config.BatchPause,
		Logger:      r.logger.Logger,
		Metrics:     r.metrics,
	})

	degraded := 0
	for i, o := range outcomes {
		chunk := chunks[i]
		if o.Err != nil {
			for _, sku := range chunk {
				out[sku] = Degrade(InventoryRecord{SKU: sku}, o.Err)
			}
			degraded += len(chunk)
			r.logger.WithFields(map[string]interface{}{
				"skus":     len(chunk),
				"attempts": o.Attempts,
				"error":    o.Err.Error(),
			}).LogDataQualityEvent("inventory", "batch_failed", "warning")
			continue
		}

		totals := make(map[string]float64, len(chunk))
		stocked := make(map[string]bool, len(chunk))
		found := make(map[string]bool, len(chunk))
		for _, item := range o.Value {
			found[item.SKU] = true
			totals[item.SKU] += parseQuantity(item.Quantity)
			if item.inStock() {
				stocked[item.SKU] = true
			}
		}

		for _, sku := range chunk {
			if !found[sku] {
				out[sku] = Degrade(InventoryRecord{SKU: sku}, fmt.Errorf("%w: %s", ErrNoStockRows, sku))
				degraded++
				continue
			}
			out[sku] = Ok(InventoryRecord{
				SKU:      sku,
				Quantity: int(totals[sku]),
				InStock:  stocked[sku],
			})
		}
	}

	if degraded > 0 {
		r.logger.WithFields(map[string]interface{}{
			"degraded": degraded,
			"total":    len(unique),
		}).LogDataQualityEvent("inventory", "defaults_applied", "info")
	}
	r.metrics.RecordDegraded("inventory", degraded)
	return out
}
