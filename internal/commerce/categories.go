package commerce

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/data-power-io/commerce-export/internal/batch"
	"github.com/data-power-io/commerce-export/internal/httpclient"
	"github.com/data-power-io/commerce-export/libs/logging"
	"github.com/data-power-io/commerce-export/libs/metrics"
	"go.uber.org/zap"
)

// CategoryCache holds category metadata between lookups.
// *cache.Locked[string, CategoryRecord] satisfies it.
type CategoryCache interface {
	Get(id string) (CategoryRecord, bool)
	Set(id string, rec CategoryRecord)
}

// CategoryConfig configures category lookups.
type CategoryConfig struct {
	// Path of the category resource; the id is appended (default: "/categories").
	Path string

	// BatchSize is the number of categories fetched concurrently (default: 10).
	BatchSize int

	// BatchPause is slept between request batches.
	BatchPause time.Duration

	Retry batch.RetryPolicy
}

type categoryResponse struct {
	ID       ID     `json:"id"`
	ParentID ID     `json:"parent_id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// CategoryResolution is the result of resolving a set of category IDs.
type CategoryResolution struct {
	// Categories holds every resolved category, cached or fetched.
	Categories map[string]CategoryRecord

	// Lookups has one entry per requested id.
	Lookups map[string]Lookup[CategoryRecord]

	CacheHits int
	Fetched   int
	Degraded  int
}

// CategoryResolver fetches category metadata, serving repeats from a cache.
type CategoryResolver struct {
	client  *httpclient.Client
	cache   CategoryCache
	config  CategoryConfig
	logger  *logging.ExportLogger
	metrics *metrics.ExportMetrics
}

// NewCategoryResolver creates a resolver. A nil cache still works; every
// lookup then costs a request.
func NewCategoryResolver(client *httpclient.Client, c CategoryCache, cfg CategoryConfig, logger *zap.Logger, m *metrics.ExportMetrics) *CategoryResolver {
	if cfg.Path == "" {
		cfg.Path = "/categories"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = httpclient.IsRetryable
	}
	return &CategoryResolver{
		client:  client,
		cache:   c,
		config:  cfg,
		logger:  logging.Wrap(logger).WithField("resolver", "categories"),
		metrics: m,
	}
}

// Resolve returns metadata for ids. Cached ids cost no request. Categories
// that still fail after retries are left out of Categories and reported as
// degraded lookups; Resolve itself does not fail.
func (r *CategoryResolver) Resolve(ctx context.Context, ids []string, token string) CategoryResolution {
	res := CategoryResolution{
		Categories: make(map[string]CategoryRecord, len(ids)),
		Lookups:    make(map[string]Lookup[CategoryRecord], len(ids)),
	}

	var misses []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if r.cache != nil {
			if rec, ok := r.cache.Get(id); ok {
				r.metrics.RecordCacheLookup("categories", true)
				res.Categories[id] = rec
				res.Lookups[id] = Ok(rec)
				res.CacheHits++
				continue
			}
			r.metrics.RecordCacheLookup("categories", false)
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return res
	}

	outcomes := batch.RunAll(ctx, misses, func(ctx context.Context, id string) (CategoryRecord, error) {
		return r.fetch(ctx, id, token)
	}, batch.Options{
		Name:        "categories",
		Concurrency: r.config.BatchSize,
		Retry:       r.config.Retry,
		BatchPause:  r.config.BatchPause,
		Logger:      r.logger.Logger,
		Metrics:     r.metrics,
	})

	for i, o := range outcomes {
		id := misses[i]
		if o.Err != nil {
			res.Lookups[id] = Degrade(CategoryRecord{ID: id}, o.Err)
			res.Degraded++
			r.logger.WithFields(map[string]interface{}{
				"category_id": id,
				"attempts":    o.Attempts,
				"error":       o.Err.Error(),
			}).LogDataQualityEvent("category", "lookup_failed", "warning")
			continue
		}
		res.Categories[id] = o.Value
		res.Lookups[id] = Ok(o.Value)
		res.Fetched++
		if r.cache != nil {
			r.cache.Set(id, o.Value)
		}
	}

	r.metrics.RecordDegraded("categories", res.Degraded)
	return res
}

func (r *CategoryResolver) fetch(ctx context.Context, id, token string) (CategoryRecord, error) {
	var body categoryResponse
	path := r.config.Path + "/" + url.PathEscape(id)
	if err := r.client.GetJSON(ctx, path, nil, token, &body); err != nil {
		return CategoryRecord{}, fmt.Errorf("category %s: %w", id, err)
	}
	rec := CategoryRecord{
		ID:       string(body.ID),
		Name:     body.Name,
		Path:     body.Path,
		ParentID: string(body.ParentID),
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}
