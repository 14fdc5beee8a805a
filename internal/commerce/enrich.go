package commerce

import (
	"context"
	"fmt"

	"github.com/data-power-io/commerce-export/internal/batch"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EnrichResult is the enriched catalog plus lookup statistics.
type EnrichResult struct {
	Products []ProductRecord

	// CategoryCount is the number of distinct category IDs referenced.
	CategoryCount int

	Categories CategoryResolution
	Inventory  map[string]Lookup[InventoryRecord]

	DegradedCategories int
	DegradedInventory  int
}

// Enricher attaches category and inventory data to fetched products.
type Enricher struct {
	categories *CategoryResolver
	inventory  *InventoryResolver
	logger     *zap.Logger
}

// NewEnricher creates an enricher over the two resolvers.
func NewEnricher(categories *CategoryResolver, inventory *InventoryResolver, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{categories: categories, inventory: inventory, logger: logger}
}

// Enrich resolves the union of all category IDs and the full SKU list in
// parallel, then maps each product to its categories and stock. Products are
// never dropped; failed lookups leave defaults in place. It only fails when
// ctx is done or a resolver panics.
func (e *Enricher) Enrich(ctx context.Context, products []ProductRecord, token string) (EnrichResult, error) {
	var (
		categoryIDs []string
		skus        = make([]string, 0, len(products))
		seen        = make(map[string]bool)
	)
	for _, p := range products {
		for _, id := range p.CategoryIDSet() {
			if !seen[id] {
				seen[id] = true
				categoryIDs = append(categoryIDs, id)
			}
		}
		skus = append(skus, p.SKU)
	}

	var (
		categories CategoryResolution
		inventory  map[string]Lookup[InventoryRecord]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer batch.Recover(&err)
		categories = e.categories.Resolve(gctx, categoryIDs, token)
		return nil
	})
	g.Go(func() (err error) {
		defer batch.Recover(&err)
		inventory = e.inventory.Resolve(gctx, skus, token)
		return nil
	})
	if err := g.Wait(); err != nil {
		return EnrichResult{}, fmt.Errorf("enrich products: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return EnrichResult{}, fmt.Errorf("enrich products: %w", err)
	}

	enriched := make([]ProductRecord, len(products))
	degradedInventory := 0
	for i, p := range products {
		p.Categories = nil
		for _, id := range p.CategoryIDSet() {
			if rec, ok := categories.Categories[id]; ok {
				p.Categories = append(p.Categories, CategoryRef{ID: rec.ID, Name: rec.Name, Path: rec.Path})
			}
		}

		lookup, ok := inventory[p.SKU]
		if !ok {
			lookup = Degrade(InventoryRecord{SKU: p.SKU}, ErrNoStockRows)
		}
		if lookup.Degraded {
			degradedInventory++
		}
		p.Inventory = lookup.Value
		enriched[i] = p
	}

	e.logger.Info("Enrichment completed",
		zap.Int("products", len(enriched)),
		zap.Int("categories", len(categoryIDs)),
		zap.Int("category_cache_hits", categories.CacheHits),
		zap.Int("categories_fetched", categories.Fetched),
		zap.Int("categories_degraded", categories.Degraded),
		zap.Int("inventory_degraded", degradedInventory))

	return EnrichResult{
		Products:           enriched,
		CategoryCount:      len(categoryIDs),
		Categories:         categories,
		Inventory:          inventory,
		DegradedCategories: categories.Degraded,
		DegradedInventory:  degradedInventory,
	}, nil
}
