package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"time"

	"github.com/data-power-io/commerce-export/internal/auth"
	"github.com/data-power-io/commerce-export/internal/batch"
	"github.com/data-power-io/commerce-export/internal/cache"
	"github.com/data-power-io/commerce-export/internal/commerce"
	"github.com/data-power-io/commerce-export/internal/csvexport"
	"github.com/data-power-io/commerce-export/internal/httpclient"
	"github.com/data-power-io/commerce-export/internal/storage"
	"github.com/data-power-io/commerce-export/libs/logging"
	"github.com/data-power-io/commerce-export/libs/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options wires a pipeline. Client, Tokens and Storage are required.
type Options struct {
	Client  *httpclient.Client
	Tokens  auth.TokenSource
	Storage storage.Writer

	Fields  commerce.FieldSet
	Filters url.Values

	Products   commerce.FetcherConfig
	Categories commerce.CategoryConfig
	Inventory  commerce.InventoryConfig
	CSV        csvexport.Options

	// FileName is the fixed storage file name (default: "products.csv.gz").
	FileName string

	// CacheTTL applies to the per-run caches (default: 30m).
	CacheTTL time.Duration

	// ResponseCache and CategoryCache are created fresh for every run unless
	// injected here, in which case they are shared between runs.
	ResponseCache *httpclient.ResponseCache
	CategoryCache commerce.CategoryCache

	Logger  *zap.Logger
	Metrics *metrics.ExportMetrics
}

// Pipeline runs exports. A Pipeline may be reused; runs do not overlap state
// unless caches were injected.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// New validates opts and applies defaults.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Client == nil:
		return nil, errors.New("pipeline: http client is required")
	case opts.Tokens == nil:
		return nil, errors.New("pipeline: token source is required")
	case opts.Storage == nil:
		return nil, errors.New("pipeline: storage writer is required")
	}
	if len(opts.Fields.Names()) == 0 {
		fs, err := commerce.ParseFields(nil)
		if err != nil {
			return nil, err
		}
		opts.Fields = fs
	}
	if err := csvexport.ValidateFields(opts.Fields.Names()); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if opts.FileName == "" {
		opts.FileName = "products.csv.gz"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{opts: opts, logger: opts.Logger}, nil
}

// run is the mutable state of one export.
type run struct {
	result *ExportResult
	logger *logging.ExportLogger
	timer  *metrics.Timer
	state  State
}

func (r *run) enter(state State) *Step {
	r.state = state
	r.result.Steps = append(r.result.Steps, Step{State: state, started: time.Now()})
	r.logger.LogPipelineEvent("state_entered", map[string]interface{}{"state": string(state)})
	return &r.result.Steps[len(r.result.Steps)-1]
}

func (p *Pipeline) finishStep(r *run, step *Step, err error) {
	d := time.Since(step.started)
	step.DurationMs = d.Milliseconds()
	if err != nil {
		step.Error = err.Error()
	}
	p.opts.Metrics.RecordStep(string(step.State), d)
	notePeakHeap(r.result)
}

// Run executes one export. The result is always returned; err is a
// *StateError when the run ended Failed. A storage failure is not a run
// failure: the run ends Done with Storage.Stored=false.
func (p *Pipeline) Run(ctx context.Context) (*ExportResult, error) {
	runID := uuid.NewString()
	r := &run{
		result: &ExportResult{RunID: runID, StartedAt: time.Now().UTC()},
		logger: logging.Wrap(p.logger).WithFields(map[string]interface{}{"run_id": runID}),
		timer:  metrics.NewTimer(),
	}

	r.logger.Info("Export started",
		zap.Stringer("fields", p.opts.Fields),
		zap.String("storage", p.opts.Storage.Name()),
		zap.String("file", p.opts.FileName))

	err := p.execute(ctx, r)

	elapsed := r.timer.Duration()
	r.result.ElapsedMs = elapsed.Milliseconds()
	notePeakHeap(r.result)

	if err != nil {
		r.result.State = StateFailed
		r.result.FailedIn = r.state
		r.result.Error = &ErrorInfo{Message: err.Error(), Type: errorType(r.state, err)}
		p.opts.Metrics.RecordError(r.result.Error.Type, string(r.state))
		p.opts.Metrics.RecordRun(string(StateFailed), elapsed)
		r.logger.Error("Export failed",
			zap.String("state", string(r.state)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return r.result, &StateError{State: r.state, Err: err}
	}

	r.result.State = StateDone
	p.opts.Metrics.RecordRun(string(StateDone), elapsed)
	r.logger.LogPerformanceMetric("export_duration", r.result.ElapsedMs, "ms")
	r.logger.LogPerformanceMetric("peak_heap", r.result.PeakHeapBytes, "bytes")
	r.logger.Info("Export completed",
		zap.Int("records", r.result.RecordCount),
		zap.Int("categories", r.result.CategoryCount),
		zap.Bool("stored", r.result.Stored()),
		zap.Duration("elapsed", elapsed))
	return r.result, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run) (err error) {
	defer batch.Recover(&err)

	responses := p.opts.ResponseCache
	if responses == nil {
		responses = cache.NewLocked[string, []byte](p.opts.CacheTTL)
	}
	categoryCache := p.opts.CategoryCache
	if categoryCache == nil {
		categoryCache = cache.NewLocked[string, commerce.CategoryRecord](p.opts.CacheTTL)
	}

	fetcher := commerce.NewFetcher(p.opts.Client, responses, p.opts.Products, r.logger.Logger, p.opts.Metrics)
	enricher := commerce.NewEnricher(
		commerce.NewCategoryResolver(p.opts.Client, categoryCache, p.opts.Categories, r.logger.Logger, p.opts.Metrics),
		commerce.NewInventoryResolver(p.opts.Client, responses, p.opts.Inventory, r.logger.Logger, p.opts.Metrics),
		r.logger.Logger,
	)

	step := r.enter(StateAuthenticating)
	token, err := p.opts.Tokens.Token(ctx)
	p.finishStep(r, step, err)
	if err != nil {
		return err
	}

	step = r.enter(StateFetching)
	products, err := fetcher.FetchAll(ctx, token, commerce.FetchParams{Fields: p.opts.Fields, Filters: p.opts.Filters})
	step.Records = len(products)
	p.finishStep(r, step, err)
	if err != nil {
		return err
	}
	r.result.RecordCount = len(products)

	step = r.enter(StateEnriching)
	enriched, err := enricher.Enrich(ctx, products, token)
	step.Records = len(enriched.Products)
	p.finishStep(r, step, err)
	if err != nil {
		return err
	}
	r.result.CategoryCount = enriched.CategoryCount
	r.result.Degraded = Degradation{
		Categories: enriched.DegradedCategories,
		Inventory:  enriched.DegradedInventory,
	}
	step.Detail = fmt.Sprintf("%d categories, %d degraded categories, %d degraded inventory",
		enriched.CategoryCount, enriched.DegradedCategories, enriched.DegradedInventory)

	step = r.enter(StateAssembling)
	file, err := csvexport.Assemble(enriched.Products, p.opts.Fields.Names(), p.opts.CSV)
	p.finishStep(r, step, err)
	if err != nil {
		return err
	}
	step.Records = file.Rows
	step.Detail = fmt.Sprintf("%d bytes csv, %d bytes gzip", file.Stats.OriginalSize, file.Stats.CompressedSize)
	p.opts.Metrics.RecordAssembly(file.Rows, file.Stats.OriginalSize, file.Stats.CompressedSize)

	step = r.enter(StateStoring)
	stored, err := p.opts.Storage.Write(ctx, p.opts.FileName, file.Bytes)
	p.finishStep(r, step, err)
	p.opts.Metrics.RecordStorageWrite(p.opts.Storage.Name(), err == nil)

	outcome := &StorageOutcome{
		FileName:         p.opts.FileName,
		CompressionStats: file.Stats,
		StorageType:      p.opts.Storage.Name(),
	}
	if err != nil {
		outcome.Error = &ErrorInfo{Message: err.Error(), Type: storage.ErrorType(err)}
		p.opts.Metrics.RecordError(outcome.Error.Type, string(StateStoring))
		r.logger.Error("Storing export failed",
			zap.String("backend", p.opts.Storage.Name()),
			zap.Error(err))
	} else {
		outcome.Stored = true
		outcome.DownloadURL = stored.URL
		outcome.Properties = &stored.Properties
		outcome.StorageType = stored.StorageType
		outcome.Location = stored.Location
	}
	r.result.Storage = outcome
	return nil
}

// errorType classifies a run failure for the result and metrics.
func errorType(state State, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, batch.ErrPanic):
		return "internal"
	case errors.Is(err, auth.ErrNoCredentials):
		return "auth"
	case state == StateAuthenticating:
		if t := httpclient.ErrorType(err); t != "internal" {
			return t
		}
		return "auth"
	case state == StateAssembling:
		return "assembly"
	}
	return httpclient.ErrorType(err)
}

func notePeakHeap(result *ExportResult) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc > result.PeakHeapBytes {
		result.PeakHeapBytes = m.HeapAlloc
	}
}
