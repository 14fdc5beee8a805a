package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/data-power-io/commerce-export/internal/auth"
	"github.com/data-power-io/commerce-export/internal/batch"
	"github.com/data-power-io/commerce-export/internal/commerce"
	"github.com/data-power-io/commerce-export/internal/config"
	"github.com/data-power-io/commerce-export/internal/httpclient"
	"github.com/data-power-io/commerce-export/internal/storage"
	"github.com/data-power-io/commerce-export/libs/metrics"
	"go.uber.org/zap"
)

// Services are the collaborators built from configuration.
type Services struct {
	Client  *httpclient.Client
	Tokens  auth.TokenSource
	Storage storage.Writer
}

// NewServices builds the HTTP client, token source and storage writer. It
// validates cfg first so configuration errors surface before any network
// call.
func NewServices(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.ExportMetrics) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := newClient(cfg, cfg.CommerceBaseURL, logger, m)
	if err != nil {
		return nil, err
	}

	tokens, err := newTokenSource(cfg, client, logger, m)
	if err != nil {
		return nil, err
	}

	writer, err := storage.New(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage writer: %w", err)
	}

	return &Services{Client: client, Tokens: tokens, Storage: writer}, nil
}

func newClient(cfg *config.Config, baseURL string, logger *zap.Logger, m *metrics.ExportMetrics) (*httpclient.Client, error) {
	return httpclient.New(httpclient.Config{
		BaseURL:   baseURL,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Logger:    logger,
		Metrics:   m,
	})
}

func newTokenSource(cfg *config.Config, client *httpclient.Client, logger *zap.Logger, m *metrics.ExportMetrics) (auth.TokenSource, error) {
	switch cfg.AuthMode() {
	case config.AuthStatic:
		return auth.Static(cfg.Token), nil
	case config.AuthClientCredentials:
		tokenClient, err := newClient(cfg, cfg.TokenURL, logger, m)
		if err != nil {
			return nil, fmt.Errorf("token endpoint: %w", err)
		}
		return &auth.ClientCredentials{
			Client:       tokenClient,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
		}, nil
	case config.AuthAdmin:
		return &auth.AdminToken{
			Client:   client,
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
		}, nil
	}
	return nil, auth.ErrNoCredentials
}

// FromConfig builds a pipeline and its services from cfg.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.ExportMetrics) (*Pipeline, error) {
	svc, err := NewServices(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}
	fields, err := cfg.FieldSet()
	if err != nil {
		return nil, err
	}

	retry := batch.RetryPolicy{
		Retries:   cfg.Retries,
		Backoff:   batch.Fixed(cfg.RetryDelay),
		Retryable: httpclient.IsRetryable,
	}

	return New(Options{
		Client:  svc.Client,
		Tokens:  svc.Tokens,
		Storage: svc.Storage,
		Fields:  fields,
		Products: commerce.FetcherConfig{
			PageSize:   cfg.PageSize,
			MaxPages:   cfg.MaxPages,
			QueryStyle: cfg.APIStyle,
			Retry:      retry,
		},
		Categories: commerce.CategoryConfig{
			BatchSize:  cfg.CategoryBatchSize,
			BatchPause: cfg.BatchPause,
			Retry:      retry,
		},
		Inventory: commerce.InventoryConfig{
			BatchSize:   cfg.InventoryBatchSize,
			Concurrency: cfg.Concurrency,
			BatchPause:  cfg.BatchPause,
			Retry:       retry,
		},
		CSV:      cfg.CSVOptions(),
		FileName: cfg.FileName,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
		Metrics:  m,
	})
}

// CheckReport is the outcome of a connectivity check.
type CheckReport struct {
	Config  string `json:"config"`
	Auth    string `json:"auth"`
	Storage string `json:"storage"`
}

// Check validates cfg, obtains a token and checks the storage target when the
// backend supports it. The report is filled as far as the check got.
func Check(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*CheckReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	report := &CheckReport{Config: "invalid", Auth: "skipped", Storage: "skipped"}

	svc, err := NewServices(ctx, cfg, logger, nil)
	if err != nil {
		return report, err
	}
	report.Config = "ok"

	var errs []error
	if _, err := svc.Tokens.Token(ctx); err != nil {
		report.Auth = "failed"
		errs = append(errs, fmt.Errorf("authentication: %w", err))
	} else {
		report.Auth = "ok"
	}

	if checker, ok := svc.Storage.(storage.Checker); ok {
		if err := checker.Check(ctx); err != nil {
			report.Storage = "failed"
			errs = append(errs, fmt.Errorf("storage: %w", err))
		} else {
			report.Storage = "ok"
		}
	} else {
		report.Storage = "not checked"
	}

	logger.Info("Connection check finished",
		zap.String("auth", report.Auth),
		zap.String("storage", report.Storage))
	return report, errors.Join(errs...)
}
