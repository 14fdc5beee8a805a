package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/data-power-io/commerce-export/internal/config"
	"github.com/data-power-io/commerce-export/internal/pipeline"
	"github.com/data-power-io/commerce-export/libs/logging"
	"github.com/data-power-io/commerce-export/libs/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "exporter",
		Usage: "export the commerce product catalog to a compressed CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{config.FileEnv}},
			&cli.StringFlag{Name: "base-url", Usage: "commerce REST base URL"},
			&cli.StringFlag{Name: "fields", Usage: "comma-separated export fields"},
			&cli.IntFlag{Name: "page-size", Usage: "products per page"},
			&cli.StringFlag{Name: "storage", Usage: "storage provider: s3, minio or files"},
			&cli.StringFlag{Name: "file-name", Usage: "stored file name"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "json or console"},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run one export and print the result as JSON",
				Action: runExport,
			},
			{
				Name:   "check",
				Usage:  "validate configuration and check authentication and storage",
				Action: runCheck,
			},
		},
	}
}

// loadConfig reads env and file settings, then applies command-line flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path := c.String("config"); path != "" && path != os.Getenv(config.FileEnv) {
		if err := cfg.Overlay(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("base-url") {
		cfg.CommerceBaseURL = c.String("base-url")
	}
	if c.IsSet("fields") {
		cfg.Fields = strings.Split(c.String("fields"), ",")
	}
	if c.IsSet("page-size") {
		cfg.PageSize = c.Int("page-size")
	}
	if c.IsSet("storage") {
		cfg.Storage.Provider = c.String("storage")
	}
	if c.IsSet("file-name") {
		cfg.FileName = c.String("file-name")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	return cfg, nil
}

// newLogger falls back to the default logger when the configured one cannot
// be built, e.g. for an unwritable output path.
func newLogger(cfg *config.Config) *logging.ExportLogger {
	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		logger = logging.NewDefaultLogger()
		logger.Warn("Invalid log configuration, using defaults", zap.Error(err))
	}
	return logger
}

func runExport(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewExportMetrics("commerce")
	p, err := pipeline.FromConfig(ctx, cfg, logger.Logger, m)
	if err != nil {
		logger.Error("Failed to build export pipeline", zap.Error(err))
		return cli.Exit(err.Error(), 2)
	}

	result, runErr := p.Run(ctx)
	if err := writeJSON(c.App.Writer, result); err != nil {
		return err
	}

	if cfg.MetricsPushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.MetricsPushgatewayURL, "commerce_export", map[string]string{
			"state": string(result.State),
		}); err != nil {
			logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	if !result.Stored() {
		return cli.Exit("export assembled but not stored", 3)
	}
	return nil
}

func runCheck(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(c.Context, cfg.RequestTimeout*2)
	defer cancel()

	report, checkErr := pipeline.Check(ctx, cfg, logger.Logger)
	if err := writeJSON(c.App.Writer, report); err != nil {
		return err
	}
	if checkErr != nil {
		return cli.Exit(checkErr.Error(), 1)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
