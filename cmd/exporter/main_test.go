package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/data-power-io/commerce-export/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func captureConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	var got *config.Config
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.Commands = append(app.Commands, &cli.Command{
		Name: "dump",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			got = cfg
			return err
		},
	})
	require.NoError(t, app.Run(append([]string{"exporter"}, args...)))
	require.NotNil(t, got)
	return got
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("EXPORT_COMMERCE_BASE_URL", "https://env.example.com")
	t.Setenv("EXPORT_PAGE_SIZE", "20")

	cfg := captureConfig(t,
		"--base-url", "https://flag.example.com",
		"--fields", "sku,qty",
		"--storage", "s3",
		"dump")
	assert.Equal(t, "https://flag.example.com", cfg.CommerceBaseURL)
	assert.Equal(t, []string{"sku", "qty"}, cfg.Fields)
	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, 20, cfg.PageSize, "unset flags keep env values")
}

func TestConfigFlagOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte("file_name: feed.csv.gz\n"), 0o600))

	cfg := captureConfig(t, "--config", path, "dump")
	assert.Equal(t, "feed.csv.gz", cfg.FileName)
}
