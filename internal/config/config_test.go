package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/data-power-io/commerce-export/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPORT_COMMERCE_BASE_URL", "https://shop.example.com/rest/V1")
	t.Setenv("EXPORT_COMMERCE_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 50, cfg.MaxPages)
	assert.Equal(t, "search_criteria", cfg.APIStyle)
	assert.Equal(t, 10, cfg.CategoryBatchSize)
	assert.Equal(t, 20, cfg.InventoryBatchSize)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.BatchPause)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 6, cfg.CompressionLevel)
	assert.Equal(t, "products.csv.gz", cfg.FileName)
	assert.Equal(t, storage.ProviderFiles, cfg.Storage.Provider)
	assert.Equal(t, AuthStatic, cfg.AuthMode())
	assert.Equal(t, []string{"sku", "name", "price", "status", "categories", "qty", "in_stock", "image_url", "updated_at"}, cfg.Fields)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EXPORT_COMMERCE_BASE_URL", "https://shop.example.com")
	t.Setenv("EXPORT_CLIENT_ID", "id")
	t.Setenv("EXPORT_CLIENT_SECRET", "secret")
	t.Setenv("EXPORT_TOKEN_URL", "https://auth.example.com/token")
	t.Setenv("EXPORT_PAGE_SIZE", "250")
	t.Setenv("EXPORT_API_STYLE", "flat")
	t.Setenv("EXPORT_FIELDS", "sku,attr:color")
	t.Setenv("EXPORT_STORAGE_PROVIDER", "s3")
	t.Setenv("EXPORT_STORAGE_BUCKET", "feeds")
	t.Setenv("EXPORT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 250, cfg.PageSize)
	assert.Equal(t, "flat", cfg.APIStyle)
	assert.Equal(t, []string{"sku", "attr:color"}, cfg.Fields)
	assert.Equal(t, AuthClientCredentials, cfg.AuthMode())
	assert.Equal(t, "feeds", cfg.StorageConfig().Bucket)
	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commerce_base_url: https://yaml.example.com
token: from-file
page_size: 40
storage:
  provider: minio
  bucket: exports
  endpoint: http://minio:9000
  access_key_id: key
  secret_access_key: secret
`), 0o600))

	t.Setenv("EXPORT_CONFIG_FILE", path)
	t.Setenv("EXPORT_PAGE_SIZE", "10")
	t.Setenv("EXPORT_MAX_PAGES", "7")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://yaml.example.com", cfg.CommerceBaseURL)
	assert.Equal(t, 40, cfg.PageSize, "file values overlay the environment")
	assert.Equal(t, 7, cfg.MaxPages, "unset file keys keep env values")
	assert.Equal(t, storage.ProviderMinio, cfg.Storage.Provider)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
}

func TestLoadBadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: [oops"), 0o600))
	t.Setenv("EXPORT_CONFIG_FILE", path)

	_, err := Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("EXPORT_COMMERCE_BASE_URL", "https://shop.example.com")
	t.Setenv("EXPORT_COMMERCE_TOKEN", "tok")
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.CommerceBaseURL = "" }, "commerce_base_url"},
		{"relative base url", func(c *Config) { c.CommerceBaseURL = "/rest" }, "not an absolute URL"},
		{"no credentials", func(c *Config) { c.Token = "" }, "no credentials"},
		{"client credentials without secret", func(c *Config) { c.Token = ""; c.ClientID = "id" }, "client_secret"},
		{"admin without password", func(c *Config) { c.Token = ""; c.AdminUsername = "admin" }, "admin_password"},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "page_size must be at least 1"},
		{"unknown api style", func(c *Config) { c.APIStyle = "graphql" }, "api_style"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "retries must not be negative"},
		{"compression level", func(c *Config) { c.CompressionLevel = 10 }, "compression_level"},
		{"unknown field", func(c *Config) { c.Fields = []string{"sku", "colour"} }, `unknown export field "colour"`},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "ftp" }, "unknown storage provider"},
		{"s3 without bucket", func(c *Config) { c.Storage.Provider = "s3" }, "storage.bucket"},
		{"minio without endpoint", func(c *Config) { c.Storage.Provider = "minio"; c.Storage.Bucket = "b" }, "storage.endpoint"},
		{"escaping storage prefix", func(c *Config) { c.Storage.Prefix = "../x" }, "invalid key prefix"},
		{"empty file name", func(c *Config) { c.FileName = " " }, "file_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestCSVOptions(t *testing.T) {
	cfg := validConfig(t)
	cfg.CompressionLevel = 0
	opts := cfg.CSVOptions()
	assert.True(t, opts.NoCompression)
	assert.Equal(t, 100, opts.ChunkSize)
}
