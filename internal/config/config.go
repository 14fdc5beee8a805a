// Package config loads exporter settings from EXPORT_* environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/data-power-io/commerce-export/internal/commerce"
	"github.com/data-power-io/commerce-export/internal/csvexport"
	"github.com/data-power-io/commerce-export/internal/storage"
	"github.com/data-power-io/commerce-export/libs/logging"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "EXPORT"

// FileEnv names the variable holding the optional YAML overlay path.
const FileEnv = "EXPORT_CONFIG_FILE"

// Config holds all exporter settings.
type Config struct {
	CommerceBaseURL string `envconfig:"COMMERCE_BASE_URL" yaml:"commerce_base_url"`

	// Credentials: a static token, client credentials or an admin login.
	Token         string   `envconfig:"COMMERCE_TOKEN" yaml:"token"`
	TokenURL      string   `envconfig:"TOKEN_URL" yaml:"token_url"`
	ClientID      string   `envconfig:"CLIENT_ID" yaml:"client_id"`
	ClientSecret  string   `envconfig:"CLIENT_SECRET" yaml:"client_secret"`
	Scopes        []string `envconfig:"SCOPES" yaml:"scopes"`
	AdminUsername string   `envconfig:"ADMIN_USERNAME" yaml:"admin_username"`
	AdminPassword string   `envconfig:"ADMIN_PASSWORD" yaml:"admin_password"`

	PageSize           int           `envconfig:"PAGE_SIZE" default:"100" yaml:"page_size"`
	MaxPages           int           `envconfig:"MAX_PAGES" default:"50" yaml:"max_pages"`
	APIStyle           string        `envconfig:"API_STYLE" default:"search_criteria" yaml:"api_style"`
	CategoryBatchSize  int           `envconfig:"CATEGORY_BATCH_SIZE" default:"10" yaml:"category_batch_size"`
	InventoryBatchSize int           `envconfig:"INVENTORY_BATCH_SIZE" default:"20" yaml:"inventory_batch_size"`
	Concurrency        int           `envconfig:"CONCURRENCY" default:"5" yaml:"concurrency"`
	Retries            int           `envconfig:"RETRIES" default:"3" yaml:"retries"`
	RetryDelay         time.Duration `envconfig:"RETRY_DELAY" default:"1s" yaml:"retry_delay"`
	BatchPause         time.Duration `envconfig:"BATCH_PAUSE" default:"100ms" yaml:"batch_pause"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" yaml:"request_timeout"`
	RateLimit          float64       `envconfig:"RATE_LIMIT" default:"10" yaml:"rate_limit"`
	RateBurst          int           `envconfig:"RATE_BURST" default:"5" yaml:"rate_burst"`
	CacheTTL           time.Duration `envconfig:"CACHE_TTL" default:"30m" yaml:"cache_ttl"`

	Fields           []string `envconfig:"FIELDS" default:"sku,name,price,status,categories,qty,in_stock,image_url,updated_at" yaml:"fields"`
	MediaBaseURL     string   `envconfig:"MEDIA_BASE_URL" yaml:"media_base_url"`
	CSVChunkSize     int      `envconfig:"CSV_CHUNK_SIZE" default:"100" yaml:"csv_chunk_size"`
	CompressionLevel int      `envconfig:"COMPRESSION_LEVEL" default:"6" yaml:"compression_level"`
	FileName         string   `envconfig:"FILE_NAME" default:"products.csv.gz" yaml:"file_name"`

	Storage StorageConfig `envconfig:"STORAGE" yaml:"storage"`
	Log     LogConfig     `envconfig:"LOG" yaml:"log"`

	MetricsPushgatewayURL string `envconfig:"METRICS_PUSHGATEWAY_URL" yaml:"metrics_pushgateway_url"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Provider        string `envconfig:"PROVIDER" default:"files" yaml:"provider"`
	Bucket          string `envconfig:"BUCKET" yaml:"bucket"`
	Region          string `envconfig:"REGION" default:"us-east-1" yaml:"region"`
	Prefix          string `envconfig:"PREFIX" yaml:"prefix"`
	Endpoint        string `envconfig:"ENDPOINT" yaml:"endpoint"`
	AccessKeyID     string `envconfig:"ACCESS_KEY_ID" yaml:"access_key_id"`
	SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY" yaml:"secret_access_key"`
	UseSSL          bool   `envconfig:"USE_SSL" default:"true" yaml:"use_ssl"`
	PublicBaseURL   string `envconfig:"PUBLIC_BASE_URL" yaml:"public_base_url"`
	Directory       string `envconfig:"DIRECTORY" default:"./exports" yaml:"directory"`
	ContentType     string `envconfig:"CONTENT_TYPE" yaml:"content_type"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info" yaml:"level"`
	Format      string `envconfig:"FORMAT" default:"json" yaml:"format"`
	Development bool   `envconfig:"DEVELOPMENT" yaml:"development"`
}

// Load reads the environment, then overlays the file named by
// EXPORT_CONFIG_FILE when set. It does not validate.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Overlay replaces the settings present in the YAML file at path.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every setting without touching the network and reports all
// problems at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.CommerceBaseURL == "" {
		fail("required field '%s' is missing or empty", "commerce_base_url")
	} else if u, err := url.Parse(c.CommerceBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		fail("commerce_base_url %q is not an absolute URL", c.CommerceBaseURL)
	}

	switch c.AuthMode() {
	case AuthNone:
		fail("no credentials: set token, client_id/client_secret/token_url or admin_username/admin_password")
	case AuthClientCredentials:
		if c.ClientSecret == "" {
			fail("required field '%s' is missing or empty", "client_secret")
		}
		if c.TokenURL == "" {
			fail("required field '%s' is missing or empty", "token_url")
		}
	case AuthAdmin:
		if c.AdminPassword == "" {
			fail("required field '%s' is missing or empty", "admin_password")
		}
	}

	for name, v := range map[string]int{
		"page_size":            c.PageSize,
		"max_pages":            c.MaxPages,
		"category_batch_size":  c.CategoryBatchSize,
		"inventory_batch_size": c.InventoryBatchSize,
		"concurrency":          c.Concurrency,
		"csv_chunk_size":       c.CSVChunkSize,
	} {
		if v < 1 {
			fail("%s must be at least 1, got %d", name, v)
		}
	}
	switch c.APIStyle {
	case commerce.QueryStyleSearchCriteria, commerce.QueryStyleFlat:
	default:
		fail("api_style must be %q or %q, got %q", commerce.QueryStyleSearchCriteria, commerce.QueryStyleFlat, c.APIStyle)
	}
	if c.Retries < 0 {
		fail("retries must not be negative, got %d", c.Retries)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		fail("compression_level must be between 0 and 9, got %d", c.CompressionLevel)
	}
	if c.RequestTimeout <= 0 {
		fail("request_timeout must be positive")
	}
	if c.CacheTTL < 0 {
		fail("cache_ttl must not be negative")
	}
	if strings.TrimSpace(c.FileName) == "" {
		fail("required field '%s' is missing or empty", "file_name")
	}

	if fs, err := commerce.ParseFields(c.Fields); err != nil {
		errs = append(errs, err)
	} else if err := csvexport.ValidateFields(fs.Names()); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Storage.Provider) {
	case storage.ProviderS3:
		if c.Storage.Bucket == "" {
			fail("required field '%s' is missing or empty", "storage.bucket")
		}
	case storage.ProviderMinio:
		for name, v := range map[string]string{
			"storage.bucket":            c.Storage.Bucket,
			"storage.endpoint":          c.Storage.Endpoint,
			"storage.access_key_id":     c.Storage.AccessKeyID,
			"storage.secret_access_key": c.Storage.SecretAccessKey,
		} {
			if v == "" {
				fail("required field '%s' is missing or empty", name)
			}
		}
	case storage.ProviderFiles:
		if c.Storage.Directory == "" {
			fail("required field '%s' is missing or empty", "storage.directory")
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", storage.ErrUnknownProvider, c.Storage.Provider))
	}
	if err := storage.ValidatePrefix(c.Storage.Prefix); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AuthMode is the credential flavor a config selects.
type AuthMode string

const (
	AuthNone              AuthMode = "none"
	AuthStatic            AuthMode = "static"
	AuthClientCredentials AuthMode = "client_credentials"
	AuthAdmin             AuthMode = "admin"
)

// AuthMode picks the first configured credential, in the order token,
// client credentials, admin login.
func (c *Config) AuthMode() AuthMode {
	switch {
	case c.Token != "":
		return AuthStatic
	case c.ClientID != "":
		return AuthClientCredentials
	case c.AdminUsername != "":
		return AuthAdmin
	}
	return AuthNone
}

// FieldSet parses the configured export fields.
func (c *Config) FieldSet() (commerce.FieldSet, error) {
	return commerce.ParseFields(c.Fields)
}

// StorageConfig returns the storage backend settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Provider:        c.Storage.Provider,
		Prefix:          c.Storage.Prefix,
		ContentType:     c.Storage.ContentType,
		PublicBaseURL:   c.Storage.PublicBaseURL,
		Bucket:          c.Storage.Bucket,
		Region:          c.Storage.Region,
		Endpoint:        c.Storage.Endpoint,
		AccessKeyID:     c.Storage.AccessKeyID,
		SecretAccessKey: c.Storage.SecretAccessKey,
		UseSSL:          c.Storage.UseSSL,
		Directory:       c.Storage.Directory,
	}
}

// CSVOptions returns the assembler settings.
func (c *Config) CSVOptions() csvexport.Options {
	return csvexport.Options{
		ChunkSize:     c.CSVChunkSize,
		Level:         c.CompressionLevel,
		NoCompression: c.CompressionLevel == 0,
		MediaBaseURL:  c.MediaBaseURL,
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		Development: c.Log.Development,
		Fields: map[string]string{
			"service": "commerce-export",
		},
	}
}
