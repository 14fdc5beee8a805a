// Package storage persists export files and returns a stable download URL.
// Every backend writes to a fixed key, so repeated runs overwrite the same
// object and the URL does not change.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderS3    = "s3"
	ProviderMinio = "minio"
	ProviderFiles = "files"
)

// DefaultContentType is used for the gzip CSV export.
const DefaultContentType = "application/gzip"

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown storage provider")

// Properties describes a stored object.
type Properties struct {
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	LastModified time.Time `json:"lastModified"`
}

// Result is the descriptor of a successful write.
type Result struct {
	URL         string     `json:"downloadUrl"`
	Properties  Properties `json:"properties"`
	StorageType string     `json:"storageType"`

	// Location is the backend-specific address, e.g. s3://bucket/key.
	Location string `json:"location"`
}

// Writer stores one file.
type Writer interface {
	Name() string
	Write(ctx context.Context, filename string, data []byte) (*Result, error)
}

// Checker is implemented by writers that can verify their target is
// reachable without writing.
type Checker interface {
	Check(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Provider string `yaml:"provider"`

	// Prefix is prepended to the file name to form the object key.
	Prefix      string `yaml:"prefix"`
	ContentType string `yaml:"content_type"`

	// PublicBaseURL overrides the URL returned for stored objects.
	PublicBaseURL string `yaml:"public_base_url"`

	// s3 and minio
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`

	// files
	Directory string `yaml:"directory"`
}

// Error is a failed storage operation. Type is a short machine-readable
// classification such as "access_denied" or "bucket_not_found".
type Error struct {
	Backend string
	Op      string
	Type    string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorType returns the classification of a storage error, or "storage_error".
func ErrorType(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Type != "" {
		return se.Type
	}
	return "storage_error"
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderS3:
		return NewS3Writer(ctx, cfg, logger)
	case ProviderMinio:
		return NewMinioWriter(cfg, logger)
	case ProviderFiles, "":
		svc, err := NewDirFileService(cfg.Directory, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		return NewFilesWriter(svc, cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// ObjectKey joins prefix and filename without doubled slashes.
func ObjectKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	filename = strings.TrimPrefix(filename, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

func contentType(cfg Config) string {
	if cfg.ContentType != "" {
		return cfg.ContentType
	}
	return DefaultContentType
}

// validateKey rejects file names and prefixes that would escape the bucket
// or directory root once joined.
func validateKey(prefix, filename string) error {
	if filename == "" {
		return errors.New("file name is required")
	}
	rooted := "/" + strings.TrimPrefix(filename, "/")
	if path.Clean(rooted) != rooted {
		return fmt.Errorf("invalid file name %q", filename)
	}
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}
	return nil
}

// ValidatePrefix rejects key prefixes with "." or ".." segments.
func ValidatePrefix(prefix string) error {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return nil
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("invalid key prefix %q", prefix)
		}
	}
	return nil
}
