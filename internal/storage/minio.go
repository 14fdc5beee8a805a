package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioAPI is the subset of *minio.Client the writer calls.
type MinioAPI interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// MinioWriter stores files on a MinIO or other S3-compatible endpoint.
type MinioWriter struct {
	api         MinioAPI
	bucket      string
	prefix      string
	baseURL     string
	contentType string
	logger      *zap.Logger
	now         func() time.Time
}

// NewMinioWriter connects to cfg.Endpoint with static credentials.
func NewMinioWriter(cfg Config, logger *zap.Logger) (*MinioWriter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio storage: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio storage: bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("minio storage: credentials are required")
	}

	u, err := url.Parse(normalizeEndpoint(cfg.Endpoint, cfg.UseSSL))
	if err != nil {
		return nil, fmt.Errorf("minio storage: invalid endpoint: %w", err)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: u.Scheme == "https",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio storage: create client: %w", err)
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = joinURL(u.Scheme+"://"+u.Host, cfg.Bucket)
	}
	return NewMinioWriterWithAPI(client, cfg, logger), nil
}

// NewMinioWriterWithAPI wraps an existing client. cfg.PublicBaseURL should be
// set; otherwise URLs are derived from cfg.Endpoint.
func NewMinioWriterWithAPI(api MinioAPI, cfg Config, logger *zap.Logger) *MinioWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = joinURL(normalizeEndpoint(cfg.Endpoint, cfg.UseSSL), cfg.Bucket)
	}
	return &MinioWriter{
		api:         api,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		baseURL:     baseURL,
		contentType: contentType(cfg),
		logger:      logger,
		now:         time.Now,
	}
}

func (w *MinioWriter) Name() string { return ProviderMinio }

// Write puts data at prefix/filename, replacing any previous object.
func (w *MinioWriter) Write(ctx context.Context, filename string, data []byte) (*Result, error) {
	if err := validateKey(w.prefix, filename); err != nil {
		return nil, &Error{Backend: ProviderMinio, Op: "put", Type: "invalid_name", Err: err}
	}
	key := ObjectKey(w.prefix, filename)

	info, err := w.api.PutObject(ctx, w.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: w.contentType,
	})
	if err != nil {
		return nil, &Error{Backend: ProviderMinio, Op: "put", Type: classifyMinioError(err), Err: err}
	}

	size := info.Size
	if size == 0 {
		size = int64(len(data))
	}
	modified := info.LastModified
	if modified.IsZero() {
		modified = w.now()
	}

	w.logger.Info("Stored export in MinIO",
		zap.String("bucket", w.bucket),
		zap.String("key", key),
		zap.String("etag", info.ETag),
		zap.Int64("bytes", size))

	return &Result{
		URL: joinURL(w.baseURL, key),
		Properties: Properties{
			Size:         size,
			ContentType:  w.contentType,
			LastModified: modified.UTC(),
		},
		StorageType: ProviderMinio,
		Location:    fmt.Sprintf("s3://%s/%s", w.bucket, key),
	}, nil
}

// Check verifies the bucket exists.
func (w *MinioWriter) Check(ctx context.Context) error {
	exists, err := w.api.BucketExists(ctx, w.bucket)
	if err != nil {
		return &Error{Backend: ProviderMinio, Op: "bucket exists", Type: classifyMinioError(err), Err: err}
	}
	if !exists {
		return &Error{Backend: ProviderMinio, Op: "bucket exists", Type: "bucket_not_found", Err: fmt.Errorf("bucket %q does not exist", w.bucket)}
	}
	return nil
}

func classifyMinioError(err error) string {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return "bucket_not_found"
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return "access_denied"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return "network"
	}
	return "storage_error"
}
