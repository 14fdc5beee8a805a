package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3API is the subset of *s3.Client the writer calls.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Writer stores files in an S3 bucket.
type S3Writer struct {
	api         S3API
	bucket      string
	prefix      string
	region      string
	baseURL     string
	contentType string
	logger      *zap.Logger
	now         func() time.Time
}

// NewS3Writer builds an S3 client from cfg. Static credentials are used when
// set, otherwise the default AWS credential chain. A custom endpoint switches
// to path-style addressing for S3-compatible services.
func NewS3Writer(ctx context.Context, cfg Config, logger *zap.Logger) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3WriterWithAPI(client, cfg, logger), nil
}

// NewS3WriterWithAPI wraps an existing client, e.g. a fake in tests.
func NewS3WriterWithAPI(api S3API, cfg Config, logger *zap.Logger) *S3Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL); endpoint != "" {
			baseURL = joinURL(endpoint, cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}

	return &S3Writer{
		api:         api,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		region:      region,
		baseURL:     baseURL,
		contentType: contentType(cfg),
		logger:      logger,
		now:         time.Now,
	}
}

func (w *S3Writer) Name() string { return ProviderS3 }

// Write puts data at prefix/filename, replacing any previous object.
func (w *S3Writer) Write(ctx context.Context, filename string, data []byte) (*Result, error) {
	if err := validateKey(w.prefix, filename); err != nil {
		return nil, &Error{Backend: ProviderS3, Op: "put", Type: "invalid_name", Err: err}
	}
	key := ObjectKey(w.prefix, filename)

	_, err := w.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(w.contentType),
	})
	if err != nil {
		return nil, &Error{Backend: ProviderS3, Op: "put", Type: classifyS3Error(err), Err: err}
	}

	w.logger.Info("Stored export in S3",
		zap.String("bucket", w.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)))

	return &Result{
		URL: joinURL(w.baseURL, key),
		Properties: Properties{
			Size:         int64(len(data)),
			ContentType:  w.contentType,
			LastModified: w.now().UTC(),
		},
		StorageType: ProviderS3,
		Location:    fmt.Sprintf("s3://%s/%s", w.bucket, key),
	}, nil
}

// Check verifies the bucket exists and is reachable with the credentials.
func (w *S3Writer) Check(ctx context.Context) error {
	if _, err := w.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(w.bucket)}); err != nil {
		return &Error{Backend: ProviderS3, Op: "head bucket", Type: classifyS3Error(err), Err: err}
	}
	return nil
}

func classifyS3Error(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return "bucket_not_found"
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return "access_denied"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	return "storage_error"
}

// normalizeEndpoint adds a scheme to bare host:port endpoints.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimSuffix(endpoint, "/")
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
