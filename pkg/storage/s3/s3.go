// Package s3 prefetches s3:// input objects to local files so the run
// stays a finite, file-backed batch.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// DownloadTimeout bounds each object download.
	DownloadTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(region string) Config {
	return Config{
		Region:          region,
		DownloadTimeout: 5 * time.Minute,
	}
}

// Client provides the S3 operations the prefetcher needs.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{cfg: cfg, client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// IsURL reports whether an input argument names an S3 object.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(url string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(url, "s3://")
	if trimmed == url {
		return "", "", fmt.Errorf("not an s3 URL: %q", url)
	}
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URL must be s3://bucket/key: %q", url)
	}
	return bucket, key, nil
}

// Fetch downloads one object into destDir and returns the local path.
func (c *Client) Fetch(ctx context.Context, url, destDir string) (string, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return "", err
	}

	if c.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DownloadTimeout)
		defer cancel()
	}

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	local := filepath.Join(destDir, filepath.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", local, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(local)
		return "", fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return local, nil
}
