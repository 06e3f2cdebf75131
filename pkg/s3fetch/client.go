// Package s3fetch moves ibu streams to and from S3: streaming reads,
// parallel ranged downloads to local files, and multipart uploads.
package s3fetch

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 client used here. *s3.Client satisfies it.
type API interface {
	manager.DownloadAPIClient
	manager.UploadAPIClient
}

// Config configures a Client.
type Config struct {
	// Region overrides the region from the default AWS configuration.
	Region string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO or LocalStack.
	Endpoint string

	// UsePathStyle addresses buckets as path components instead of
	// subdomains. Usually required together with Endpoint.
	UsePathStyle bool

	// Concurrency is the number of parts transferred in parallel.
	// Default: max(4, NumCPU) capped at 16.
	Concurrency int

	// PartSize is the size of each transfer part in bytes.
	// Default: 16MB.
	PartSize int64
}

// DefaultConfig returns sensible defaults based on the current machine.
func DefaultConfig() Config {
	return Config{
		Concurrency: min(max(4, runtime.NumCPU()), 16),
		PartSize:    16 * 1024 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.PartSize <= 0 {
		c.PartSize = d.PartSize
	}
	return c
}

// Client wraps an S3 API with transfer managers.
type Client struct {
	api        API
	cfg        Config
	downloader *manager.Downloader
	uploader   *manager.Uploader
}

// NewClient creates a client from the default AWS configuration chain.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewClientWithAPI(api, cfg), nil
}

// NewClientWithAPI creates a client over an existing API implementation.
func NewClientWithAPI(api API, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		api: api,
		cfg: cfg,
		downloader: manager.NewDownloader(api, func(d *manager.Downloader) {
			d.Concurrency = cfg.Concurrency
			d.PartSize = cfg.PartSize
		}),
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.Concurrency = cfg.Concurrency
			u.PartSize = cfg.PartSize
		}),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// StreamObject returns a reader for an S3 object.
func (c *Client) StreamObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Bytes    int64
	Duration time.Duration
}

// Download fetches an object into dst with parallel ranged GETs.
func (c *Client) Download(ctx context.Context, bucket, key string, dst io.WriterAt) (*TransferResult, error) {
	start := time.Now()
	n, err := c.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	return &TransferResult{Bytes: n, Duration: time.Since(start)}, nil
}

// Upload streams body to an object, switching to multipart upload once the
// body exceeds one part.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader) (*TransferResult, error) {
	start := time.Now()
	counted := &countingReader{r: body}
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   counted,
	})
	if err != nil {
		return nil, fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return &TransferResult{Bytes: counted.n, Duration: time.Since(start)}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
