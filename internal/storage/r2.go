// Package storage holds generated media in Cloudflare R2. Objects are
// written through the S3 API and read back by the lipsync and GPU
// workers over the bucket's public URL.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds R2 connection settings.
type Config struct {
	Endpoint  string // https://<account>.r2.cloudflarestorage.com
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string // Public bucket base URL, no trailing slash

	// HTTPClient used for public-URL verification. Defaults to a
	// 30-second-timeout client.
	HTTPClient *http.Client
}

// Client is an R2 storage client.
type Client struct {
	s3        *s3.Client
	bucket    string
	publicURL string
	http      *http.Client
	logger    *slog.Logger
}

// New creates an R2 client from config.
func New(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.Endpoint,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		s3:        client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		http:      httpClient,
		logger:    slog.Default().With("component", "r2_storage"),
	}, nil
}

// Put uploads data and returns the public URL of the object.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	url := c.PublicURL(key)
	c.logger.InfoContext(ctx, "uploaded object",
		"key", key,
		"size", len(data),
		"url", url,
	)

	return url, nil
}

// Exists checks whether an object is present via the S3 API.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// PublicURL returns the public URL for a key.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", c.publicURL, key)
}

// VerifyPublic confirms the object is reachable over its public URL.
// Downstream workers fetch inputs through the CDN, and an upload can
// beat CDN propagation, so retry HEAD with a growing delay.
func (c *Client) VerifyPublic(ctx context.Context, url string) error {
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.http.Do(req)
			if err != nil {
				c.logger.WarnContext(ctx, "public URL check failed", "url", url, "attempt", attempt, "error", err)
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				c.logger.WarnContext(ctx, "public URL not accessible", "url", url, "attempt", attempt, "status", resp.StatusCode)
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("object not publicly accessible after retries: %s: %w", url, err)
	}
	return nil
}
