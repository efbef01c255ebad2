// Package artifacts publishes resolved diff bases for downstream baseline
// fetch jobs.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/protocol"
)

// S3Config configures the S3 publisher.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads diff base records to AWS S3.
type S3Publisher struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Publisher loads AWS config and prepares a publisher.
func NewS3Publisher(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return newS3Publisher(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

func newS3Publisher(client objectPutter, cfg S3Config, logger *slog.Logger) *S3Publisher {
	if logger == nil {
		logger = observability.NewLogger("artifacts")
	}
	return &S3Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}
}

// Publish uploads base as <prefix>/diff-bases/<operation>.json and returns
// the s3:// URI.
func (p *S3Publisher) Publish(ctx context.Context, operation string, base protocol.DiffBase) (string, error) {
	body, err := json.Marshal(base)
	if err != nil {
		return "", err
	}

	key := p.objectKey("diff-bases", operation+".json")
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: ptr("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", p.bucket, key)
	p.logger.Info("diff base published", "event", "diff_base_published", "operation", operation, "uri", uri)
	return uri, nil
}

// Record implements resolver.Sink.
func (p *S3Publisher) Record(ctx context.Context, operation string, base protocol.DiffBase) error {
	_, err := p.Publish(ctx, operation, base)
	return err
}

func (p *S3Publisher) objectKey(parts ...string) string {
	if p.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{p.prefix}, parts...)...)
}

func ptr[T any](v T) *T {
	return &v
}
