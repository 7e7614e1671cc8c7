// Package objectstore uploads public flex card snapshots to S3-compatible
// storage (AWS S3 or Cloudflare R2) so the share page can be served from a CDN.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/pkg/circuitbreaker"
	"github.com/afterhours/nightlife-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds bucket settings.
type Config struct {
	Bucket string
	Region string

	// Endpoint overrides the S3 endpoint, e.g. an R2 account URL.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string

	// PublicBaseURL prefixes returned object URLs, usually a CDN.
	PublicBaseURL string

	// Prefix is prepended to every object key.
	Prefix string

	UsePathStyle bool
	CacheControl string
	Timeout      time.Duration
}

// Validate checks required fields.
func (c Config) Validate() error {
	var errs []string
	if c.Bucket == "" {
		errs = append(errs, "bucket is required")
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, "public base url is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		errs = append(errs, "access key id and secret must be set together")
	}
	if len(errs) > 0 {
		return fmt.Errorf("objectstore: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// putter is the part of *s3.Client the store uses.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store implements the card exporter port.
type Store struct {
	client  putter
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	logger  *slog.Logger
}

// New builds an S3 client from cfg. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newStore(client, cfg, logger), nil
}

func newStore(client putter, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=300"
	}
	logger = logger.With("component", "objectstore", "bucket", cfg.Bucket)
	return &Store{
		client: client,
		cfg:    cfg,
		breaker: circuitbreaker.ObjectStoreBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.StorageRetrier(),
		logger:  logger,
	}
}

// ExportCard uploads the card JSON and returns its public URL.
func (s *Store) ExportCard(ctx context.Context, card flexcard.PublicView) (string, error) {
	if card.ShareCode == "" {
		return "", shared.NewDomainError("objectstore", "ExportCard", shared.ErrEmptyValue, "share code is required")
	}

	body, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("objectstore: encode card: %w", err)
	}
	key := s.Key(card.ShareCode)

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()

			_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:       aws.String(s.cfg.Bucket),
				Key:          aws.String(key),
				Body:         bytes.NewReader(body),
				ContentType:  aws.String("application/json"),
				CacheControl: aws.String(s.cfg.CacheControl),
			})
			if err != nil {
				return retry.Retryable(err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return "", shared.WrapError("objectstore", "ExportCard", shared.ErrServiceUnavailable, "object store circuit open", err)
		}
		return "", shared.WrapError("objectstore", "ExportCard", shared.ErrExternalService, "upload failed", err)
	}

	url := s.URL(key)
	s.logger.Debug("flex card exported", "share_code", card.ShareCode, "key", key)
	return url, nil
}

// Key returns the object key of a card.
func (s *Store) Key(shareCode string) string {
	key := "flex/" + shareCode + ".json"
	if p := strings.Trim(s.cfg.Prefix, "/"); p != "" {
		key = p + "/" + key
	}
	return key
}

// URL returns the public URL of an object key.
func (s *Store) URL(key string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
}
