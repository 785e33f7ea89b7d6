package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/config"
)

// ClipStore abstracts the durable object store that speaker clips and
// original recordings are published to. Save must have overwrite semantics:
// the publish path retries as one unit and may re-put the same key.
type ClipStore interface {
	// Save stores data under key, replacing any existing object.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a durable locator for the stored object.
	URL(ctx context.Context, key string) (string, error)

	// Type returns "local" or "s3".
	Type() string
}

// New creates a ClipStore based on config: S3 when a bucket is configured,
// local filesystem otherwise. S3 credentials and bucket access are verified
// at startup.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (ClipStore, error) {
	if !cfg.Enabled() {
		log.Info().Str("dir", audioDir).Msg("using local clip store")
		return NewLocalStore(audioDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}
