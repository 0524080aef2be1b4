package storage

import (
	"context"
	"fmt"

	"github.com/dev-tams/sqlbackup/internal/config"
	s3store "github.com/dev-tams/sqlbackup/internal/storage/s3"
)

// MirrorFromConfig builds the configured off-site mirror. It returns nil, nil
// when no mirror is configured.
func MirrorFromConfig(ctx context.Context, cfg config.MirrorConfig) (Mirror, error) {
	if !cfg.S3.Enabled() {
		return nil, nil
	}
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return nil, fmt.Errorf("mirror s3: access_key and secret_key are required (or env expansion failed)")
	}

	s, err := s3store.New(ctx, s3store.Options{
		Name:      "s3",
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Prefix:    cfg.S3.Prefix,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Endpoint:  cfg.S3.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("mirror s3: %w", err)
	}
	return s, nil
}

