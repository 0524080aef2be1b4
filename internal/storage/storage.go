package storage

import (
	"context"
	"io"
)

// Mirror is an off-site copy target for finished artifacts. Upload returns
// the location the artifact was stored at (path, s3://..., etc).
type Mirror interface {
	Name() string
	Upload(ctx context.Context, key string, body io.ReadSeeker, size int64) (string, error)
}
