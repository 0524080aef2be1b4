package prunable

import (
	"context"
	"time"
)

// ArtifactExt is the suffix every backup artifact carries: a plain SQL dump
// compressed with gzip.
const ArtifactExt = ".sql.gz"

// Artifact is one compressed dump in a store. Name is its identity.
type Artifact struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

type Prunable interface {
	// List returns artifacts newest first.
	List(ctx context.Context) ([]Artifact, error)
	Delete(ctx context.Context, name string) error
	BasePath() string
}
