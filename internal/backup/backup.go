package backup

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/storage/prunable"
)

// UnknownSize marks an artifact whose size could not be measured.
const UnknownSize int64 = -1

// Dumper starts a dump and returns its uncompressed output. Close on the
// returned stream waits for the dump to finish and reports its failure, if any.
type Dumper interface {
	Dump(ctx context.Context, conn config.DatabaseConfig) (io.ReadCloser, error)
}

// DumpError is a failed dump. Stderr carries whatever the tool printed.
type DumpError struct {
	Database string
	Stderr   string
	Err      error
}

func (e *DumpError) Error() string {
	msg := fmt.Sprintf("dump of %s failed: %v", e.Database, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *DumpError) Unwrap() error { return e.Err }

const nameLayout = "2006-01-02_15-04-05"

// ArtifactName returns <database>_<YYYY-MM-DD>_<HH-MM-SS>.sql.gz for t.
func ArtifactName(database string, t time.Time) string {
	return database + "_" + t.Format(nameLayout) + prunable.ArtifactExt
}
