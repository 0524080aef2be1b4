package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/storage/prunable"
)

const tmpSuffix = ".tmp"

// Storage is the artifact store over a single flat backup directory. It is the
// only component that enumerates or deletes files there.
type Storage struct {
	name string
	base string
	log  *zap.Logger
}

func New(name, basePath string, log *zap.Logger) *Storage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{name: name, base: basePath, log: log}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) BasePath() string { return s.base }

// EnsureDir creates the backup directory tree if it is absent.
func (s *Storage) EnsureDir() error {
	if err := os.MkdirAll(s.base, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.base, err)
	}
	return nil
}

// OpenWriter returns a writer for a new artifact. Data lands in a temp file
// that only becomes visible under key once Close succeeds.
func (s *Storage) OpenWriter(_ context.Context, key string) (*Writer, string, error) {
	if key != filepath.Base(key) {
		return nil, "", fmt.Errorf("artifact name %q must not contain a directory", key)
	}
	finalPath := filepath.Join(s.base, key)

	if _, err := os.Lstat(finalPath); err == nil {
		return nil, "", fmt.Errorf("artifact %s already exists", key)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("stat %s: %w", key, err)
	}

	tmpPath := finalPath + tmpSuffix
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, "", fmt.Errorf("create temp: %w", err)
	}

	return &Writer{f: f, tmpPath: tmpPath, finalPath: finalPath}, finalPath, nil
}

type Writer struct {
	f         *os.File
	tmpPath   string
	finalPath string
	closed    bool
}

func (w *Writer) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *Writer) Location() string { return w.finalPath }

// Close flushes the temp file and renames it into place.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.tmpPath)
		return err
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		_ = os.Remove(w.tmpPath)
		return err
	}
	return nil
}

// Abort discards whatever was written. Safe to call after Close.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.f.Close()
	if err := os.Remove(w.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove temp: %w", err)
	}
	return nil
}

// List returns the artifacts in the directory, newest modification first.
// Files without the artifact suffix (including in-progress temp files) are
// ignored. A directory that does not exist yet holds no artifacts.
func (s *Storage) List(_ context.Context) ([]prunable.Artifact, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []prunable.Artifact{}, nil
		}
		return nil, fmt.Errorf("list dir: %w", err)
	}

	out := make([]prunable.Artifact, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), prunable.ArtifactExt) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and stat
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}

		out = append(out, prunable.Artifact{
			Name:    e.Name(),
			Path:    filepath.Join(s.base, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// newest first; name breaks ties so the order is stable
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Stat describes a single artifact by name.
func (s *Storage) Stat(_ context.Context, name string) (prunable.Artifact, error) {
	p := filepath.Join(s.base, name)
	info, err := os.Stat(p)
	if err != nil {
		return prunable.Artifact{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return prunable.Artifact{
		Name:    name,
		Path:    p,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes one artifact. An artifact that is already gone is not an error.
func (s *Storage) Delete(_ context.Context, name string) error {
	p := filepath.Join(s.base, filepath.Base(name))
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	s.log.Debug("artifact removed", zap.String("storage", s.name), zap.String("artifact", name))
	return nil
}
