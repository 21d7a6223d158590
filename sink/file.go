package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/jobsnap/models"
)

// FileSink stores snapshots as files under dir/prefix.
type FileSink struct {
	dir    string
	prefix string
}

// NewFileSink creates a FileSink. The directory is created on first write.
func NewFileSink(dir, prefix string) *FileSink {
	return &FileSink{dir: dir, prefix: prefix}
}

func (s *FileSink) root() string {
	return filepath.Join(s.dir, filepath.FromSlash(s.prefix))
}

// Persist writes to a temp file and hard-links it into place, so a
// snapshot is either complete or absent and an existing one is never
// replaced.
func (s *FileSink) Persist(_ context.Context, batch []models.JobRecord, capturedAt time.Time) (string, error) {
	key := Key(s.prefix, capturedAt)

	body, err := Encode(batch)
	if err != nil {
		return "", persistError(key, err)
	}
	if err := os.MkdirAll(s.root(), 0o755); err != nil {
		return "", persistError(key, err)
	}

	tmp, err := os.CreateTemp(s.root(), ".job_data_*.tmp")
	if err != nil {
		return "", persistError(key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", persistError(key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", persistError(key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", persistError(key, err)
	}

	final := filepath.Join(s.root(), Name(capturedAt))
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", persistError(key, ErrExists)
		}
		return "", persistError(key, err)
	}
	return key, nil
}

func (s *FileSink) Latest(ctx context.Context) (string, []byte, error) {
	entries, err := os.ReadDir(s.root())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}

	var (
		latest   string
		latestMs int64 = -1
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ms, ok := ParseName(e.Name()); ok && ms > latestMs {
			latest, latestMs = e.Name(), ms
		}
	}
	if latest == "" {
		return "", nil, ErrNotFound
	}

	body, err := s.Get(ctx, latest)
	if err != nil {
		return "", nil, err
	}
	return filepath.ToSlash(filepath.Join(s.prefix, latest)), body, nil
}

func (s *FileSink) Get(_ context.Context, name string) ([]byte, error) {
	if _, ok := ParseName(name); !ok {
		return nil, ErrNotFound
	}
	body, err := os.ReadFile(filepath.Join(s.root(), name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}
	return body, nil
}

func (s *FileSink) Close() error { return nil }
