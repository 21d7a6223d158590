// Package sink persists extraction batches as immutable JSON snapshots.
//
// A snapshot is the JSON array of one batch's records, stored under
// "<prefix>/job_data_<epoch ms>.json". Snapshots are never overwritten.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"time"

	"github.com/use-agent/jobsnap/config"
	"github.com/use-agent/jobsnap/models"
)

var (
	// ErrNotFound is returned when no snapshot matches.
	ErrNotFound = errors.New("snapshot not found")

	// ErrExists is returned when a snapshot key is already taken.
	ErrExists = errors.New("snapshot already exists")
)

var snapshotName = regexp.MustCompile(`^job_data_(\d+)\.json$`)

// Sink stores and retrieves snapshots.
type Sink interface {
	// Persist stores batch as a new snapshot and returns its key.
	Persist(ctx context.Context, batch []models.JobRecord, capturedAt time.Time) (string, error)

	// Latest returns the key and body of the most recent snapshot.
	Latest(ctx context.Context) (string, []byte, error)

	// Get returns the body of the snapshot with the given file name.
	Get(ctx context.Context, name string) ([]byte, error)

	Close() error
}

// Name returns the snapshot file name for a capture instant.
func Name(capturedAt time.Time) string {
	return fmt.Sprintf("job_data_%d.json", capturedAt.UnixMilli())
}

// Key returns the full snapshot key under prefix.
func Key(prefix string, capturedAt time.Time) string {
	return path.Join(prefix, Name(capturedAt))
}

// ParseName returns the capture instant encoded in a snapshot file name.
func ParseName(name string) (int64, bool) {
	m := snapshotName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// Encode serializes a batch as a JSON array. An empty batch is "[]".
func Encode(batch []models.JobRecord) ([]byte, error) {
	if batch == nil {
		batch = []models.JobRecord{}
	}
	return json.Marshal(batch)
}

// Decode parses a snapshot body. Decode(Encode(b)) reproduces b.
func Decode(data []byte) ([]models.JobRecord, error) {
	var batch []models.JobRecord
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if batch == nil {
		batch = []models.JobRecord{}
	}
	return batch, nil
}

// New creates the sink selected by cfg.Sink.
func New(ctx context.Context, cfg config.OutputConfig) (Sink, error) {
	switch cfg.Sink {
	case "file", "":
		return NewFileSink(cfg.Dir, cfg.Prefix), nil
	case "sqlite":
		return NewSQLiteSink(ctx, cfg.SQLitePath, cfg.Prefix)
	case "redis":
		return NewRedisSink(ctx, cfg.RedisAddr, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// persistError wraps a storage failure as PERSIST_FAILED.
func persistError(key string, err error) error {
	return models.NewScrapeError(models.ErrCodePersist, "failed to persist "+key, err)
}
