package handler

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobsnap/cache"
	"github.com/use-agent/jobsnap/models"
	"github.com/use-agent/jobsnap/sink"
)

// SnapshotReader reads persisted snapshots.
type SnapshotReader interface {
	Latest(ctx context.Context) (string, []byte, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// Fetch returns a handler for GET /fetch: the most recent snapshot as a
// raw JSON array, served from cc when possible. cc may be nil.
func Fetch(sr SnapshotReader, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cc != nil {
			if snap, ok := cc.Get(cache.LatestKey); ok {
				writeSnapshot(c, snap, "hit")
				return
			}
		}

		key, body, err := sr.Latest(c.Request.Context())
		if err != nil {
			snapshotError(c, err)
			return
		}

		snap := &cache.Snapshot{Key: key, Body: body}
		if ms, ok := sink.ParseName(path.Base(key)); ok {
			snap.CapturedMs = ms
		}
		if cc != nil {
			// A persist may have landed since Latest; never replace it with an older one.
			cc.SetLatest(snap)
		}
		writeSnapshot(c, snap, "miss")
	}
}

// GetSnapshot returns a handler for GET /snapshots/:name.
func GetSnapshot(sr SnapshotReader, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		ms, ok := sink.ParseName(name)
		if !ok {
			snapshotError(c, sink.ErrNotFound)
			return
		}
		if cc != nil {
			if snap, ok := cc.Get(name); ok {
				writeSnapshot(c, snap, "hit")
				return
			}
		}

		body, err := sr.Get(c.Request.Context(), name)
		if err != nil {
			snapshotError(c, err)
			return
		}

		// Snapshots are immutable, so a name never goes stale.
		snap := &cache.Snapshot{Key: name, Body: body, CapturedMs: ms}
		if cc != nil {
			cc.Set(name, snap)
		}
		writeSnapshot(c, snap, "miss")
	}
}

func writeSnapshot(c *gin.Context, snap *cache.Snapshot, cacheStatus string) {
	c.Header("X-Snapshot-Key", snap.Key)
	c.Header("X-Cache", cacheStatus)
	c.Data(http.StatusOK, "application/json; charset=utf-8", snap.Body)
}

func snapshotError(c *gin.Context, err error) {
	if errors.Is(err, sink.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "no snapshot found"},
		})
		return
	}
	respondError(c, err)
}
