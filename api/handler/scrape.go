package handler

import (
	"context"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobsnap/models"
	"github.com/use-agent/jobsnap/runner"
)

// Trigger runs one batch.
type Trigger interface {
	Run(ctx context.Context, opts runner.Options) (*models.RunReport, error)
}

// Scrape returns a handler for GET /scrape.
//
// Query parameters:
//
//	persist  bool, defaults to defaultPersist
//	policy   "fail-fast" or "isolate", defaults to the configured policy
//
// Without persistence the body is the raw JSON record array. With it, the
// body reports the snapshot key. Every failure is a 500 with a plain-text
// "Error: <description>" body.
func Scrape(tr Trigger, defaultPersist bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := runner.Options{
			Persist: defaultPersist,
			Policy:  c.Query("policy"),
		}
		if v := c.Query("persist"); v != "" {
			persist, err := strconv.ParseBool(v)
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "persist must be a boolean", err))
				return
			}
			opts.Persist = persist
		}

		report, err := tr.Run(c.Request.Context(), opts)
		if err != nil {
			respondError(c, err)
			return
		}

		if !opts.Persist {
			records := report.Records
			if records == nil {
				records = []models.JobRecord{}
			}
			c.JSON(http.StatusOK, records)
			return
		}

		c.JSON(http.StatusOK, models.PersistResponse{
			Success: true,
			RunID:   report.RunID,
			Key:     report.SnapshotKey,
			Message: path.Base(report.SnapshotKey) + " created successfully",
			Records: len(report.Records),
			Sites:   report.Sites,
		})
	}
}

// respondError writes the trigger's uniform failure response.
func respondError(c *gin.Context, err error) {
	c.String(http.StatusInternalServerError, "Error: %s", err.Error())
}
