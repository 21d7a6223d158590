package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/jobsnap/models"
	"golang.org/x/time/rate"
)

// Orchestrator runs schemas through a SiteScraper under a failure policy.
type Orchestrator struct {
	scraper SiteScraper
	opts    Options
	limiter *rate.Limiter
}

// NewOrchestrator creates an Orchestrator for one run.
func NewOrchestrator(sc SiteScraper, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{scraper: sc, opts: opts}
	if opts.Delay > 0 {
		o.limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	return o
}

// siteOutcome is the result of one schema before aggregation.
type siteOutcome struct {
	status  models.SiteStatus
	records []models.JobRecord
	err     error
}

// Run scrapes every schema and returns the aggregated records.
//
// Under fail-fast the first failure cancels the run: schemas not yet
// started are skipped, in-flight ones are canceled, and Run returns that
// failure with no records. Under isolate every schema is attempted and
// Run only fails when ctx is canceled. In both policies a canceled ctx
// discards all records and yields a CANCELED error. The returned Result
// always carries one status per schema.
func (o *Orchestrator) Run(ctx context.Context, schemas []models.SiteSchema) (*Result, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	start := time.Now()
	outcomes := make([]*siteOutcome, len(schemas))

	var (
		wg        sync.WaitGroup
		abortOnce sync.Once
		abortErr  error
	)
	sem := make(chan struct{}, o.opts.Workers)

	for i, schema := range schemas {
		if !o.acquire(runCtx, sem) {
			break
		}
		wg.Add(1)
		go func(idx int, schema models.SiteSchema) {
			defer wg.Done()
			defer func() { <-sem }()

			out := o.scrapeSite(runCtx, idx, schema)
			outcomes[idx] = out

			if out.err != nil && o.opts.Policy == models.PolicyFailFast && runCtx.Err() == nil {
				abortOnce.Do(func() {
					abortErr = out.err
					cancelRun()
				})
			}
		}(i, schema)
	}
	wg.Wait()

	res := &Result{Sites: make([]models.SiteStatus, len(schemas))}
	perSchema := make([][]models.JobRecord, 0, len(schemas))
	for i, out := range outcomes {
		if out == nil {
			res.Sites[i] = models.SiteStatus{
				Index:   i,
				Website: schemas[i].Website,
				URL:     schemas[i].URL,
				Status:  models.SiteSkipped,
			}
			continue
		}
		res.Sites[i] = out.status
		if out.err == nil {
			perSchema = append(perSchema, out.records)
		}
	}

	logAttrs := []any{
		"policy", o.opts.Policy,
		"schemas", len(schemas),
		"failed", res.Failed(),
		"duration_ms", time.Since(start).Milliseconds(),
	}

	switch {
	case ctx.Err() != nil:
		slog.Warn("batch canceled", logAttrs...)
		return res, models.NewScrapeError(models.ErrCodeCanceled, "batch canceled", ctx.Err())
	case abortErr != nil:
		slog.Warn("batch aborted", append(logAttrs, "error", abortErr)...)
		return res, abortErr
	}

	res.Records = Aggregate(perSchema)
	slog.Info("batch finished", append(logAttrs, "records", len(res.Records))...)
	return res, nil
}

// acquire takes a worker slot and waits out the inter-schema delay. It
// returns false once the run is over.
func (o *Orchestrator) acquire(ctx context.Context, sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if ctx.Err() != nil {
		<-sem
		return false
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			<-sem
			return false
		}
	}
	return true
}

// scrapeSite runs one schema with retries and an optional site deadline.
func (o *Orchestrator) scrapeSite(ctx context.Context, idx int, schema models.SiteSchema) *siteOutcome {
	start := time.Now()

	records, attempts, err := retryScrape(ctx, o.opts.MaxAttempts, o.opts.RetryBackoff,
		func(ctx context.Context) ([]models.JobRecord, error) {
			siteCtx := ctx
			if o.opts.SiteTimeout > 0 {
				var cancel context.CancelFunc
				siteCtx, cancel = context.WithTimeout(ctx, o.opts.SiteTimeout)
				defer cancel()
			}
			recs, err := o.scraper.Scrape(siteCtx, schema)
			if err != nil {
				return nil, o.classify(ctx, siteCtx, err)
			}
			return recs, nil
		})

	out := &siteOutcome{
		status: models.SiteStatus{
			Index:      idx,
			Website:    schema.Website,
			URL:        schema.URL,
			Status:     models.SiteOK,
			Records:    len(records),
			Attempts:   attempts,
			DurationMs: time.Since(start).Milliseconds(),
		},
		records: records,
	}
	if err != nil {
		se := models.AsScrapeError(err)
		out.err = se
		out.records = nil
		out.status.Records = 0
		out.status.Status = models.SiteFailed
		if se.Code == models.ErrCodeCanceled {
			out.status.Status = models.SiteCanceled
		}
		out.status.Error = se.ToDetail()
	}
	return out
}

// classify separates a canceled run from an expired site deadline, which
// the session itself can only observe as a done context.
func (o *Orchestrator) classify(runCtx, siteCtx context.Context, err error) error {
	if runCtx.Err() != nil {
		return models.NewScrapeError(models.ErrCodeCanceled, "run canceled", runCtx.Err())
	}
	if errors.Is(siteCtx.Err(), context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeSiteTimeout,
			fmt.Sprintf("site did not finish within %s", o.opts.SiteTimeout), err)
	}
	return models.AsScrapeError(err)
}
