// Package runner wires one batch end to end: load schemas, scrape them,
// aggregate the records, persist a snapshot and announce the outcome.
package runner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/jobsnap/cache"
	"github.com/use-agent/jobsnap/engine"
	"github.com/use-agent/jobsnap/models"
	"github.com/use-agent/jobsnap/sink"
	"github.com/use-agent/jobsnap/webhook"
)

// SchemaLoader yields the schemas of one batch.
type SchemaLoader interface {
	Load(ctx context.Context) ([]models.SiteSchema, error)
}

// Notifier receives run events. Delivery must not block.
type Notifier interface {
	Notify(event *webhook.Event)
}

// Options select the behavior of one triggered run.
type Options struct {
	// Persist stores the batch as a snapshot when true.
	Persist bool

	// Policy overrides the configured failure policy when non-empty.
	Policy string
}

// Runner executes batches one at a time.
type Runner struct {
	loader   SchemaLoader
	scraper  engine.SiteScraper
	sink     sink.Sink
	cache    *cache.Cache
	notifier Notifier
	engine   engine.Options

	slot    chan struct{}
	lastRun atomic.Pointer[models.RunReport]
	now     func() time.Time
}

// New creates a Runner. cache and notifier may be nil.
func New(loader SchemaLoader, sc engine.SiteScraper, sk sink.Sink, cc *cache.Cache, notifier Notifier, opts engine.Options) *Runner {
	return &Runner{
		loader:   loader,
		scraper:  sc,
		sink:     sk,
		cache:    cc,
		notifier: notifier,
		engine:   opts,
		slot:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Run executes one batch. A concurrent call waits for the running batch
// to finish. The returned report is non-nil even on failure; its Records
// are empty unless the batch succeeded.
//
// Nothing is persisted when the schemas fail to load, when the batch fails
// under fail-fast, or when ctx is canceled.
func (r *Runner) Run(ctx context.Context, opts Options) (*models.RunReport, error) {
	engineOpts := r.engine
	if opts.Policy != "" {
		engineOpts.Policy = opts.Policy
	}
	if engineOpts.Policy == "" {
		engineOpts.Policy = models.PolicyIsolate
	}

	report := &models.RunReport{
		RunID:     uuid.NewString(),
		Policy:    engineOpts.Policy,
		StartedAt: r.now(),
		Sites:     []models.SiteStatus{},
	}

	if !models.ValidPolicy(engineOpts.Policy) {
		return r.fail(report, models.NewScrapeError(models.ErrCodeInvalidInput,
			"unknown policy "+engineOpts.Policy, nil))
	}

	// ── 1. One batch at a time ────────────────────────────────────────
	select {
	case r.slot <- struct{}{}:
		defer func() { <-r.slot }()
	case <-ctx.Done():
		return r.fail(report, models.NewScrapeError(models.ErrCodeCanceled, "waiting for running batch", ctx.Err()))
	}

	slog.Info("run started", "run_id", report.RunID, "policy", report.Policy, "persist", opts.Persist)

	// ── 2. Load schemas ───────────────────────────────────────────────
	schemas, err := r.loader.Load(ctx)
	if err != nil {
		return r.fail(report, err)
	}

	// ── 3. Scrape + aggregate ─────────────────────────────────────────
	res, err := engine.NewOrchestrator(r.scraper, engineOpts).Run(ctx, schemas)
	if res != nil {
		report.Sites = res.Sites
	}
	if err != nil {
		return r.fail(report, err)
	}
	report.Records = res.Records

	// ── 4. Persist once, after every schema was attempted ─────────────
	if opts.Persist {
		capturedAt := r.now()
		key, err := r.sink.Persist(ctx, res.Records, capturedAt)
		if err != nil {
			return r.fail(report, err)
		}
		report.SnapshotKey = key
		r.cacheLatest(key, res.Records, capturedAt)
	}

	report.FinishedAt = r.now()
	r.lastRun.Store(report)

	slog.Info("run finished",
		"run_id", report.RunID,
		"records", len(report.Records),
		"failed_sites", report.Failed(),
		"snapshot", report.SnapshotKey,
	)

	// ── 5. Notify ─────────────────────────────────────────────────────
	eventType := webhook.EventRunCompleted
	if report.SnapshotKey != "" {
		eventType = webhook.EventSnapshotPersisted
	}
	r.notify(eventType, report)

	return report, nil
}

// cacheLatest publishes a freshly persisted snapshot as the latest one.
func (r *Runner) cacheLatest(key string, records []models.JobRecord, capturedAt time.Time) {
	if r.cache == nil {
		return
	}
	body, err := sink.Encode(records)
	if err != nil {
		slog.Warn("could not cache latest snapshot", "key", key, "error", err)
		r.cache.Delete(cache.LatestKey)
		return
	}
	r.cache.SetLatest(&cache.Snapshot{Key: key, Body: body, CapturedMs: capturedAt.UnixMilli()})
}

// LastRun returns the report of the most recent finished run, or nil.
func (r *Runner) LastRun() *models.RunReport {
	return r.lastRun.Load()
}

func (r *Runner) fail(report *models.RunReport, err error) (*models.RunReport, error) {
	se := models.AsScrapeError(err)
	report.Records = nil
	report.Error = se.ToDetail()
	report.FinishedAt = r.now()
	r.lastRun.Store(report)

	slog.Error("run failed",
		"run_id", report.RunID,
		"code", se.Code,
		"error", err,
	)
	r.notify(webhook.EventRunFailed, report)
	return report, se
}

func (r *Runner) notify(eventType string, report *models.RunReport) {
	if r.notifier == nil {
		return
	}
	data := map[string]any{
		"policy":  report.Policy,
		"records": len(report.Records),
		"sites":   report.Sites,
	}
	if report.SnapshotKey != "" {
		data["key"] = report.SnapshotKey
	}
	if report.Error != nil {
		data["error"] = report.Error
	}
	r.notifier.Notify(&webhook.Event{
		Type:      eventType,
		RunID:     report.RunID,
		Timestamp: r.now().Unix(),
		Data:      data,
	})
}
