package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/jobsnap/extractor"
	"github.com/use-agent/jobsnap/models"
)

// driver is the browser surface a session needs. rodDriver implements it
// against a real Chromium; tests substitute a fake.
type driver interface {
	// Navigate loads target and returns once DOMContentLoaded fired.
	Navigate(ctx context.Context, target string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// WaitList blocks until selector is present or timeout expires.
	WaitList(ctx context.Context, selector string, timeout time.Duration) error

	// Snapshot returns the rendered DOM and the current page URL.
	Snapshot(ctx context.Context) (html, pageURL string, err error)

	// Close releases the page, browser and browser process.
	Close()
}

// opener launches a fresh driver for one session.
type opener func(ctx context.Context) (driver, error)

// session drives one schema through the page lifecycle:
//
//	init → navigate_pending → content_loaded → [action_pending] →
//	list_present → extracting → closed
//
// Any step may end in failed; the driver is released either way.
type session struct {
	schema        models.SiteSchema
	actionTimeout time.Duration
	machine       *machine
	now           func() time.Time
}

func newSession(schema models.SiteSchema, actionTimeout time.Duration) *session {
	return &session{
		schema:        schema,
		actionTimeout: actionTimeout,
		machine:       newMachine(),
		now:           time.Now,
	}
}

func (s *session) run(ctx context.Context, open opener) (records []models.JobRecord, err error) {
	defer func() {
		if err != nil {
			s.machine.fail()
		}
		if closeErr := s.machine.to(StateClosed); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// ── 1. Launch ─────────────────────────────────────────────────────
	d, err := open(ctx)
	if err != nil {
		return nil, categorizeError(ctx, err, models.ErrCodeBrowserCrash, "failed to start browser")
	}
	defer d.Close()
	if err := s.machine.to(StateNavigatePending); err != nil {
		return nil, err
	}

	// ── 2. Navigate until DOMContentLoaded ────────────────────────────
	if err := d.Navigate(ctx, s.schema.URL); err != nil {
		return nil, categorizeError(ctx, err, models.ErrCodeNavigation, "navigation to "+s.schema.URL+" failed")
	}
	if err := s.machine.to(StateContentLoaded); err != nil {
		return nil, err
	}

	// ── 3. Optional pre-extraction click ──────────────────────────────
	if s.schema.Action != nil && s.schema.Action.ClickBefore != "" {
		if err := s.machine.to(StateActionPending); err != nil {
			return nil, err
		}
		if err := clickBefore(ctx, d, s.schema.Action.ClickBefore, s.actionTimeout); err != nil {
			return nil, err
		}
	}

	// ── 4. Wait for the list container ────────────────────────────────
	if err := d.WaitList(ctx, s.schema.ListSelector, s.schema.Timeout); err != nil {
		return nil, categorizeError(ctx, err, models.ErrCodeSelectorWait,
			fmt.Sprintf("list %q did not appear within %s", s.schema.ListSelector, s.schema.Timeout))
	}
	if err := s.machine.to(StateListPresent); err != nil {
		return nil, err
	}

	// ── 5. Snapshot + extract ─────────────────────────────────────────
	if err := s.machine.to(StateExtracting); err != nil {
		return nil, err
	}
	html, pageURL, err := d.Snapshot(ctx)
	if err != nil {
		return nil, categorizeError(ctx, err, models.ErrCodeExtraction, "failed to snapshot page")
	}
	capturedAt := s.now()
	if pageURL == "" {
		pageURL = s.schema.URL
	}

	records, err = extractor.ExtractPage(html, pageURL, s.schema.ListSelector, s.schema.Fields, s.schema.Website, capturedAt)
	if err != nil {
		return nil, err
	}

	slog.Debug("session extracted records",
		"website", s.schema.Website,
		"records", len(records),
	)
	return records, nil
}

// categorizeError wraps a raw driver error into a ScrapeError. When the
// caller's context is already done the failure is a cancellation, whatever
// step it surfaced in.
func categorizeError(ctx context.Context, err error, code, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.NewScrapeError(models.ErrCodeCanceled, msg, ctxErr)
	}
	return models.NewScrapeError(code, msg, err)
}
