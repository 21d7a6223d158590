// Package scraper runs one site schema through a dedicated headless browser.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/jobsnap/config"
	"github.com/use-agent/jobsnap/models"
	"github.com/ysmood/gson"
)

// Scraper launches a fresh browser for every schema and tears it down
// afterwards; no browser state is shared between schemas. It is safe for
// concurrent use.
type Scraper struct {
	browserCfg  config.BrowserConfig
	scraperCfg  config.ScraperConfig
	maxSessions int
	active      atomic.Int32
	total       atomic.Int64
}

// NewScraper creates a Scraper. maxSessions is only reported in Stats.
func NewScraper(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, maxSessions int) *Scraper {
	return &Scraper{
		browserCfg:  browserCfg,
		scraperCfg:  scraperCfg,
		maxSessions: maxSessions,
	}
}

// Scrape extracts the records of one schema. The returned error is always
// a *models.ScrapeError.
func (s *Scraper) Scrape(ctx context.Context, schema models.SiteSchema) ([]models.JobRecord, error) {
	s.active.Add(1)
	s.total.Add(1)
	defer s.active.Add(-1)

	start := time.Now()
	sess := newSession(schema, s.scraperCfg.ActionTimeout)
	records, err := sess.run(ctx, s.open)
	if err != nil {
		slog.Warn("scrape session failed",
			"website", schema.Website,
			"url", schema.URL,
			"code", models.CodeOf(err),
			"states", sess.machine.path(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	slog.Info("scrape session complete",
		"website", schema.Website,
		"records", len(records),
		"states", sess.machine.path(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

// Stats returns a snapshot of session activity.
func (s *Scraper) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    s.maxSessions,
		ActiveSessions: int(s.active.Load()),
		TotalSessions:  s.total.Load(),
	}
}

// open launches Chromium, connects to it and prepares a single page.
func (s *Scraper) open(ctx context.Context) (driver, error) {
	l := launcher.New().
		Context(ctx).
		Headless(s.browserCfg.Headless).
		NoSandbox(s.browserCfg.NoSandbox)

	if s.browserCfg.BrowserBin != "" {
		l = l.Bin(s.browserCfg.BrowserBin)
	}
	if s.browserCfg.Proxy != "" {
		l = l.Proxy(s.browserCfg.Proxy)
	}
	if s.browserCfg.Stealth {
		applyStealthFlags(l)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	d := &rodDriver{launcher: l, browser: browser}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		d.Close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}
	d.page = page

	if s.browserCfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if s.browserCfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.browserCfg.UserAgent}); err != nil {
			slog.Warn("user agent override failed", "error", err)
		}
	}
	d.router = blockResources(page, s.scraperCfg.BlockedResourceTypes)
	d.navTimeout = s.scraperCfg.NavigationTimeout

	return d, nil
}

// applyStealthFlags removes the automation markers Chromium exposes by default.
func applyStealthFlags(l *launcher.Launcher) {
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
}

// rodDriver is a driver backed by one launcher, browser and page.
type rodDriver struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
}

func (d *rodDriver) Navigate(ctx context.Context, target string) error {
	if d.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.navTimeout)
		defer cancel()
	}
	p := d.page.Context(ctx)

	if headers, err := navigationHeaders(target); err != nil {
		slog.Warn("skipping navigation headers", "url", target, "error", err)
	} else if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}).Call(p); err != nil {
		slog.Warn("setting navigation headers failed", "url", target, "error", err)
	}

	// The lifecycle listener must exist before Navigate or the event is missed.
	waitLoaded := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(target); err != nil {
		return err
	}
	waitLoaded()
	return ctx.Err()
}

func (d *rodDriver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *rodDriver) WaitList(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	_, err := d.page.Context(ctx).Element(selector)
	return err
}

func (d *rodDriver) Snapshot(ctx context.Context) (string, string, error) {
	p := d.page.Context(ctx)
	html, err := p.HTML()
	if err != nil {
		return "", "", err
	}
	var pageURL string
	if info, err := p.Info(); err == nil {
		pageURL = info.URL
	}
	return html, pageURL, nil
}

// Close runs on every exit path, including after the caller's context
// was canceled, so nothing here may depend on it.
func (d *rodDriver) Close() {
	if d.router != nil {
		_ = d.router.Stop()
	}
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		_ = d.browser.Close()
	}
	d.launcher.Kill()
	d.launcher.Cleanup()
}

// navigationHeaders returns the extra headers sent with the entry navigation:
// a browser-like Accept-Language and a search-engine Referer for the host.
func navigationHeaders(target string) (map[string]string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("no host in %q", target)
	}
	return map[string]string{
		"Accept-Language": "en-US,en;q=0.9",
		"Referer":         "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
	}, nil
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
