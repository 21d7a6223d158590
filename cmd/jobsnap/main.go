package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/jobsnap/api"
	"github.com/use-agent/jobsnap/cache"
	"github.com/use-agent/jobsnap/config"
	"github.com/use-agent/jobsnap/engine"
	"github.com/use-agent/jobsnap/runner"
	"github.com/use-agent/jobsnap/schema"
	"github.com/use-agent/jobsnap/scraper"
	"github.com/use-agent/jobsnap/sink"
	"github.com/use-agent/jobsnap/webhook"
)

func main() {
	once := flag.Bool("once", false, "run a single batch, print a summary and exit")
	flag.Parse()

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("jobsnap starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"schemaSource", cfg.Schema.Source,
		"sink", cfg.Output.Sink,
		"workers", cfg.Runner.Workers,
		"policy", cfg.Runner.Policy,
	)

	// ── 3. Schema store and scraper ─────────────────────────────────
	store := schema.NewStore(schema.NewSource(cfg.Schema.Source), cfg.Schema.Format, cfg.Scraper.SelectorTimeout)
	sc := scraper.NewScraper(cfg.Browser, cfg.Scraper, cfg.Runner.Workers)

	// ── 4. Snapshot sink, cache and webhook ─────────────────────────
	sk, err := sink.New(context.Background(), cfg.Output)
	if err != nil {
		slog.Error("failed to initialise sink", "sink", cfg.Output.Sink, "error", err)
		os.Exit(1)
	}
	defer sk.Close()

	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)

	// ── 5. Runner ───────────────────────────────────────────────────
	rn := runner.New(store, sc, sk, cc, notifier, engine.Options{
		Policy:       cfg.Runner.Policy,
		Workers:      cfg.Runner.Workers,
		Delay:        cfg.Runner.SchemaDelay,
		MaxAttempts:  cfg.Runner.MaxAttempts,
		RetryBackoff: cfg.Runner.RetryBackoff,
		SiteTimeout:  cfg.Runner.SiteTimeout,
	})

	if *once {
		code := runOnce(rn, cfg.Runner.Persist)
		cc.Close()
		sk.Close()
		os.Exit(code)
	}

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(cfg, rn, sk, sc, cc, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv, cancelRequests := newServer(addr, router)

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Cancel in-flight runs, then give them time to close their browsers.
	cancelRequests()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("jobsnap stopped")
}

// newServer returns an HTTP server whose request contexts all derive from
// one base context, and the func that cancels it.
func newServer(addr string, handler http.Handler) (*http.Server, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	return &http.Server{
		Addr:        addr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return base },
	}, cancel
}

// runOnce executes one batch outside the HTTP server and returns the exit code.
func runOnce(rn *runner.Runner, persist bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := rn.Run(ctx, runner.Options{Persist: persist})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, s := range report.Sites {
		line := fmt.Sprintf("%-20s %-9s %4d jobs", s.Website, s.Status, s.Records)
		if s.Error != nil {
			line += fmt.Sprintf("  [%s] %s", s.Error.Code, s.Error.Message)
		}
		fmt.Println(line)
	}
	if report.SnapshotKey != "" {
		fmt.Printf("%d jobs written to %s\n", len(report.Records), report.SnapshotKey)
	} else {
		fmt.Printf("%d jobs scraped\n", len(report.Records))
	}
	return 0
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
