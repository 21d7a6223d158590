package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobsnap/api/handler"
	"github.com/use-agent/jobsnap/api/middleware"
	"github.com/use-agent/jobsnap/cache"
	"github.com/use-agent/jobsnap/config"
	"github.com/use-agent/jobsnap/runner"
	"github.com/use-agent/jobsnap/scraper"
	"github.com/use-agent/jobsnap/sink"
)

// Version is reported by GET /health.
var Version = "dev"

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Scrape:  Auth (if enabled) → RateLimit
//
// Health and snapshot reads stay outside auth.
func NewRouter(cfg *config.Config, rn *runner.Runner, sk sink.Sink, sc *scraper.Scraper, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", handler.Health(sc, rn, Version, startTime))
	r.GET("/fetch", handler.Fetch(sk, cc))
	r.GET("/snapshots/:name", handler.GetSnapshot(sk, cc))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/scrape", handler.Scrape(rn, cfg.Runner.Persist))

	return r
}
