// Package engine runs a batch of site schemas and aggregates their records.
package engine

import (
	"context"
	"time"

	"github.com/use-agent/jobsnap/models"
)

// SiteScraper extracts the records of a single schema. Implementations must
// release every resource they acquired before returning, and must return
// no records together with an error.
type SiteScraper interface {
	Scrape(ctx context.Context, schema models.SiteSchema) ([]models.JobRecord, error)
}

// Options tune one orchestrator run.
type Options struct {
	// Policy is models.PolicyFailFast or models.PolicyIsolate.
	Policy string

	// Workers bounds concurrent sessions. 1 runs schemas strictly in order.
	Workers int

	// Delay is the minimum spacing between successive schema starts.
	Delay time.Duration

	// MaxAttempts is the total number of attempts for retryable failures.
	MaxAttempts int

	// RetryBackoff is the delay before the first retry, doubled per retry.
	RetryBackoff time.Duration

	// SiteTimeout bounds one schema end to end. 0 disables it.
	SiteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = models.PolicyIsolate
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	return o
}

// Result is the outcome of a run: the aggregated records of every
// successful schema plus one status per schema, both in schema order.
type Result struct {
	Records []models.JobRecord
	Sites   []models.SiteStatus
}

// Failed returns the number of schemas that did not succeed.
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Sites {
		if s.Status != models.SiteOK {
			n++
		}
	}
	return n
}
