package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ndewijer/strategy-index-backend/internal/model"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

// Hydrator is the part of service.HydrationService a job needs.
type Hydrator interface {
	Hydrate(ctx context.Context, opts service.HydrateOptions) (model.HydrationReport, error)
}

// HydrationJob refreshes every stale cache record.
type HydrationJob struct {
	hydrator Hydrator
	opts     service.HydrateOptions
	log      zerolog.Logger
}

// NewHydrationJob creates a job running hydrator with opts.
func NewHydrationJob(hydrator Hydrator, opts service.HydrateOptions, log zerolog.Logger) *HydrationJob {
	return &HydrationJob{hydrator: hydrator, opts: opts, log: log}
}

// Name implements Job.
func (j *HydrationJob) Name() string {
	return "market_cache_hydration"
}

// Run implements Job. Per-symbol failures are part of the report and do not
// fail the job; only an aborted run does.
func (j *HydrationJob) Run(ctx context.Context) error {
	report, err := j.hydrator.Hydrate(ctx, j.opts)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		j.log.Warn().
			Str("run_id", report.RunID).
			Int("failed", report.Failed).
			Msg("hydration finished with failures")
	}
	return nil
}
