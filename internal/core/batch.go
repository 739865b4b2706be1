package core

import (
	"context"
	"log/slog"
	"time"
)

// Batch runs multiple scrape jobs strictly sequentially with an inter-job
// delay. Sequential execution is deliberate: it keeps request pressure per
// site low and holds at most one browser process at a time.
type Batch struct {
	runner   *Runner
	jobDelay time.Duration
}

type BatchResult struct {
	Config RunConfig
	Result *RunResult
	Err    error
}

func NewBatch(runner *Runner, jobDelay time.Duration) *Batch {
	if jobDelay <= 0 {
		jobDelay = 10 * time.Second
	}
	return &Batch{runner: runner, jobDelay: jobDelay}
}

func (b *Batch) Run(ctx context.Context, jobs []RunConfig) []BatchResult {
	results := make([]BatchResult, 0, len(jobs))
	for i, cfg := range jobs {
		select {
		case <-ctx.Done():
			return results
		default:
		}

		// Long batches tolerate page failures; the whole batch should not die
		// because one site had a bad page.
		if !cfg.ContinueOnError {
			cfg.ContinueOnError = true
		}

		res, err := b.runner.Run(ctx, cfg)
		if err != nil {
			slog.Warn("batch job failed", "site", cfg.Site, "error", err)
		}
		results = append(results, BatchResult{Config: cfg, Result: res, Err: err})

		if i < len(jobs)-1 {
			sleepWithContext(ctx, b.jobDelay)
		}
	}
	return results
}
