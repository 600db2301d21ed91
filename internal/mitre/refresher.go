package mitre

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Refresher periodically calls Fetcher.Refresh on a cron schedule, grounded
// on the reference orchestrator's Scheduler (cron.New with seconds
// precision, start/stop around a background context).
type Refresher struct {
	cron    *cron.Cron
	fetcher *Fetcher

	runs   metric.Int64Counter
	fails  metric.Int64Counter
	tracer trace.Tracer
}

// NewRefresher builds a Refresher that calls fetcher.Refresh every interval,
// using cron's "@every" descriptor rather than a 5-field expression since
// config.Config.CatalogRefreshEvery is already a plain time.Duration. A tick
// that fires while the previous one is still running is skipped, so Refresh
// calls never overlap.
func NewRefresher(fetcher *Fetcher, interval time.Duration, meter metric.Meter) (*Refresher, error) {
	runs, _ := meter.Int64Counter("attackctl_catalog_refresh_runs_total")
	fails, _ := meter.Int64Counter("attackctl_catalog_refresh_failures_total")

	r := &Refresher{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		fetcher: fetcher,
		runs:    runs,
		fails:   fails,
		tracer:  otel.Tracer("attackctl-catalog-refresh"),
	}
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), r.tick); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the schedule. Non-blocking; the cron library runs its own
// goroutine.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop waits for any in-flight tick to finish or ctx to expire, whichever
// comes first.
func (r *Refresher) Stop(ctx context.Context) error {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) tick() {
	ctx, span := r.tracer.Start(context.Background(), "catalog.refresh")
	defer span.End()

	if err := r.fetcher.Refresh(ctx); err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		r.fails.Add(ctx, 1)
		slog.Error("mitre catalog refresh failed", "error", err)
		return
	}
	r.runs.Add(ctx, 1)
	slog.Info("mitre catalog refreshed")
}
