// Package fanout runs the best-effort work that follows an accepted
// ingest request: diary projections, taste updates, centroid refresh,
// ranking labels and sampled health rollups. Nothing here can change a
// response that has already been sent.
package fanout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/logger"
	"github.com/movinesta/swipe-ingest/internal/metrics"
	"github.com/movinesta/swipe-ingest/internal/models"
)

// SettingsSource yields the current runtime knobs.
type SettingsSource interface {
	Current(ctx context.Context) (config.Settings, error)
}

// Deps are the sinks a Processor writes to. Any of them may be nil, which
// disables the matching sub-task.
type Deps struct {
	Diary    DiaryStore
	Taste    TasteSink
	Labels   LabelSink
	Rollups  RollupStore
	Settings SettingsSource
}

type Processor struct {
	deps        Deps
	log         *logger.Logger
	taskTimeout time.Duration
	rand        func() float64
}

func NewProcessor(deps Deps, taskTimeout time.Duration, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Second
	}
	return &Processor{deps: deps, log: log, taskTimeout: taskTimeout, rand: rand.Float64}
}

// Process runs every sub-task concurrently and waits for all of them. Each
// sub-task has its own timeout and its failures are logged and dropped.
func (p *Processor) Process(ctx context.Context, b *models.AcceptedBatch) {
	settings := config.DefaultSettings()
	if p.deps.Settings != nil {
		var err error
		if settings, err = p.deps.Settings.Current(ctx); err != nil {
			p.log.Debug("fanout settings unavailable", "error", err)
		}
	}

	var g errgroup.Group
	if p.deps.Diary != nil && len(b.DiaryOps) > 0 {
		p.spawn(ctx, &g, b, "diary", func(ctx context.Context) error {
			return p.syncDiary(ctx, b)
		})
	}
	if p.deps.Taste != nil && len(b.Rows) > 0 {
		p.spawn(ctx, &g, b, "taste", func(ctx context.Context) error {
			return p.updateTaste(ctx, b, settings)
		})
		p.spawn(ctx, &g, b, "centroids", func(ctx context.Context) error {
			return p.maybeRefreshCentroids(ctx, b, settings)
		})
	}
	if p.deps.Labels != nil && len(b.Rows) > 0 {
		p.spawn(ctx, &g, b, "labels", func(ctx context.Context) error {
			return p.mergeLabels(ctx, b, settings)
		})
	}
	if p.deps.Rollups != nil {
		p.spawn(ctx, &g, b, "rollup", func(ctx context.Context) error {
			return p.sampleRollup(ctx, b, settings)
		})
	}
	_ = g.Wait()
}

func (p *Processor) spawn(ctx context.Context, g *errgroup.Group, b *models.AcceptedBatch, task string, fn func(context.Context) error) {
	g.Go(func() (err error) {
		ctx, cancel := context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			if err != nil {
				metrics.FanoutTaskFailures.WithLabelValues(task).Inc()
				p.log.Warn("fanout task failed", "task", task, "request_id", b.RequestID, "user_id", b.UserID, "error", err)
			}
			err = nil
		}()
		return fn(ctx)
	})
}
