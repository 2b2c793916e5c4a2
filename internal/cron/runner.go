package cronrunner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"signalflow/internal/metrics"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *metrics.Metrics
	baseCtx context.Context

	mu      sync.Mutex
	running map[string]bool
}

func New(logger *zap.Logger, m *metrics.Metrics, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		metrics: m,
		baseCtx: baseCtx,
		running: map[string]bool{},
	}
}

// AddJob schedules job under name. A tick that fires while the previous run of
// the same name is still in progress is skipped, not queued.
func (r *Runner) AddJob(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return 0, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	if r.logger != nil {
		r.logger.Info("cron job scheduled", zap.String("job", name), zap.String("spec", spec))
	}
	return id, nil
}

func (r *Runner) acquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

// run executes one tick of job and reports whether it ran.
func (r *Runner) run(name string, job func(context.Context)) bool {
	if !r.acquire(name) {
		r.metrics.JobRun(name, "skipped", 0)
		if r.logger != nil {
			r.logger.Warn("cron tick skipped, previous run still active", zap.String("job", name))
		}
		return false
	}
	defer r.release(name)

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.JobRun(name, "panic", time.Since(start))
			if r.logger != nil {
				r.logger.Error("cron job panicked", zap.String("job", name), zap.Any("panic", rec), zap.Stack("stack"))
			}
		}
	}()
	ctx := r.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	job(ctx)
	r.metrics.JobRun(name, "ok", time.Since(start))
	return true
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	}
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
