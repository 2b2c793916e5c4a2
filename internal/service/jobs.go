package service

import (
	"context"

	"go.uber.org/zap"

	"signalflow/internal/config"
	"signalflow/internal/copytrade"
	cronrunner "signalflow/internal/cron"
	"signalflow/internal/lifecycle"
	"signalflow/internal/marketdata"
	"signalflow/internal/notify"
)

// Jobs holds the scheduled entry points. Each tick reads the feature switches
// once and logs failures instead of returning them.
type Jobs struct {
	Settings   *SystemSettingsService
	Analysis   *AnalysisService
	Monitor    *copytrade.Monitor
	Tracker    *lifecycle.Tracker
	Cache      *marketdata.Cache
	Dispatcher *notify.Dispatcher
	Logger     *zap.Logger
}

func (j *Jobs) logger() *zap.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return zap.NewNop()
}

// Register schedules every job on r.
func (j *Jobs) Register(r *cronrunner.Runner, cfg config.CronConfig) error {
	specs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"analysis", cfg.Analysis, j.RunAnalysis},
		{"order_monitor", cfg.OrderMonitor, j.RunOrderMonitor},
		{"lifecycle", cfg.Lifecycle, j.RunLifecycle},
		{"cache_cleanup", cfg.CacheCleanup, j.RunCacheCleanup},
		{"outbox_dispatch", cfg.OutboxDispatch, j.RunOutboxDispatch},
	}
	for _, s := range specs {
		if _, err := r.AddJob(s.name, s.spec, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (j *Jobs) RunAnalysis(ctx context.Context) {
	sw := j.Settings.Switches(ctx)
	if !sw.Analysis || j.Analysis == nil {
		j.logger().Debug("analysis disabled")
		return
	}
	if _, err := j.Analysis.RunOnce(ctx, sw); err != nil {
		j.logger().Error("analysis run failed", zap.Error(err))
	}
}

func (j *Jobs) RunOrderMonitor(ctx context.Context) {
	sw := j.Settings.Switches(ctx)
	if !sw.CopyTrading || j.Monitor == nil {
		j.logger().Debug("copy trading disabled")
		return
	}
	if _, err := j.Monitor.RunOnce(ctx, copytrade.ScanOptions{Notify: sw.Notifications}); err != nil {
		j.logger().Error("order scan failed", zap.Error(err))
	}
}

func (j *Jobs) RunLifecycle(ctx context.Context) {
	sw := j.Settings.Switches(ctx)
	if !sw.Lifecycle || j.Tracker == nil {
		j.logger().Debug("lifecycle disabled")
		return
	}
	if _, err := j.Tracker.RunOnce(ctx); err != nil {
		j.logger().Error("lifecycle run failed", zap.Error(err))
	}
}

func (j *Jobs) RunCacheCleanup(ctx context.Context) {
	if j.Cache == nil {
		return
	}
	if n := j.Cache.Cleanup(); n > 0 {
		j.logger().Info("candle cache cleaned", zap.Int("removed", n), zap.Int("remaining", j.Cache.Len()))
	}
}

func (j *Jobs) RunOutboxDispatch(ctx context.Context) {
	sw := j.Settings.Switches(ctx)
	if !sw.Notifications || j.Dispatcher == nil {
		return
	}
	if _, err := j.Dispatcher.RunOnce(ctx); err != nil {
		j.logger().Error("outbox dispatch failed", zap.Error(err))
	}
}
