package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	binanceclient "signalflow/internal/client/binance"
	ctclient "signalflow/internal/client/copytrade"
	"signalflow/internal/config"
	"signalflow/internal/copytrade"
	cronrunner "signalflow/internal/cron"
	"signalflow/internal/db"
	"signalflow/internal/filter"
	"signalflow/internal/fusion"
	"signalflow/internal/handler"
	"signalflow/internal/lifecycle"
	"signalflow/internal/logger"
	"signalflow/internal/marketdata"
	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/notify"
	"signalflow/internal/paas"
	"signalflow/internal/regime"
	"signalflow/internal/repository"
	gormrepository "signalflow/internal/repository/gorm"
	"signalflow/internal/repository/memory"
	"signalflow/internal/retry"
	"signalflow/internal/scoring"
	"signalflow/internal/service"
	signalhub "signalflow/internal/signal"

	_ "signalflow/docs"
)

func main() {
	cfgPath := os.Getenv("SF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		store repository.Repository
		dbh   *db.DB
	)
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		store = memory.New()
	default:
		dbh, err = db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbh)
		if err := db.SetTimezone(dbh, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbh); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbh.Gorm)
	}

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	binance := binanceclient.NewClient(cfg.Binance)
	binance.Metrics = m
	cache := marketdata.NewCache(binance, marketdata.Options{
		TTLFraction: cfg.MarketData.TTLFraction,
		MinTTL:      cfg.MarketData.MinTTL,
		MaxTTL:      cfg.MarketData.MaxTTL,
		Grace:       cfg.MarketData.GraceWindow,
		Retry: retry.Policy{
			Attempts: cfg.MarketData.RetryAttempts,
			Timeout:  cfg.MarketData.FetchTimeout,
			Min:      cfg.MarketData.BackoffMin,
			Max:      cfg.MarketData.BackoffMax,
			Jitter:   true,
		},
	}, logger.Named("marketdata"))
	cache.Metrics = m
	if cfg.MarketData.Redis.Enabled {
		shared, err := marketdata.NewRedisStore(cfg.MarketData.Redis)
		if err != nil {
			logger.Warn("redis candle cache disabled", zap.Error(err))
		} else {
			cache.Shared = shared
			defer shared.Close()
		}
	}

	candleFilter, err := filter.New(cfg.Filter, logger.Named("filter"))
	if err != nil {
		logger.Fatal("filter init failed", zap.Error(err))
	}

	broadcaster := notify.NewBroadcaster(cfg.Notify.StreamBuffer, m)

	platform, audit := initPlatformClient(cfg.Platform, logger)
	outbox := &notify.Outbox{
		Repo:             store,
		SignalRecipients: cfg.Notify.SignalRecipients,
		Logger:           logger.Named("outbox"),
		Metrics:          m,
	}
	dispatcher := &notify.Dispatcher{
		Repo:    store,
		Mailer:  notify.NewMailer(cfg.Notify, logger.Named("mailer")),
		Config:  cfg.Notify,
		Logger:  logger.Named("dispatcher"),
		Metrics: m,
	}
	// follower lookups log in again on demand, so a failed startup login
	// only delays copy-order mails
	if platform != nil {
		dispatcher.Subscribers = platform
	}

	detectors := signalhub.Default(logger.Named("detector"))
	analysisSvc := &service.AnalysisService{
		Market:    cache,
		Detectors: detectors,
		Regime:    regime.New(cfg.Regime),
		Fusion:    fusion.New(cfg.Fusion),
		Scorer:    scoring.New(cfg.Scoring, models.Timeframe(cfg.Analysis.PrimaryTimeframe)),
		Filter:    candleFilter,
		Repo:      store,
		Stream:    broadcaster,
		Config:    cfg.Analysis,
		Logger:    logger.Named("analysis"),
		Metrics:   m,
	}
	if cfg.Notify.Enabled {
		analysisSvc.Notifier = outbox
	}

	tracker := &lifecycle.Tracker{
		Repo:    store,
		Prices:  binance,
		Config:  cfg.Lifecycle,
		Logger:  logger.Named("lifecycle"),
		Metrics: m,
		OnTransition: func(_ context.Context, sig models.Signal) {
			broadcaster.PublishTransition(sig)
		},
	}

	var orderNotifier copytrade.Notifier
	if cfg.Notify.Enabled {
		orderNotifier = outbox
	}
	monitor := copytrade.NewMonitor(ctclient.NewClient(cfg.CopyTrade), store, orderNotifier, cfg.CopyTrade, cfg.OrderMonitor, logger.Named("copytrade"))
	monitor.Metrics = m

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(paas.InjectClientMiddleware(audit))
	engine.Use(paas.RequireBearerMiddleware(cfg.Server.AuthDisabled, cfg.Server.RequireGateway))
	engine.Use(paas.WriteAuditMiddleware(audit, logger))

	healthHandler := &handler.HealthHandler{}
	if dbh != nil {
		healthHandler.DB = dbh.Gorm
	}
	healthHandler.Register(engine)
	paas.RegisterDocs(engine)

	(&handler.SignalHandler{Repo: store, Tracker: tracker, Prices: binance}).Register(engine)
	(&handler.AnalysisHandler{Analysis: analysisSvc, Settings: settingsSvc, Detectors: detectors}).Register(engine)
	(&handler.CopyTradeHandler{Repo: store, Monitor: monitor, Settings: settingsSvc}).Register(engine)
	(&handler.OpsHandler{
		Cache:      cache,
		Filter:     candleFilter,
		Analysis:   analysisSvc,
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Stream:     broadcaster,
	}).Register(engine)
	(&handler.SystemSettingsHandler{Repo: store, Settings: settingsSvc}).Register(engine)
	(&handler.StreamHandler{Broadcaster: broadcaster, Logger: logger.Named("stream")}).Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseCtx := ctx
	if audit != nil {
		baseCtx = paas.WithClient(ctx, audit)
	}

	runner := cronrunner.New(logger.Named("cron"), m, baseCtx)
	if cfg.Cron.Enabled {
		jobs := &service.Jobs{
			Settings:   settingsSvc,
			Analysis:   analysisSvc,
			Monitor:    monitor,
			Tracker:    tracker,
			Cache:      cache,
			Dispatcher: dispatcher,
			Logger:     logger.Named("jobs"),
		}
		if err := jobs.Register(runner, cfg.Cron); err != nil {
			logger.Fatal("cron register failed", zap.Error(err))
		}
		runner.Start()
		defer runner.Stop()
	} else {
		logger.Info("cron disabled; jobs run only through the ops endpoints")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("storage", cfg.Storage.Driver),
			zap.Strings("symbols", cfg.Analysis.Symbols),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Signalflow-Project")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// initPlatformClient returns the configured platform client and, when the
// startup login worked, the same client for audit logging.
func initPlatformClient(cfg config.PlatformConfig, logger *zap.Logger) (client, audit *paas.Client) {
	p := paas.NewClient(cfg)
	if p == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		logger.Warn("platform login failed (audit logs disabled, follower lookups retry)", zap.Error(err))
		return p, nil
	}
	logger.Info("platform login ok")
	return p, p
}
