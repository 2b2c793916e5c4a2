package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	Cron    CronConfig    `mapstructure:"cron"`

	Binance    BinanceConfig    `mapstructure:"binance"`
	CopyTrade  CopyTradeConfig  `mapstructure:"copytrade"`
	MarketData MarketDataConfig `mapstructure:"market_data"`

	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Regime       RegimeConfig       `mapstructure:"regime"`
	Fusion       FusionConfig       `mapstructure:"fusion"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Filter       FilterConfig       `mapstructure:"filter"`
	Lifecycle    LifecycleConfig    `mapstructure:"lifecycle"`
	OrderMonitor OrderMonitorConfig `mapstructure:"order_monitor"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Platform     PlatformConfig     `mapstructure:"platform"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr       string `mapstructure:"http_addr" validate:"required"`
	AuthDisabled   bool   `mapstructure:"auth_disabled"`
	RequireGateway bool   `mapstructure:"require_gateway"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding" validate:"oneof=console json"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// StorageConfig selects the repository backend. "memory" keeps everything in
// process and is meant for local runs.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Analysis       string `mapstructure:"analysis" validate:"required"`
	OrderMonitor   string `mapstructure:"order_monitor" validate:"required"`
	Lifecycle      string `mapstructure:"lifecycle" validate:"required"`
	CacheCleanup   string `mapstructure:"cache_cleanup" validate:"required"`
	OutboxDispatch string `mapstructure:"outbox_dispatch" validate:"required"`
}

type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec" validate:"gt=0"`
	Burst          int           `mapstructure:"burst" validate:"gt=0"`
}

type CopyTradeConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Exchange       string        `mapstructure:"exchange" validate:"required"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Window         time.Duration `mapstructure:"window" validate:"gt=0"`
	PageSize       int           `mapstructure:"page_size" validate:"gt=0"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec" validate:"gt=0"`
	Burst          int           `mapstructure:"burst" validate:"gt=0"`
}

type MarketDataConfig struct {
	TTLFraction   float64       `mapstructure:"ttl_fraction" validate:"gt=0,lte=1"`
	MinTTL        time.Duration `mapstructure:"min_ttl"`
	MaxTTL        time.Duration `mapstructure:"max_ttl"`
	GraceWindow   time.Duration `mapstructure:"grace_window"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=1,lte=10"`
	BackoffMin    time.Duration `mapstructure:"backoff_min"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type AnalysisConfig struct {
	Symbols          []string `mapstructure:"symbols" validate:"min=1,dive,required"`
	Timeframes       []string `mapstructure:"timeframes" validate:"min=1,dive,oneof=15m 1h 4h 1d"`
	PrimaryTimeframe string   `mapstructure:"primary_timeframe" validate:"required"`
	CandleLimit      int      `mapstructure:"candle_limit" validate:"gte=60,lte=1000"`
	Concurrency      int      `mapstructure:"concurrency" validate:"gt=0"`
	BenchmarkSymbol  string   `mapstructure:"benchmark_symbol"`
	InitialStatus    string   `mapstructure:"initial_status" validate:"oneof=PENDING ACTIVE"`
}

type RegimeConfig struct {
	Timeframe       string  `mapstructure:"timeframe"`
	MinBars         int     `mapstructure:"min_bars" validate:"gt=1"`
	Lookback        int     `mapstructure:"lookback" validate:"gt=1"`
	VolatileStdev   float64 `mapstructure:"volatile_stdev" validate:"gt=0"`
	TrendEfficiency float64 `mapstructure:"trend_efficiency" validate:"gt=0,lte=1"`
}

type FusionConfig struct {
	MinConfidence float64                       `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	Reliability   map[string]float64            `mapstructure:"reliability"`
	Compatibility map[string]map[string]float64 `mapstructure:"compatibility"`
}

type ScoringConfig struct {
	Level1        int          `mapstructure:"level1" validate:"gt=0"`
	Level2        int          `mapstructure:"level2" validate:"gt=0"`
	Level3        int          `mapstructure:"level3" validate:"gt=0"`
	MinRiskReward float64      `mapstructure:"min_risk_reward" validate:"gt=0"`
	VolumeRatio   float64      `mapstructure:"volume_ratio" validate:"gt=0"`
	Weights       ScoreWeights `mapstructure:"weights"`
}

type ScoreWeights struct {
	Trend      int `mapstructure:"trend" validate:"gte=0"`
	Volume     int `mapstructure:"volume" validate:"gte=0"`
	Band       int `mapstructure:"band" validate:"gte=0"`
	MultiFrame int `mapstructure:"multi_frame" validate:"gte=0"`
	RiskReward int `mapstructure:"risk_reward" validate:"gte=0"`
}

type FilterConfig struct {
	Cooldown time.Duration  `mapstructure:"cooldown" validate:"gte=0"`
	Quotas   map[string]int `mapstructure:"quotas"`
	Timezone string         `mapstructure:"timezone"`
}

type LifecycleConfig struct {
	Horizon           time.Duration `mapstructure:"horizon" validate:"gt=0"`
	EntryTolerancePct float64       `mapstructure:"entry_tolerance_pct" validate:"gte=0"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gt=0"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gt=0"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts" validate:"gte=1,lte=10"`
	BackoffMin        time.Duration `mapstructure:"backoff_min"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
}

type OrderMonitorConfig struct {
	Concurrency   int           `mapstructure:"concurrency" validate:"gt=0"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=1,lte=10"`
	BackoffMin    time.Duration `mapstructure:"backoff_min"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
}

type NotifyConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Transport        string        `mapstructure:"transport" validate:"oneof=smtp log"`
	SignalRecipients []string      `mapstructure:"signal_recipients" validate:"dive,email"`
	From             string        `mapstructure:"from"`
	SMTP             SMTPConfig    `mapstructure:"smtp"`
	BatchSize        int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"gt=0"`
	RetryMin         time.Duration `mapstructure:"retry_min"`
	RetryMax         time.Duration `mapstructure:"retry_max"`
	StreamBuffer     int           `mapstructure:"stream_buffer"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type PlatformConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Agent   string        `mapstructure:"agent"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_disabled", false)
	v.SetDefault("server.require_gateway", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.analysis", "@every 5m")
	v.SetDefault("cron.order_monitor", "@every 30s")
	v.SetDefault("cron.lifecycle", "@every 1m")
	v.SetDefault("cron.cache_cleanup", "@every 10m")
	v.SetDefault("cron.outbox_dispatch", "@every 15s")

	v.SetDefault("binance.base_url", "")
	v.SetDefault("binance.timeout", "10s")
	v.SetDefault("binance.requests_per_sec", 10)
	v.SetDefault("binance.burst", 20)

	v.SetDefault("copytrade.base_url", "https://www.binance.com")
	v.SetDefault("copytrade.exchange", "binance")
	v.SetDefault("copytrade.timeout", "10s")
	v.SetDefault("copytrade.window", "10m")
	v.SetDefault("copytrade.page_size", 50)
	v.SetDefault("copytrade.requests_per_sec", 2)
	v.SetDefault("copytrade.burst", 4)

	v.SetDefault("market_data.ttl_fraction", 0.2)
	v.SetDefault("market_data.min_ttl", "30s")
	v.SetDefault("market_data.max_ttl", "1h")
	v.SetDefault("market_data.grace_window", "15m")
	v.SetDefault("market_data.fetch_timeout", "8s")
	v.SetDefault("market_data.retry_attempts", 3)
	v.SetDefault("market_data.backoff_min", "200ms")
	v.SetDefault("market_data.backoff_max", "2s")
	v.SetDefault("market_data.redis.enabled", false)
	v.SetDefault("market_data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("market_data.redis.password", "")
	v.SetDefault("market_data.redis.db", 0)
	v.SetDefault("market_data.redis.prefix", "signalflow:candles")

	v.SetDefault("analysis.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"})
	v.SetDefault("analysis.timeframes", []string{"15m", "1h", "4h", "1d"})
	v.SetDefault("analysis.primary_timeframe", "1h")
	v.SetDefault("analysis.candle_limit", 200)
	v.SetDefault("analysis.concurrency", 4)
	v.SetDefault("analysis.benchmark_symbol", "BTCUSDT")
	v.SetDefault("analysis.initial_status", "ACTIVE")

	v.SetDefault("regime.timeframe", "4h")
	v.SetDefault("regime.min_bars", 20)
	v.SetDefault("regime.lookback", 30)
	v.SetDefault("regime.volatile_stdev", 0.035)
	v.SetDefault("regime.trend_efficiency", 0.3)

	v.SetDefault("fusion.min_confidence", 0.35)
	v.SetDefault("fusion.reliability", map[string]float64{
		"trend_momentum":      0.8,
		"whale_flow":          0.6,
		"volatility_breakout": 0.7,
		"key_level":           0.75,
		"sentiment_extreme":   0.5,
		"cross_asset":         0.55,
	})

	v.SetDefault("scoring.level1", 80)
	v.SetDefault("scoring.level2", 65)
	v.SetDefault("scoring.level3", 50)
	v.SetDefault("scoring.min_risk_reward", 1.5)
	v.SetDefault("scoring.volume_ratio", 1.2)
	v.SetDefault("scoring.weights.trend", 25)
	v.SetDefault("scoring.weights.volume", 20)
	v.SetDefault("scoring.weights.band", 15)
	v.SetDefault("scoring.weights.multi_frame", 20)
	v.SetDefault("scoring.weights.risk_reward", 20)

	v.SetDefault("filter.cooldown", "1h")
	v.SetDefault("filter.quotas", map[string]int{"LEVEL_1": 5, "LEVEL_2": 3, "LEVEL_3": 2})
	v.SetDefault("filter.timezone", "UTC")

	v.SetDefault("lifecycle.horizon", "24h")
	v.SetDefault("lifecycle.entry_tolerance_pct", 0.3)
	v.SetDefault("lifecycle.concurrency", 8)
	v.SetDefault("lifecycle.batch_size", 500)
	v.SetDefault("lifecycle.fetch_timeout", "5s")
	v.SetDefault("lifecycle.retry_attempts", 2)
	v.SetDefault("lifecycle.backoff_min", "200ms")
	v.SetDefault("lifecycle.backoff_max", "1s")

	v.SetDefault("order_monitor.concurrency", 4)
	v.SetDefault("order_monitor.fetch_timeout", "15s")
	v.SetDefault("order_monitor.retry_attempts", 3)
	v.SetDefault("order_monitor.backoff_min", "500ms")
	v.SetDefault("order_monitor.backoff_max", "5s")

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.transport", "log")
	v.SetDefault("notify.from", "signals@localhost")
	v.SetDefault("notify.signal_recipients", []string{})
	v.SetDefault("notify.smtp.host", "")
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.batch_size", 50)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.retry_min", "30s")
	v.SetDefault("notify.retry_max", "30m")
	v.SetDefault("notify.stream_buffer", 32)

	v.SetDefault("platform.base_url", "")
	v.SetDefault("platform.api_key", "")
	v.SetDefault("platform.agent", "signalflow-service")
	v.SetDefault("platform.timeout", "5s")
}

func (c *Config) normalize() {
	for i, s := range c.Analysis.Symbols {
		c.Analysis.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	c.Analysis.BenchmarkSymbol = strings.ToUpper(strings.TrimSpace(c.Analysis.BenchmarkSymbol))
	c.Analysis.InitialStatus = strings.ToUpper(strings.TrimSpace(c.Analysis.InitialStatus))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Notify.Transport = strings.ToLower(strings.TrimSpace(c.Notify.Transport))
	if c.Regime.Timeframe == "" {
		c.Regime.Timeframe = c.Analysis.PrimaryTimeframe
	}
	if c.Filter.Timezone == "" {
		c.Filter.Timezone = "UTC"
	}
	// viper lower-cases map keys; tiers and regimes are upper-case everywhere else.
	if len(c.Filter.Quotas) > 0 {
		quotas := make(map[string]int, len(c.Filter.Quotas))
		for k, v := range c.Filter.Quotas {
			quotas[strings.ToUpper(k)] = v
		}
		c.Filter.Quotas = quotas
	}
	if len(c.Fusion.Compatibility) > 0 {
		compat := make(map[string]map[string]float64, len(c.Fusion.Compatibility))
		for k, v := range c.Fusion.Compatibility {
			compat[strings.ToUpper(k)] = v
		}
		c.Fusion.Compatibility = compat
	}
}
