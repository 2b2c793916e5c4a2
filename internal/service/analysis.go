package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"signalflow/internal/config"
	"signalflow/internal/filter"
	"signalflow/internal/fusion"
	"signalflow/internal/marketdata"
	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/notify"
	"signalflow/internal/regime"
	"signalflow/internal/repository"
	"signalflow/internal/scoring"
	"signalflow/internal/signal"
)

type SnapshotLoader interface {
	Snapshot(ctx context.Context, symbol string, frames []models.Timeframe, primary models.Timeframe, limit int, benchmark string) (models.MarketSnapshot, error)
}

type SignalNotifier interface {
	EnqueueSignal(ctx context.Context, sig models.Signal) (bool, error)
}

type SignalPublisher interface {
	PublishSignal(sig models.Signal)
}

// SymbolDiagnostics are running per-symbol counters since process start.
type SymbolDiagnostics struct {
	Symbol       string     `json:"symbol"`
	Runs         int64      `json:"runs"`
	Raw          int64      `json:"raw"`
	Enhanced     int64      `json:"enhanced"`
	Filtered     int64      `json:"filtered"`
	Persisted    int64      `json:"persisted"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastRegime   string     `json:"last_regime,omitempty"`
	LastDecision string     `json:"last_decision,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastErrorAt  *time.Time `json:"last_error_at,omitempty"`
}

type CycleSummary struct {
	RunID     string   `json:"run_id"`
	Symbols   int      `json:"symbols"`
	Raw       int      `json:"raw"`
	Enhanced  int      `json:"enhanced"`
	Accepted  int      `json:"accepted"`
	Persisted int      `json:"persisted"`
	Failed    int      `json:"failed"`
	SignalIDs []uint64 `json:"signal_ids"`
}

// AnalysisService runs detect, fuse, score and filter over the configured
// symbols and stores what passes.
type AnalysisService struct {
	Market    SnapshotLoader
	Detectors *signal.Registry
	Regime    regime.Classifier
	Fusion    *fusion.Engine
	Scorer    *scoring.Enhancer
	Filter    *filter.Filter
	Repo      repository.SignalRepository
	Notifier  SignalNotifier
	Stream    SignalPublisher
	Config    config.AnalysisConfig
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time

	diagMu sync.RWMutex
	diag   map[string]*SymbolDiagnostics
}

type symbolOutcome struct {
	symbol   string
	raw      int
	regime   models.Regime
	decision models.Direction
	scored   *models.ScoredSignal
	err      error
}

func (s *AnalysisService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// RunOnce analyses every configured symbol.
func (s *AnalysisService) RunOnce(ctx context.Context, sw Switches) (CycleSummary, error) {
	return s.run(ctx, s.Config.Symbols, sw)
}

// TriggerAnalysis runs the pipeline for one symbol on demand. Cooldown and
// quota state are shared with scheduled runs.
func (s *AnalysisService) TriggerAnalysis(ctx context.Context, symbol string, sw Switches) (CycleSummary, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return CycleSummary{}, errors.New("symbol is required")
	}
	return s.run(ctx, []string{symbol}, sw)
}

func (s *AnalysisService) frames() ([]models.Timeframe, models.Timeframe) {
	frames := make([]models.Timeframe, 0, len(s.Config.Timeframes))
	for _, tf := range s.Config.Timeframes {
		frames = append(frames, models.Timeframe(tf))
	}
	primary := models.Timeframe(s.Config.PrimaryTimeframe)
	if primary == "" {
		primary = models.Timeframe1h
	}
	return frames, primary
}

func (s *AnalysisService) run(ctx context.Context, symbols []string, sw Switches) (CycleSummary, error) {
	sum := CycleSummary{RunID: uuid.NewString(), Symbols: len(symbols), SignalIDs: []uint64{}}
	if s == nil || s.Market == nil || s.Detectors == nil {
		return sum, errors.New("analysis service not configured")
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", sum.RunID))

	limit := s.Config.Concurrency
	if limit <= 0 {
		limit = 4
	}
	outcomes := make([]symbolOutcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, symbol := range symbols {
		g.Go(func() error {
			outcomes[i] = s.analyse(gctx, symbol, logger)
			return nil
		})
	}
	_ = g.Wait()

	scored := make([]models.ScoredSignal, 0, len(outcomes))
	for _, o := range outcomes {
		sum.Raw += o.raw
		if o.err != nil {
			sum.Failed++
		}
		if o.scored != nil {
			sum.Enhanced++
			scored = append(scored, *o.scored)
		}
		s.record(o)
	}
	s.Metrics.Stage("raw", sum.Raw)
	s.Metrics.Stage("enhanced", sum.Enhanced)

	accepted, rejected := s.Filter.Evaluate(scored)
	sum.Accepted = len(accepted)
	s.Metrics.Stage("filtered", sum.Accepted)
	for _, r := range rejected {
		logger.Debug("signal filtered",
			zap.String("symbol", r.Signal.Symbol),
			zap.String("direction", string(r.Signal.Direction)),
			zap.String("tier", string(r.Signal.Tier)),
			zap.String("reason", r.Reason),
		)
	}

	for _, sc := range accepted {
		s.bump(sc.Symbol, func(d *SymbolDiagnostics) { d.Filtered++ })
		sig, err := s.persist(ctx, sc)
		if err != nil {
			sum.Failed++
			s.Filter.Release(sc)
			s.fail(sc.Symbol, err)
			logger.Warn("signal not stored", zap.String("symbol", sc.Symbol), zap.Error(err))
			continue
		}
		sum.Persisted++
		sum.SignalIDs = append(sum.SignalIDs, sig.ID)
		s.bump(sc.Symbol, func(d *SymbolDiagnostics) { d.Persisted++ })
		s.announce(ctx, *sig, sw, logger)
	}
	s.Metrics.Stage("persisted", sum.Persisted)

	logger.Info("analysis cycle done",
		zap.Int("symbols", sum.Symbols),
		zap.Int("raw", sum.Raw),
		zap.Int("enhanced", sum.Enhanced),
		zap.Int("accepted", sum.Accepted),
		zap.Int("persisted", sum.Persisted),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (s *AnalysisService) analyse(ctx context.Context, symbol string, logger *zap.Logger) symbolOutcome {
	out := symbolOutcome{symbol: symbol, decision: models.DirectionHold, regime: models.RegimeUnknown}
	frames, primary := s.frames()
	snap, err := s.Market.Snapshot(ctx, symbol, frames, primary, s.Config.CandleLimit, s.Config.BenchmarkSymbol)
	if err != nil {
		out.err = err
		level := logger.Error
		if errors.Is(err, marketdata.ErrDataUnavailable) {
			level = logger.Warn
		}
		level("symbol skipped", zap.String("symbol", symbol), zap.Error(err))
		return out
	}

	candidates := s.Detectors.Run(symbol, snap)
	out.raw = len(candidates)
	assessment := s.Regime.Assess(snap)
	out.regime = assessment.Regime
	res := s.Fusion.Fuse(candidates, assessment.Regime, snap.LastClose())
	out.decision = res.Decision
	if len(candidates) == 0 || res.Decision == models.DirectionHold {
		return out
	}
	res.Reasoning = assessment.String() + "; " + res.Reasoning

	sc, err := s.Scorer.Enhance(res, snap)
	if err != nil {
		logger.Debug("decision discarded",
			zap.String("symbol", symbol),
			zap.String("decision", string(res.Decision)),
			zap.Error(err),
		)
		return out
	}
	out.scored = sc
	return out
}

type signalPayload struct {
	Regime       models.Regime  `json:"regime"`
	RiskReward   float64        `json:"risk_reward"`
	Checks       map[string]int `json:"checks"`
	Contributors []string       `json:"contributors"`
}

func (s *AnalysisService) persist(ctx context.Context, sc models.ScoredSignal) (*models.Signal, error) {
	if s.Repo == nil {
		return nil, errors.New("signal repository not configured")
	}
	payload, err := json.Marshal(signalPayload{
		Regime:       sc.Regime,
		RiskReward:   sc.RiskReward,
		Checks:       sc.Checks,
		Contributors: sc.Contributors,
	})
	if err != nil {
		return nil, err
	}
	status := s.Config.InitialStatus
	if status == "" {
		status = models.SignalStatusActive
	}
	sig := &models.Signal{
		Symbol:     sc.Symbol,
		Direction:  string(sc.Direction),
		Source:     sc.Source,
		Timeframe:  string(sc.Timeframe),
		EntryPrice: price(sc.Entry),
		StopLoss:   price(sc.StopLoss),
		TakeProfit: price(sc.TakeProfit),
		Score:      sc.Score,
		Tier:       string(sc.Tier),
		Status:     status,
		Strength:   sc.Strength,
		Confidence: sc.Confidence,
		Reasoning:  sc.Reasoning,
		Payload:    datatypes.JSON(payload),
	}
	if err := s.Repo.InsertSignal(ctx, sig); err != nil {
		return nil, fmt.Errorf("insert signal %s %s: %w", sc.Symbol, sc.Direction, err)
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = s.now()
	}
	return sig, nil
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(8)
}

// announce is best effort: a failed enqueue never undoes the stored signal.
func (s *AnalysisService) announce(ctx context.Context, sig models.Signal, sw Switches, logger *zap.Logger) {
	if s.Stream != nil {
		s.Stream.PublishSignal(sig)
	}
	if !sw.Notifications || s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.EnqueueSignal(ctx, sig); err != nil {
		level := logger.Warn
		if errors.Is(err, notify.ErrNoRecipients) {
			level = logger.Debug
		}
		level("signal notification not queued", zap.Uint64("signal_id", sig.ID), zap.Error(err))
	}
}

func (s *AnalysisService) entry(symbol string) *SymbolDiagnostics {
	if s.diag == nil {
		s.diag = map[string]*SymbolDiagnostics{}
	}
	d, ok := s.diag[symbol]
	if !ok {
		d = &SymbolDiagnostics{Symbol: symbol}
		s.diag[symbol] = d
	}
	return d
}

func (s *AnalysisService) bump(symbol string, fn func(d *SymbolDiagnostics)) {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	fn(s.entry(symbol))
}

func (s *AnalysisService) fail(symbol string, err error) {
	at := s.now()
	s.bump(symbol, func(d *SymbolDiagnostics) {
		d.LastError = err.Error()
		d.LastErrorAt = &at
	})
}

func (s *AnalysisService) record(o symbolOutcome) {
	at := s.now()
	s.bump(o.symbol, func(d *SymbolDiagnostics) {
		d.Runs++
		d.Raw += int64(o.raw)
		d.LastRunAt = &at
		d.LastRegime = string(o.regime)
		d.LastDecision = string(o.decision)
		if o.scored != nil {
			d.Enhanced++
		}
		if o.err != nil {
			d.LastError = o.err.Error()
			d.LastErrorAt = &at
		}
	})
}

// Diagnostics returns a copy of the per-symbol counters, sorted by symbol.
func (s *AnalysisService) Diagnostics() []SymbolDiagnostics {
	s.diagMu.RLock()
	defer s.diagMu.RUnlock()
	out := make([]SymbolDiagnostics, 0, len(s.diag))
	for _, d := range s.diag {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
