// Package filter decides which scored signals are dispatched: duplicate
// collapse within a cycle, a per-symbol cooldown and daily per-tier quotas.
package filter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"signalflow/internal/config"
	"signalflow/internal/models"
)

const (
	RejectDuplicate = "duplicate"
	RejectCooldown  = "cooldown"
	RejectQuota     = "quota"
)

type Rejection struct {
	Signal models.ScoredSignal
	Reason string
}

// Filter holds process-wide acceptance state. Symbols and tiers each have
// their own lock; a decision takes the symbol lock, then the tier lock.
type Filter struct {
	Cooldown time.Duration
	Quotas   map[models.Tier]int
	Logger   *zap.Logger
	Now      func() time.Time

	loc *time.Location

	symMu   sync.RWMutex
	symbols map[string]*symbolState

	tierMu sync.RWMutex
	tiers  map[models.Tier]*tierState
}

type symbolState struct {
	mu           sync.Mutex
	lastAccepted time.Time
	lastTier     models.Tier
	prevAccepted time.Time
	prevTier     models.Tier
}

type tierState struct {
	mu   sync.Mutex
	day  string
	used int
}

func New(cfg config.FilterConfig, logger *zap.Logger) (*Filter, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("filter timezone: %w", err)
		}
		loc = l
	}
	quotas := map[models.Tier]int{}
	for k, v := range cfg.Quotas {
		quotas[models.Tier(k)] = v
	}
	return &Filter{
		Cooldown: cfg.Cooldown,
		Quotas:   quotas,
		Logger:   logger,
		loc:      loc,
		symbols:  map[string]*symbolState{},
		tiers:    map[models.Tier]*tierState{},
	}, nil
}

func (f *Filter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func (f *Filter) dayKey(t time.Time) string {
	loc := f.loc
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// FilterForDispatch returns the accepted subset, LEVEL_1 first.
func (f *Filter) FilterForDispatch(items []models.ScoredSignal) []models.ScoredSignal {
	accepted, _ := f.Evaluate(items)
	return accepted
}

// Evaluate is FilterForDispatch plus the reason each rejected signal was
// dropped. State changes only for accepted signals.
func (f *Filter) Evaluate(items []models.ScoredSignal) ([]models.ScoredSignal, []Rejection) {
	if f == nil || len(items) == 0 {
		return nil, nil
	}
	ordered := make([]models.ScoredSignal, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() < b.Tier.Rank()
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Direction < b.Direction
	})

	now := f.now()
	seen := map[string]struct{}{}
	accepted := make([]models.ScoredSignal, 0, len(ordered))
	var rejected []Rejection
	for _, sig := range ordered {
		key := sig.Symbol + "|" + string(sig.Direction)
		if _, dup := seen[key]; dup {
			rejected = append(rejected, Rejection{Signal: sig, Reason: RejectDuplicate})
			continue
		}
		seen[key] = struct{}{}
		if reason := f.tryAccept(sig, now); reason != "" {
			rejected = append(rejected, Rejection{Signal: sig, Reason: reason})
			if f.Logger != nil {
				f.Logger.Debug("filter: reject",
					zap.String("symbol", sig.Symbol),
					zap.String("tier", string(sig.Tier)),
					zap.Int("score", sig.Score),
					zap.String("reason", reason),
				)
			}
			continue
		}
		accepted = append(accepted, sig)
	}
	if f.Logger != nil {
		f.Logger.Info("signal filter applied",
			zap.Int("total", len(items)),
			zap.Int("passed", len(accepted)),
			zap.Int("filtered", len(rejected)),
		)
	}
	return accepted, rejected
}

func (f *Filter) tryAccept(sig models.ScoredSignal, now time.Time) string {
	st := f.symbol(sig.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	if f.Cooldown > 0 && !st.lastAccepted.IsZero() && now.Sub(st.lastAccepted) < f.Cooldown {
		return RejectCooldown
	}

	ts := f.tier(sig.Tier)
	ts.mu.Lock()
	day := f.dayKey(now)
	if ts.day != day {
		ts.day = day
		ts.used = 0
	}
	if limit := f.Quotas[sig.Tier]; limit > 0 && ts.used >= limit {
		ts.mu.Unlock()
		return RejectQuota
	}
	ts.used++
	ts.mu.Unlock()

	st.prevAccepted, st.prevTier = st.lastAccepted, st.lastTier
	st.lastAccepted = now
	st.lastTier = sig.Tier
	return ""
}

// Release gives back the cooldown and quota slot taken by the latest
// acceptance of sig, for a signal that was accepted but never stored.
func (f *Filter) Release(sig models.ScoredSignal) {
	if f == nil {
		return
	}
	st := f.symbol(sig.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.lastAccepted.IsZero() || st.lastTier != sig.Tier {
		return
	}
	accepted := st.lastAccepted
	st.lastAccepted, st.lastTier = st.prevAccepted, st.prevTier
	st.prevAccepted, st.prevTier = time.Time{}, ""

	ts := f.tier(sig.Tier)
	ts.mu.Lock()
	if ts.day == f.dayKey(accepted) && ts.used > 0 {
		ts.used--
	}
	ts.mu.Unlock()
	if f.Logger != nil {
		f.Logger.Debug("filter: released", zap.String("symbol", sig.Symbol), zap.String("tier", string(sig.Tier)))
	}
}

func (f *Filter) symbol(symbol string) *symbolState {
	f.symMu.RLock()
	st, ok := f.symbols[symbol]
	f.symMu.RUnlock()
	if ok {
		return st
	}
	f.symMu.Lock()
	defer f.symMu.Unlock()
	if f.symbols == nil {
		f.symbols = map[string]*symbolState{}
	}
	if st, ok = f.symbols[symbol]; ok {
		return st
	}
	st = &symbolState{}
	f.symbols[symbol] = st
	return st
}

func (f *Filter) tier(tier models.Tier) *tierState {
	f.tierMu.RLock()
	ts, ok := f.tiers[tier]
	f.tierMu.RUnlock()
	if ok {
		return ts
	}
	f.tierMu.Lock()
	defer f.tierMu.Unlock()
	if f.tiers == nil {
		f.tiers = map[models.Tier]*tierState{}
	}
	if ts, ok = f.tiers[tier]; ok {
		return ts
	}
	ts = &tierState{}
	f.tiers[tier] = ts
	return ts
}

// Reset forgets every cooldown and quota counter.
func (f *Filter) Reset() {
	if f == nil {
		return
	}
	f.symMu.Lock()
	f.symbols = map[string]*symbolState{}
	f.symMu.Unlock()
	f.tierMu.Lock()
	f.tiers = map[models.Tier]*tierState{}
	f.tierMu.Unlock()
	if f.Logger != nil {
		f.Logger.Info("signal filter state reset")
	}
}

type TierUsage struct {
	Tier  models.Tier `json:"tier"`
	Day   string      `json:"day"`
	Used  int         `json:"used"`
	Limit int         `json:"limit"`
}

type SymbolCooldown struct {
	Symbol       string      `json:"symbol"`
	LastAccepted time.Time   `json:"last_accepted"`
	LastTier     models.Tier `json:"last_tier"`
	EligibleAt   time.Time   `json:"eligible_at"`
}

type State struct {
	Day       string           `json:"day"`
	Cooldown  string           `json:"cooldown"`
	Tiers     []TierUsage      `json:"tiers"`
	Cooldowns []SymbolCooldown `json:"cooldowns"`
}

// Snapshot reports current counters. Counters from an earlier day read as 0.
func (f *Filter) Snapshot() State {
	if f == nil {
		return State{}
	}
	now := f.now()
	day := f.dayKey(now)
	out := State{Day: day, Cooldown: f.Cooldown.String()}

	f.tierMu.RLock()
	for _, tier := range models.Tiers {
		usage := TierUsage{Tier: tier, Day: day, Limit: f.Quotas[tier]}
		if ts, ok := f.tiers[tier]; ok {
			ts.mu.Lock()
			if ts.day == day {
				usage.Used = ts.used
			}
			ts.mu.Unlock()
		}
		out.Tiers = append(out.Tiers, usage)
	}
	f.tierMu.RUnlock()

	f.symMu.RLock()
	for symbol, st := range f.symbols {
		st.mu.Lock()
		if !st.lastAccepted.IsZero() {
			out.Cooldowns = append(out.Cooldowns, SymbolCooldown{
				Symbol:       symbol,
				LastAccepted: st.lastAccepted,
				LastTier:     st.lastTier,
				EligibleAt:   st.lastAccepted.Add(f.Cooldown),
			})
		}
		st.mu.Unlock()
	}
	f.symMu.RUnlock()
	sort.Slice(out.Cooldowns, func(i, j int) bool { return out.Cooldowns[i].Symbol < out.Cooldowns[j].Symbol })
	return out
}
