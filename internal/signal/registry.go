package signal

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"signalflow/internal/models"
)

// Registry runs detectors in registration order. A panicking detector is
// logged and counted; its siblings still run.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
	stats     map[string]*detectorStats

	logger *zap.Logger
}

type detectorStats struct {
	runs    uint64
	emitted uint64
	panics  uint64
}

type DetectorStats struct {
	Name    string `json:"name"`
	Runs    uint64 `json:"runs"`
	Emitted uint64 `json:"emitted"`
	Panics  uint64 `json:"panics"`
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		stats:  map[string]*detectorStats{},
		logger: logger,
	}
}

// Register adds d, replacing an earlier detector with the same name in place.
func (r *Registry) Register(d Detector) {
	if r == nil || d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.detectors {
		if existing.Name() == d.Name() {
			r.detectors[i] = d
			return
		}
	}
	r.detectors = append(r.detectors, d)
	if _, ok := r.stats[d.Name()]; !ok {
		r.stats[d.Name()] = &detectorStats{}
	}
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d.Name())
	}
	return out
}

// Run returns the candidates of every detector for symbol. Candidates without
// a tradable direction or entry are dropped.
func (r *Registry) Run(symbol string, snap models.MarketSnapshot) []models.Candidate {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	detectors := make([]Detector, len(r.detectors))
	copy(detectors, r.detectors)
	r.mu.RUnlock()

	out := make([]models.Candidate, 0, len(detectors))
	for _, d := range detectors {
		st := r.statsFor(d.Name())
		atomic.AddUint64(&st.runs, 1)
		c, err := r.detect(d, symbol, snap)
		if err != nil {
			atomic.AddUint64(&st.panics, 1)
			if r.logger != nil {
				r.logger.Error("detector panicked", zap.String("detector", d.Name()), zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}
		if c == nil || c.Entry <= 0 {
			continue
		}
		if c.Direction != models.DirectionBuy && c.Direction != models.DirectionSell {
			continue
		}
		if c.Source == "" {
			c.Source = d.Name()
		}
		if c.Symbol == "" {
			c.Symbol = symbol
		}
		atomic.AddUint64(&st.emitted, 1)
		out = append(out, *c)
	}
	return out
}

func (r *Registry) detect(d Detector, symbol string, snap models.MarketSnapshot) (c *models.Candidate, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Detect(symbol, snap), nil
}

func (r *Registry) statsFor(name string) *detectorStats {
	r.mu.RLock()
	st, ok := r.stats[name]
	r.mu.RUnlock()
	if ok {
		return st
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok = r.stats[name]; ok {
		return st
	}
	st = &detectorStats{}
	r.stats[name] = st
	return st
}

func (r *Registry) Stats() []DetectorStats {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DetectorStats, 0, len(r.detectors))
	for _, d := range r.detectors {
		st := r.stats[d.Name()]
		if st == nil {
			continue
		}
		out = append(out, DetectorStats{
			Name:    d.Name(),
			Runs:    atomic.LoadUint64(&st.runs),
			Emitted: atomic.LoadUint64(&st.emitted),
			Panics:  atomic.LoadUint64(&st.panics),
		})
	}
	return out
}

// Default registers the six built-in models with their default parameters.
func Default(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(&TrendMomentum{})
	r.Register(&WhaleFlow{})
	r.Register(&VolatilityBreakout{})
	r.Register(&KeyLevel{})
	r.Register(&SentimentExtreme{})
	r.Register(&CrossAsset{})
	return r
}
