package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"signalflow/internal/metrics"
	"signalflow/internal/models"
)

// Event is one message on the live stream.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// SignalEvent is the streamed view of an accepted signal.
type SignalEvent struct {
	ID         uint64  `json:"id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Source     string  `json:"source"`
	Timeframe  string  `json:"timeframe"`
	Tier       string  `json:"tier"`
	Score      int     `json:"score"`
	Status     string  `json:"status"`
	EntryPrice string  `json:"entry_price"`
	StopLoss   string  `json:"stop_loss"`
	TakeProfit string  `json:"take_profit"`
	Confidence float64 `json:"confidence"`
}

// Broadcaster fans events out to stream subscribers. A subscriber whose buffer
// is full misses the event; Publish never blocks.
type Broadcaster struct {
	Buffer  int
	Metrics *metrics.Metrics

	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped uint64
}

func NewBroadcaster(buffer int, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{Buffer: buffer, Metrics: m, subs: map[uint64]chan Event{}}
}

// Subscribe registers a listener. The returned cancel func closes the channel
// and is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	buf := b.Buffer
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = map[uint64]chan Event{}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()
	b.Metrics.StreamClients(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
			b.Metrics.StreamClients(-1)
		})
	}
}

func (b *Broadcaster) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

// PublishSignal announces a newly accepted signal.
func (b *Broadcaster) PublishSignal(sig models.Signal) {
	b.Publish(Event{Type: "signal", At: sig.CreatedAt, Data: signalEvent(sig)})
}

// PublishTransition announces a lifecycle status change.
func (b *Broadcaster) PublishTransition(sig models.Signal) {
	at := sig.UpdatedAt
	if sig.OutcomeAt != nil {
		at = *sig.OutcomeAt
	}
	b.Publish(Event{Type: "signal_update", At: at, Data: signalEvent(sig)})
}

func signalEvent(sig models.Signal) SignalEvent {
	return SignalEvent{
		ID:         sig.ID,
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Source:     sig.Source,
		Timeframe:  sig.Timeframe,
		Tier:       sig.Tier,
		Score:      sig.Score,
		Status:     sig.Status,
		EntryPrice: sig.EntryPrice.String(),
		StopLoss:   sig.StopLoss.String(),
		TakeProfit: sig.TakeProfit.String(),
		Confidence: sig.Confidence,
	}
}

func (b *Broadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return atomic.LoadUint64(&b.dropped)
}
