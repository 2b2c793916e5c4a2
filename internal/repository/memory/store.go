// Package memory is an in-process repository used for local runs and tests.
// It mirrors the conditional-write semantics of the postgres store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"signalflow/internal/models"
	"signalflow/internal/repository"
)

type Store struct {
	mu sync.Mutex

	signals      map[uint64]models.Signal
	nextSignalID uint64

	orders      []models.CopyOrder
	orderKeys   map[string]struct{}
	nextOrderID uint64

	traders map[string]models.TraderWatch

	outbox       map[uint64]models.NotificationOutbox
	outboxKeys   map[string]uint64
	nextOutboxID uint64

	settings map[string]models.SystemSetting

	now func() time.Time
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		signals:    map[uint64]models.Signal{},
		orderKeys:  map[string]struct{}{},
		traders:    map[string]models.TraderWatch{},
		outbox:     map[uint64]models.NotificationOutbox{},
		outboxKeys: map[string]uint64{},
		settings:   map[string]models.SystemSetting{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if item == nil {
		return nil
	}
	if !repository.ValidInsertStatus(item.Status) {
		return repository.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSignalID++
	item.ID = s.nextSignalID
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.signals[item.ID] = *item
	return nil
}

func (s *Store) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.signals[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	s.mu.Lock()
	items := s.filterSignals(params)
	s.mu.Unlock()

	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var less bool
		switch params.OrderBy {
		case "score":
			less = a.Score < b.Score
		case "id":
			less = a.ID < b.ID
		default:
			if a.CreatedAt.Equal(b.CreatedAt) {
				less = a.ID < b.ID
			} else {
				less = a.CreatedAt.Before(b.CreatedAt)
			}
		}
		if asc {
			return less
		}
		return !less
	})
	return page(items, params.Limit, params.Offset), nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterSignals(params))), nil
}

func (s *Store) filterSignals(params repository.ListSignalsParams) []models.Signal {
	out := make([]models.Signal, 0, len(s.signals))
	for _, it := range s.signals {
		if params.Symbol != nil && *params.Symbol != "" && !strings.EqualFold(it.Symbol, *params.Symbol) {
			continue
		}
		if params.Tier != nil && *params.Tier != "" && it.Tier != *params.Tier {
			continue
		}
		if params.Status != nil && *params.Status != "" && it.Status != *params.Status {
			continue
		}
		if params.Source != nil && *params.Source != "" && it.Source != *params.Source {
			continue
		}
		if params.Since != nil && it.CreatedAt.Before(*params.Since) {
			continue
		}
		if params.Until != nil && !it.CreatedAt.Before(*params.Until) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *Store) ListOpenSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	s.mu.Lock()
	out := make([]models.Signal, 0)
	for _, it := range s.signals {
		if !models.IsTerminalSignalStatus(it.Status) {
			out = append(out, it)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateSignalOutcome(ctx context.Context, outcome repository.SignalOutcome) (bool, error) {
	from := repository.Predecessors(outcome.Status)
	if len(from) == 0 {
		return false, repository.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.signals[outcome.ID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, st := range from {
		if item.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	item.Status = outcome.Status
	if outcome.FinalPrice != nil {
		v := *outcome.FinalPrice
		item.FinalPrice = &v
	}
	if outcome.PnLPercent != nil {
		v := *outcome.PnLPercent
		item.PnLPercent = &v
	}
	if outcome.OutcomeAt != nil {
		v := *outcome.OutcomeAt
		item.OutcomeAt = &v
	}
	if strings.TrimSpace(outcome.Notes) != "" {
		item.Notes = outcome.Notes
	}
	item.UpdatedAt = s.now()
	s.signals[item.ID] = item
	return true, nil
}

func orderKey(exchange, id string) string { return exchange + "\x00" + id }

func (s *Store) InsertCopyOrder(ctx context.Context, item *models.CopyOrder) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderKey(item.Exchange, item.ExchangeOrderID)
	if _, ok := s.orderKeys[key]; ok {
		return false, nil
	}
	s.nextOrderID++
	item.ID = s.nextOrderID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.orderKeys[key] = struct{}{}
	s.orders = append(s.orders, *item)
	return true, nil
}

func (s *Store) CopyOrderExists(ctx context.Context, exchange, exchangeOrderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orderKeys[orderKey(exchange, exchangeOrderID)]
	return ok, nil
}

func (s *Store) ListCopyOrders(ctx context.Context, params repository.ListCopyOrdersParams) ([]models.CopyOrder, error) {
	s.mu.Lock()
	items := s.filterOrders(params)
	s.mu.Unlock()
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return items[i].OrderTime.Before(items[j].OrderTime)
		}
		return items[i].OrderTime.After(items[j].OrderTime)
	})
	return page(items, params.Limit, params.Offset), nil
}

func (s *Store) CountCopyOrders(ctx context.Context, params repository.ListCopyOrdersParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterOrders(params))), nil
}

func (s *Store) filterOrders(params repository.ListCopyOrdersParams) []models.CopyOrder {
	out := make([]models.CopyOrder, 0, len(s.orders))
	for _, it := range s.orders {
		if params.TraderID != nil && *params.TraderID != "" && it.TraderID != *params.TraderID {
			continue
		}
		if params.Symbol != nil && *params.Symbol != "" && !strings.EqualFold(it.Symbol, *params.Symbol) {
			continue
		}
		if params.Since != nil && it.OrderTime.Before(*params.Since) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *Store) ListTraderWatches(ctx context.Context, enabledOnly bool) ([]models.TraderWatch, error) {
	s.mu.Lock()
	out := make([]models.TraderWatch, 0, len(s.traders))
	for _, it := range s.traders {
		if enabledOnly && !it.Enabled {
			continue
		}
		out = append(out, it)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TraderID < out[j].TraderID })
	return out, nil
}

func (s *Store) GetTraderWatch(ctx context.Context, traderID string) (*models.TraderWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.traders[strings.TrimSpace(traderID)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertTraderWatch(ctx context.Context, item *models.TraderWatch) error {
	if item == nil {
		return nil
	}
	item.TraderID = strings.TrimSpace(item.TraderID)
	if item.TraderID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.traders[item.TraderID]; ok {
		existing.PortfolioID = item.PortfolioID
		existing.Nickname = item.Nickname
		existing.Enabled = item.Enabled
		existing.MonitorIntervalSec = item.MonitorIntervalSec
		existing.UpdatedAt = now
		s.traders[item.TraderID] = existing
		*item = existing
		return nil
	}
	item.ID = uint64(len(s.traders) + 1)
	item.CreatedAt = now
	item.UpdatedAt = now
	s.traders[item.TraderID] = *item
	return nil
}

func (s *Store) IncrementTraderCounters(ctx context.Context, traderID string, orderTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.traders[traderID]
	if !ok {
		return nil
	}
	orderTime = orderTime.UTC()
	day := orderTime.Format("2006-01-02")
	if item.CountersDay == day {
		item.TodayCount++
	} else {
		item.TodayCount = 1
		item.CountersDay = day
	}
	item.TotalCount++
	if item.LastOrderAt == nil || orderTime.After(*item.LastOrderAt) {
		t := orderTime
		item.LastOrderAt = &t
	}
	item.UpdatedAt = s.now()
	s.traders[traderID] = item
	return nil
}

func (s *Store) TouchTraderCheck(ctx context.Context, traderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.traders[traderID]
	if !ok {
		return nil
	}
	t := at.UTC()
	item.LastCheckAt = &t
	s.traders[traderID] = item
	return nil
}

func (s *Store) EnqueueNotification(ctx context.Context, item *models.NotificationOutbox) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outboxKeys[item.DedupeKey]; ok {
		return false, nil
	}
	now := s.now()
	s.nextOutboxID++
	item.ID = s.nextOutboxID
	if item.Status == "" {
		item.Status = models.NotificationPending
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = now
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	s.outbox[item.ID] = *item
	s.outboxKeys[item.DedupeKey] = item.ID
	return true, nil
}

func (s *Store) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.NotificationOutbox, error) {
	s.mu.Lock()
	out := make([]models.NotificationOutbox, 0)
	for _, it := range s.outbox {
		if it.Status == models.NotificationPending && !it.NextAttemptAt.After(now) {
			out = append(out, it)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextAttemptAt.Equal(out[j].NextAttemptAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, id uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.outbox[id]
	if !ok || item.Status != models.NotificationPending {
		return nil
	}
	t := at.UTC()
	item.Status = models.NotificationSent
	item.SentAt = &t
	item.Attempts++
	item.LastError = ""
	item.UpdatedAt = s.now()
	s.outbox[id] = item
	return nil
}

func (s *Store) MarkNotificationRetry(ctx context.Context, id uint64, attempts int, next time.Time, lastErr string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.outbox[id]
	if !ok || item.Status != models.NotificationPending {
		return nil
	}
	item.Attempts = attempts
	item.NextAttemptAt = next.UTC()
	item.LastError = lastErr
	if failed {
		item.Status = models.NotificationFailed
	}
	item.UpdatedAt = s.now()
	s.outbox[id] = item
	return nil
}

// Notifications returns every outbox row ordered by ID.
func (s *Store) Notifications() []models.NotificationOutbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NotificationOutbox, 0, len(s.outbox))
	for _, it := range s.outbox {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.settings[item.Key]; ok {
		existing.Value = item.Value
		existing.Description = item.Description
		existing.UpdatedAt = now
		s.settings[item.Key] = existing
		return nil
	}
	item.ID = uint64(len(s.settings) + 1)
	item.CreatedAt = now
	item.UpdatedAt = now
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	s.mu.Lock()
	items := s.filterSettings(params)
	s.mu.Unlock()
	asc := params.Asc == nil || *params.Asc
	sort.Slice(items, func(i, j int) bool {
		if asc {
			return items[i].Key < items[j].Key
		}
		return items[i].Key > items[j].Key
	})
	return page(items, params.Limit, params.Offset), nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterSettings(params))), nil
}

func (s *Store) filterSettings(params repository.ListSystemSettingsParams) []models.SystemSetting {
	out := make([]models.SystemSetting, 0, len(s.settings))
	for _, it := range s.settings {
		if params.Prefix != nil && *params.Prefix != "" && !strings.HasPrefix(it.Key, *params.Prefix) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
