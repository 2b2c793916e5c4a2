package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalflow/internal/models"
	"signalflow/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

// --- signals ------------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if !repository.ValidInsertStatus(item.Status) {
		return repository.ErrInvalidStatus
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Model(&models.Signal{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := signalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := signalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func signalFilters(query *gorm.DB, params repository.ListSignalsParams) *gorm.DB {
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.Tier != nil && strings.TrimSpace(*params.Tier) != "" {
		query = query.Where("tier = ?", strings.TrimSpace(*params.Tier))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("created_at < ?", *params.Until)
	}
	return query
}

func (s *Store) ListOpenSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Signal
	err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("status IN ?", []string{models.SignalStatusPending, models.SignalStatusActive}).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateSignalOutcome(ctx context.Context, outcome repository.SignalOutcome) (bool, error) {
	if s == nil || s.db == nil || outcome.ID == 0 {
		return false, nil
	}
	from := repository.Predecessors(outcome.Status)
	if len(from) == 0 {
		return false, repository.ErrInvalidStatus
	}
	updates := map[string]any{
		"status":     outcome.Status,
		"updated_at": time.Now().UTC(),
	}
	if outcome.FinalPrice != nil {
		updates["final_price"] = *outcome.FinalPrice
	}
	if outcome.PnLPercent != nil {
		updates["pnl_percent"] = *outcome.PnLPercent
	}
	if outcome.OutcomeAt != nil {
		updates["outcome_at"] = *outcome.OutcomeAt
	}
	if strings.TrimSpace(outcome.Notes) != "" {
		updates["notes"] = outcome.Notes
	}
	res := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", outcome.ID).
		Where("status IN ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// --- copy trading -------------------------------------------------------------

func (s *Store) InsertCopyOrder(ctx context.Context, item *models.CopyOrder) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exchange"}, {Name: "exchange_order_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) CopyOrderExists(ctx context.Context, exchange, exchangeOrderID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.CopyOrder{}).
		Where("exchange = ? AND exchange_order_id = ?", exchange, exchangeOrderID).
		Limit(1).
		Count(&total).Error
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

func (s *Store) ListCopyOrders(ctx context.Context, params repository.ListCopyOrdersParams) ([]models.CopyOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := copyOrderFilters(s.db.WithContext(ctx).Model(&models.CopyOrder{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "order_time")
	var items []models.CopyOrder
	err := query.Limit(normalizeLimit(params.Limit, 50)).Offset(normalizeOffset(params.Offset)).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountCopyOrders(ctx context.Context, params repository.ListCopyOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := copyOrderFilters(s.db.WithContext(ctx).Model(&models.CopyOrder{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func copyOrderFilters(query *gorm.DB, params repository.ListCopyOrdersParams) *gorm.DB {
	if params.TraderID != nil && strings.TrimSpace(*params.TraderID) != "" {
		query = query.Where("trader_id = ?", strings.TrimSpace(*params.TraderID))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("order_time >= ?", *params.Since)
	}
	return query
}

func (s *Store) ListTraderWatches(ctx context.Context, enabledOnly bool) ([]models.TraderWatch, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TraderWatch{})
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	var items []models.TraderWatch
	if err := query.Order("trader_id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetTraderWatch(ctx context.Context, traderID string) (*models.TraderWatch, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	traderID = strings.TrimSpace(traderID)
	if traderID == "" {
		return nil, nil
	}
	var item models.TraderWatch
	err := s.db.WithContext(ctx).Model(&models.TraderWatch{}).Where("trader_id = ?", traderID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertTraderWatch(ctx context.Context, item *models.TraderWatch) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.TraderID = strings.TrimSpace(item.TraderID)
	if item.TraderID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trader_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"portfolio_id",
			"nickname",
			"enabled",
			"monitor_interval_sec",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) IncrementTraderCounters(ctx context.Context, traderID string, orderTime time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	orderTime = orderTime.UTC()
	day := orderTime.Format("2006-01-02")
	return s.db.WithContext(ctx).
		Model(&models.TraderWatch{}).
		Where("trader_id = ?", traderID).
		Updates(map[string]any{
			"today_count":   gorm.Expr("CASE WHEN counters_day = ? THEN today_count + 1 ELSE 1 END", day),
			"counters_day":  day,
			"total_count":   gorm.Expr("total_count + 1"),
			"last_order_at": gorm.Expr("GREATEST(COALESCE(last_order_at, ?), ?)", orderTime, orderTime),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (s *Store) TouchTraderCheck(ctx context.Context, traderID string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TraderWatch{}).
		Where("trader_id = ?", traderID).
		Update("last_check_at", at.UTC()).Error
}

// --- outbox ---------------------------------------------------------------------

func (s *Store) EnqueueNotification(ctx context.Context, item *models.NotificationOutbox) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	if item.Status == "" {
		item.Status = models.NotificationPending
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.NotificationOutbox, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.NotificationOutbox
	err := s.db.WithContext(ctx).
		Model(&models.NotificationOutbox{}).
		Where("status = ?", models.NotificationPending).
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at asc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, id uint64, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.NotificationOutbox{}).
		Where("id = ? AND status = ?", id, models.NotificationPending).
		Updates(map[string]any{
			"status":     models.NotificationSent,
			"sent_at":    at.UTC(),
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) MarkNotificationRetry(ctx context.Context, id uint64, attempts int, next time.Time, lastErr string, failed bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	status := models.NotificationPending
	if failed {
		status = models.NotificationFailed
	}
	return s.db.WithContext(ctx).
		Model(&models.NotificationOutbox{}).
		Where("id = ? AND status = ?", id, models.NotificationPending).
		Updates(map[string]any{
			"status":          status,
			"attempts":        attempts,
			"next_attempt_at": next.UTC(),
			"last_error":      lastErr,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// --- system settings ------------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- helpers ------------------------------------------------------------------

var orderableColumns = map[string]struct{}{
	"id": {}, "created_at": {}, "updated_at": {}, "score": {}, "symbol": {},
	"tier": {}, "status": {}, "order_time": {}, "key": {},
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if _, ok := orderableColumns[column]; !ok {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction).Order("id " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
