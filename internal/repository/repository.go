package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"signalflow/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidStatus = errors.New("invalid signal status")
	ErrDuplicate     = errors.New("duplicate record")
)

type SignalRepository interface {
	// InsertSignal assigns the ID. Only PENDING and ACTIVE are accepted at creation.
	InsertSignal(ctx context.Context, item *models.Signal) error
	GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	// ListOpenSignals returns PENDING and ACTIVE signals, oldest first.
	ListOpenSignals(ctx context.Context, limit int) ([]models.Signal, error)
	// UpdateSignalOutcome is the only write path after insert. It applies the
	// change only when the stored status may legally move to outcome.Status and
	// reports whether a row changed.
	UpdateSignalOutcome(ctx context.Context, outcome SignalOutcome) (bool, error)
}

type CopyTradeRepository interface {
	// InsertCopyOrder reports false when (exchange, exchange_order_id) already exists.
	InsertCopyOrder(ctx context.Context, item *models.CopyOrder) (bool, error)
	CopyOrderExists(ctx context.Context, exchange, exchangeOrderID string) (bool, error)
	ListCopyOrders(ctx context.Context, params ListCopyOrdersParams) ([]models.CopyOrder, error)
	CountCopyOrders(ctx context.Context, params ListCopyOrdersParams) (int64, error)

	ListTraderWatches(ctx context.Context, enabledOnly bool) ([]models.TraderWatch, error)
	GetTraderWatch(ctx context.Context, traderID string) (*models.TraderWatch, error)
	UpsertTraderWatch(ctx context.Context, item *models.TraderWatch) error
	IncrementTraderCounters(ctx context.Context, traderID string, orderTime time.Time) error
	TouchTraderCheck(ctx context.Context, traderID string, at time.Time) error
}

type OutboxRepository interface {
	// EnqueueNotification reports false when the dedupe key is already queued.
	EnqueueNotification(ctx context.Context, item *models.NotificationOutbox) (bool, error)
	ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.NotificationOutbox, error)
	MarkNotificationSent(ctx context.Context, id uint64, at time.Time) error
	MarkNotificationRetry(ctx context.Context, id uint64, attempts int, next time.Time, lastErr string, failed bool) error
}

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

// Repository is everything the pipeline persists.
type Repository interface {
	SignalRepository
	CopyTradeRepository
	OutboxRepository
	SettingsRepository
}

type SignalOutcome struct {
	ID         uint64
	Status     string
	FinalPrice *decimal.Decimal
	PnLPercent *decimal.Decimal
	OutcomeAt  *time.Time
	Notes      string
}

type ListSignalsParams struct {
	Limit   int
	Offset  int
	Symbol  *string
	Tier    *string
	Status  *string
	Source  *string
	Since   *time.Time
	Until   *time.Time
	OrderBy string
	Asc     *bool
}

type ListCopyOrdersParams struct {
	Limit    int
	Offset   int
	TraderID *string
	Symbol   *string
	Since    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}

// ValidInsertStatus reports whether a new signal may be created with status.
func ValidInsertStatus(status string) bool {
	return status == models.SignalStatusPending || status == models.SignalStatusActive
}

// Predecessors lists the statuses a signal may hold right before moving to next.
// Terminal statuses have no successors, so they never appear here.
func Predecessors(next string) []string {
	switch next {
	case models.SignalStatusActive:
		return []string{models.SignalStatusPending}
	case models.SignalStatusClosed, models.SignalStatusExpired:
		return []string{models.SignalStatusPending, models.SignalStatusActive}
	default:
		return nil
	}
}
