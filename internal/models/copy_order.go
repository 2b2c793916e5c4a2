package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionOpenLong   = "OPEN_LONG"
	ActionOpenShort  = "OPEN_SHORT"
	ActionCloseLong  = "CLOSE_LONG"
	ActionCloseShort = "CLOSE_SHORT"
	ActionUnknown    = "UNKNOWN"
)

// CopyOrder is an order executed by a watched trader. Rows are append-only.
type CopyOrder struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	TraderID        string `gorm:"type:varchar(64);not null;index"`
	Exchange        string `gorm:"type:varchar(20);not null;uniqueIndex:ux_copy_orders_exchange_order"`
	ExchangeOrderID string `gorm:"type:varchar(160);not null;uniqueIndex:ux_copy_orders_exchange_order"`

	Symbol       string `gorm:"type:varchar(30);not null;index"`
	Side         string `gorm:"type:varchar(10);not null"`
	PositionSide string `gorm:"type:varchar(10)"`
	ActionType   string `gorm:"type:varchar(20);not null"`

	ExecutedQty decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	AvgPrice    decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	RealizedPnL *decimal.Decimal `gorm:"type:numeric(30,10)"`

	OrderTime time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (CopyOrder) TableName() string {
	return "copy_orders"
}
