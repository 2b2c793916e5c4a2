package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SignalStatusPending = "PENDING"
	SignalStatusActive  = "ACTIVE"
	SignalStatusClosed  = "CLOSED"
	SignalStatusExpired = "EXPIRED"
)

// IsTerminalSignalStatus reports whether no further transitions are allowed.
func IsTerminalSignalStatus(status string) bool {
	return status == SignalStatusClosed || status == SignalStatusExpired
}

// Signal is an accepted trading signal. Only the lifecycle tracker (or a manual
// close) changes it after insert.
type Signal struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol    string `gorm:"type:varchar(30);not null;index"`
	Direction string `gorm:"type:varchar(4);not null"`
	Source    string `gorm:"type:varchar(50);not null;index"`
	Timeframe string `gorm:"type:varchar(8)"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	StopLoss   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TakeProfit decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Score      int     `gorm:"not null"`
	Tier       string  `gorm:"type:varchar(10);not null;index"`
	Status     string  `gorm:"type:varchar(10);not null;index"`
	Strength   float64 `gorm:"not null"`
	Confidence float64 `gorm:"not null"`

	Reasoning string         `gorm:"type:text"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	Notes     string         `gorm:"type:text"`

	FinalPrice *decimal.Decimal `gorm:"type:numeric(30,10)"`
	PnLPercent *decimal.Decimal `gorm:"type:numeric(12,4)"`
	OutcomeAt  *time.Time       `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Signal) TableName() string {
	return "trading_signals"
}
