package models

import "time"

// TraderWatch is a followed copy-trading lead portfolio and its running totals.
type TraderWatch struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	TraderID    string `gorm:"type:varchar(64);not null;uniqueIndex"`
	PortfolioID string `gorm:"type:varchar(64);not null"`
	Nickname    string `gorm:"type:varchar(120)"`
	Enabled     bool   `gorm:"not null;default:true;index"`

	MonitorIntervalSec int `gorm:"not null;default:60"`

	TodayCount  int    `gorm:"not null;default:0"`
	CountersDay string `gorm:"type:varchar(10)"`
	TotalCount  int64  `gorm:"not null;default:0"`

	LastCheckAt *time.Time `gorm:"type:timestamptz"`
	LastOrderAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TraderWatch) TableName() string {
	return "trader_watches"
}
