package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// NotificationOutbox holds rendered mails waiting for the dispatcher.
type NotificationOutbox struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"type:varchar(30);not null;index"`
	RefID     string `gorm:"type:varchar(64);not null"`
	DedupeKey string `gorm:"type:varchar(160);not null;uniqueIndex"`

	// Audience is the lead trader whose followers are resolved at send time.
	Audience   string         `gorm:"type:varchar(64);index"`
	Recipients datatypes.JSON `gorm:"type:jsonb;not null"`
	Subject    string         `gorm:"type:varchar(255);not null"`
	Body       string         `gorm:"type:text;not null"`

	Status        string     `gorm:"type:varchar(10);not null;default:'pending';index"`
	Attempts      int        `gorm:"not null;default:0"`
	NextAttemptAt time.Time  `gorm:"type:timestamptz;not null;index"`
	LastError     string     `gorm:"type:text"`
	SentAt        *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (NotificationOutbox) TableName() string {
	return "notification_outbox"
}
