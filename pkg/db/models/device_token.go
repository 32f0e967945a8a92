package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceToken is an FCM registration token owned by a user.
type DeviceToken struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Token      string    `gorm:"column:token;not null;uniqueIndex:ux_device_tokens_token"`
	Platform   string    `gorm:"column:platform;not null;default:'android'"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;autoCreateTime"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (DeviceToken) TableName() string { return "device_tokens" }
