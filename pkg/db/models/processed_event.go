package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedEvent is a deduplication ledger row: the handler fully applied the event.
type ProcessedEvent struct {
	EventID     uuid.UUID `gorm:"column:event_id;type:uuid;primaryKey"`
	HandlerName string    `gorm:"column:handler_name;primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
