package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/groupcart-backend/pkg/db"
	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
)

// GormLedger stores ledger entries in processed_events. The composite primary
// key makes a concurrent duplicate insert fail instead of double counting.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) HasProcessed(ctx context.Context, eventID uuid.UUID, handler string) (bool, error) {
	if err := validateKey(eventID, handler); err != nil {
		return false, err
	}
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ? AND handler_name = ?", eventID, handler).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *GormLedger) MarkProcessed(ctx context.Context, eventID uuid.UUID, handler string) error {
	if err := validateKey(eventID, handler); err != nil {
		return err
	}
	entry := models.ProcessedEvent{
		EventID:     eventID,
		HandlerName: handler,
		ProcessedAt: time.Now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return ErrAlreadyProcessed
		}
		return err
	}
	return nil
}

// PurgeBefore drops entries older than cutoff and reports how many were removed.
func (l *GormLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
