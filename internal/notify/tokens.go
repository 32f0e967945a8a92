package notify

import (
	"context"

	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenRepository exposes the device tokens registered for cart members.
type TokenRepository interface {
	ListTokens(ctx context.Context, userIDs []uuid.UUID) ([]models.DeviceToken, error)
	DeleteTokens(ctx context.Context, tokens []string) error
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository returns a device token repository bound to the provided database.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) ListTokens(ctx context.Context, userIDs []uuid.UUID) ([]models.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []models.DeviceToken
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("last_seen_at DESC").
		Find(&tokens).Error
	return tokens, err
}

func (r *tokenRepository) DeleteTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("token IN ?", tokens).
		Delete(&models.DeviceToken{}).Error
}
