package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coupon is a restaurant-scoped (or platform-wide when RestaurantID is nil) discount code.
type Coupon struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RestaurantID *uuid.UUID      `gorm:"column:restaurant_id;type:uuid;index"`
	Code         string          `gorm:"column:code;not null"`
	Description  string          `gorm:"column:description"`
	MinSubtotal  decimal.Decimal `gorm:"column:min_subtotal;type:numeric(12,2);not null;default:0"`
	Currency     string          `gorm:"column:currency;not null;default:'USD'"`
	Active       bool            `gorm:"column:active;not null;default:true"`
	ExpiresAt    *time.Time      `gorm:"column:expires_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Coupon) TableName() string { return "coupons" }
