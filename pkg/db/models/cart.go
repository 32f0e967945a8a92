package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
)

// Cart is the source-of-truth shared cart owned by the cart aggregate service.
// The projector reads it but never writes it.
type Cart struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	RestaurantID uuid.UUID        `gorm:"column:restaurant_id;type:uuid;not null"`
	Restaurant   *Restaurant      `gorm:"foreignKey:RestaurantID"`
	HostUserID   uuid.UUID        `gorm:"column:host_user_id;type:uuid;not null"`
	Status       enums.CartStatus `gorm:"column:status;not null;default:'open'"`
	ShareToken   string           `gorm:"column:share_token;not null"`
	Currency     string           `gorm:"column:currency;not null;default:'USD'"`
	CouponID     *uuid.UUID       `gorm:"column:coupon_id;type:uuid"`
	ExpiresAt    time.Time        `gorm:"column:expires_at;not null"`
	Members      []CartMember     `gorm:"foreignKey:CartID"`
	Items        []CartItem       `gorm:"foreignKey:CartID"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Cart) TableName() string { return "carts" }

// CartMember is a participant of a shared cart.
type CartMember struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	CartID        uuid.UUID                 `gorm:"column:cart_id;type:uuid;not null;index"`
	UserID        uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	DisplayName   string                    `gorm:"column:display_name;not null"`
	Role          enums.MemberRole          `gorm:"column:role;not null"`
	PaymentStatus enums.MemberPaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	JoinedAt      time.Time                 `gorm:"column:joined_at;autoCreateTime"`
}

func (CartMember) TableName() string { return "cart_members" }

// CartItem is a line added by a member, with name and price snapshots taken at add time.
type CartItem struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID               `gorm:"column:cart_id;type:uuid;not null;index"`
	MenuItemID     uuid.UUID               `gorm:"column:menu_item_id;type:uuid;not null"`
	AddedBy        uuid.UUID               `gorm:"column:added_by;type:uuid;not null"`
	Name           string                  `gorm:"column:name;not null"`
	Quantity       int                     `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal         `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Customizations []CartItemCustomization `gorm:"foreignKey:CartItemID"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (CartItem) TableName() string { return "cart_items" }

// CartItemCustomization snapshots one selected modifier choice.
type CartItemCustomization struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartItemID uuid.UUID       `gorm:"column:cart_item_id;type:uuid;not null;index"`
	GroupName  string          `gorm:"column:group_name;not null"`
	ChoiceName string          `gorm:"column:choice_name;not null"`
	PriceDelta decimal.Decimal `gorm:"column:price_delta;type:numeric(12,2);not null;default:0"`
}

func (CartItemCustomization) TableName() string { return "cart_item_customizations" }

// Restaurant carries the fields denormalized into the cart view.
type Restaurant struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;not null"`
}

func (Restaurant) TableName() string { return "restaurants" }
