package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
)

// CartCreatedEvent signals a new shared cart. Restaurant and share token
// details are read back from the aggregate when projecting.
type CartCreatedEvent struct {
	CartID       uuid.UUID `json:"cartId" validate:"required"`
	RestaurantID uuid.UUID `json:"restaurantId" validate:"required"`
	HostUserID   uuid.UUID `json:"hostUserId" validate:"required"`
}

// MemberJoinedEvent is emitted when a user joins through the share link.
type MemberJoinedEvent struct {
	CartID      uuid.UUID        `json:"cartId" validate:"required"`
	UserID      uuid.UUID        `json:"userId" validate:"required"`
	DisplayName string           `json:"displayName" validate:"required,max=120"`
	Role        enums.MemberRole `json:"role" validate:"required,oneof=host guest"`
}

// ItemAddedEvent references the committed item; snapshots live on the aggregate.
type ItemAddedEvent struct {
	CartID  uuid.UUID `json:"cartId" validate:"required"`
	ItemID  uuid.UUID `json:"itemId" validate:"required"`
	AddedBy uuid.UUID `json:"addedBy" validate:"required"`
}

type ItemRemovedEvent struct {
	CartID    uuid.UUID `json:"cartId" validate:"required"`
	ItemID    uuid.UUID `json:"itemId" validate:"required"`
	RemovedBy uuid.UUID `json:"removedBy" validate:"required"`
	ItemName  string    `json:"itemName,omitempty"`
}

type ItemQuantityUpdatedEvent struct {
	CartID    uuid.UUID `json:"cartId" validate:"required"`
	ItemID    uuid.UUID `json:"itemId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=99"`
	UpdatedBy uuid.UUID `json:"updatedBy" validate:"required"`
}

// CouponAppliedEvent carries the discount computed by the aggregate; the
// display code is looked up from the coupon record.
type CouponAppliedEvent struct {
	CartID         uuid.UUID       `json:"cartId" validate:"required"`
	CouponID       uuid.UUID       `json:"couponId" validate:"required"`
	DiscountAmount decimal.Decimal `json:"discountAmount" validate:"gte=0"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	AppliedBy      uuid.UUID       `json:"appliedBy" validate:"required"`
}

type CouponRemovedEvent struct {
	CartID    uuid.UUID  `json:"cartId" validate:"required"`
	CouponID  *uuid.UUID `json:"couponId,omitempty"`
	RemovedBy uuid.UUID  `json:"removedBy" validate:"required"`
}

type TipAppliedEvent struct {
	CartID    uuid.UUID       `json:"cartId" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
	Currency  string          `json:"currency" validate:"required,len=3"`
	AppliedBy uuid.UUID       `json:"appliedBy" validate:"required"`
}

// CartLockedEvent is emitted when the host locks the cart for payment.
type CartLockedEvent struct {
	CartID     uuid.UUID `json:"cartId" validate:"required"`
	HostUserID uuid.UUID `json:"hostUserId" validate:"required"`
}

// PricingFinalizedEvent carries the authoritative totals after locking.
type PricingFinalizedEvent struct {
	CartID                uuid.UUID       `json:"cartId" validate:"required"`
	Subtotal              decimal.Decimal `json:"subtotal" validate:"gte=0"`
	DeliveryFee           decimal.Decimal `json:"deliveryFee" validate:"gte=0"`
	Tax                   decimal.Decimal `json:"tax" validate:"gte=0"`
	Total                 decimal.Decimal `json:"total" validate:"gte=0"`
	CashOnDeliveryPortion decimal.Decimal `json:"cashOnDeliveryPortion" validate:"gte=0"`
	Currency              string          `json:"currency" validate:"required,len=3"`
}

// MemberQuote is one member's share of a recomputed quote.
type MemberQuote struct {
	UserID uuid.UUID       `json:"userId" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
}

// QuoteUpdatedEvent is a pricing recomputation; QuoteVersion orders competing quotes.
type QuoteUpdatedEvent struct {
	CartID       uuid.UUID     `json:"cartId" validate:"required"`
	QuoteVersion int64         `json:"quoteVersion" validate:"min=1"`
	Currency     string        `json:"currency" validate:"required,len=3"`
	Quotes       []MemberQuote `json:"quotes" validate:"dive"`
}

type OnlinePaymentSucceededEvent struct {
	CartID         uuid.UUID       `json:"cartId" validate:"required"`
	UserID         uuid.UUID       `json:"userId" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	TransactionRef string          `json:"transactionRef" validate:"required"`
}

type OnlinePaymentFailedEvent struct {
	CartID uuid.UUID `json:"cartId" validate:"required"`
	UserID uuid.UUID `json:"userId" validate:"required"`
	Reason string    `json:"reason,omitempty"`
}

type CashOnDeliveryCommittedEvent struct {
	CartID   uuid.UUID       `json:"cartId" validate:"required"`
	UserID   uuid.UUID       `json:"userId" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"gte=0"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

// ReadyForConfirmationEvent fires once every member has committed payment.
type ReadyForConfirmationEvent struct {
	CartID uuid.UUID `json:"cartId" validate:"required"`
}

// CartConvertedEvent reports the cart became an order; the view is retired.
type CartConvertedEvent struct {
	CartID  uuid.UUID `json:"cartId" validate:"required"`
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

type CartExpiredEvent struct {
	CartID    uuid.UUID `json:"cartId" validate:"required"`
	ExpiredAt time.Time `json:"expiredAt"`
}
