package cartview

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
)

// View is the denormalized cart document read by clients. Version and
// QuoteVersion are the freshness tokens clients compare.
type View struct {
	CartID           uuid.UUID            `json:"cartId"`
	RestaurantID     uuid.UUID            `json:"restaurantId"`
	RestaurantName   string               `json:"restaurantName"`
	HostUserID       uuid.UUID            `json:"hostUserId"`
	Status           enums.CartStatus     `json:"status"`
	Version          int64                `json:"version"`
	QuoteVersion     int64                `json:"quoteVersion"`
	Items            map[uuid.UUID]Item   `json:"items"`
	Members          map[uuid.UUID]Member `json:"members"`
	CouponCode       *string              `json:"couponCode,omitempty"`
	DiscountAmount   *decimal.Decimal     `json:"discountAmount,omitempty"`
	DiscountCurrency *string              `json:"discountCurrency,omitempty"`
	TipAmount        decimal.Decimal      `json:"tipAmount"`
	TipCurrency      string               `json:"tipCurrency,omitempty"`
	Subtotal         decimal.Decimal      `json:"subtotal"`
	DeliveryFee      decimal.Decimal      `json:"deliveryFee"`
	Tax              decimal.Decimal      `json:"tax"`
	Total            decimal.Decimal      `json:"total"`
	CashOnDelivery   decimal.Decimal      `json:"cashOnDeliveryPortion"`
	Currency         string               `json:"currency"`
	MaskedShareToken string               `json:"maskedShareToken"`
	ExpiresAt        *time.Time           `json:"expiresAt,omitempty"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// Item is a line snapshot. LineTotal is derived from price, modifiers and quantity.
type Item struct {
	ItemID         uuid.UUID       `json:"itemId"`
	AddedBy        uuid.UUID       `json:"addedBy"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	Customizations []Customization `json:"customizations"`
}

type Customization struct {
	Group      string          `json:"group"`
	Choice     string          `json:"choice"`
	PriceDelta decimal.Decimal `json:"priceDelta"`
}

type Member struct {
	UserID               uuid.UUID                 `json:"userId"`
	DisplayName          string                    `json:"displayName"`
	Role                 enums.MemberRole          `json:"role"`
	PaymentStatus        enums.MemberPaymentStatus `json:"paymentStatus"`
	CommittedAmount      decimal.Decimal           `json:"committedAmount"`
	OnlineTransactionRef *string                   `json:"onlineTransactionRef,omitempty"`
	QuotedAmount         *decimal.Decimal          `json:"quotedAmount,omitempty"`
}

type Coupon struct {
	Code     string
	Amount   decimal.Decimal
	Currency string
}

// Pricing is the authoritative set of totals produced once the cart is locked.
type Pricing struct {
	Subtotal       decimal.Decimal
	DeliveryFee    decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	CashOnDelivery decimal.Decimal
	Currency       string
}

// Quote is one pricing recomputation. Amounts are keyed by member user id.
type Quote struct {
	Version  int64
	Currency string
	Amounts  map[uuid.UUID]decimal.Decimal
}

// NewItem builds an item snapshot with its line total computed.
func NewItem(itemID, addedBy uuid.UUID, name string, quantity int, unitPrice decimal.Decimal, customizations []Customization) Item {
	item := Item{
		ItemID:         itemID,
		AddedBy:        addedBy,
		Name:           name,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		Customizations: customizations,
	}
	if item.Customizations == nil {
		item.Customizations = []Customization{}
	}
	item.LineTotal = item.lineTotal()
	return item
}

func (i Item) lineTotal() decimal.Decimal {
	each := i.UnitPrice
	for _, c := range i.Customizations {
		each = each.Add(c.PriceDelta)
	}
	return each.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// ItemsSubtotal sums line totals. It is a local estimate; Subtotal is only set by pricing.
func (v *View) ItemsSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range v.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// MaskShareToken keeps only the last four characters of a share token.
func MaskShareToken(token string) string {
	runes := []rune(token)
	if len(runes) <= 4 {
		return "***"
	}
	return "***" + string(runes[len(runes)-4:])
}
