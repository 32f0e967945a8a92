package projection

import "github.com/angelmondragon/groupcart-backend/pkg/enums"

// Handler names are ledger keys; renaming one makes already-processed events
// eligible again.
const (
	handlerCartCreated             = "cartview.cart_created"
	handlerMemberJoined            = "cartview.member_joined"
	handlerItemAdded               = "cartview.item_added"
	handlerItemRemoved             = "cartview.item_removed"
	handlerItemQuantityUpdated     = "cartview.item_quantity_updated"
	handlerCouponApplied           = "cartview.coupon_applied"
	handlerCouponRemoved           = "cartview.coupon_removed"
	handlerTipApplied              = "cartview.tip_applied"
	handlerCartLocked              = "cartview.cart_locked"
	handlerPricingFinalized        = "cartview.pricing_finalized"
	handlerQuoteUpdated            = "cartview.quote_updated"
	handlerOnlinePaymentSucceeded  = "cartview.online_payment_succeeded"
	handlerOnlinePaymentFailed     = "cartview.online_payment_failed"
	handlerCashOnDeliveryCommitted = "cartview.cash_on_delivery_committed"
	handlerReadyForConfirmation    = "cartview.ready_for_confirmation"
	handlerCartConverted           = "cartview.cart_converted"
	handlerCartExpired             = "cartview.cart_expired"
	handlerCouponSuggestions       = "suggestions.item_added"
)

// NewRegistry builds the static dispatch table. suggestions may be nil to
// disable coupon suggestions.
func NewRegistry(h *Handlers, suggestions *Suggestions) Registry {
	reg := Registry{
		enums.EventCartCreated:             {{Name: handlerCartCreated, Handle: h.CartCreated}},
		enums.EventMemberJoined:            {{Name: handlerMemberJoined, Handle: h.MemberJoined}},
		enums.EventItemAdded:               {{Name: handlerItemAdded, Handle: h.ItemAdded}},
		enums.EventItemRemoved:             {{Name: handlerItemRemoved, Handle: h.ItemRemoved}},
		enums.EventItemQuantityUpdated:     {{Name: handlerItemQuantityUpdated, Handle: h.ItemQuantityUpdated}},
		enums.EventCouponApplied:           {{Name: handlerCouponApplied, Handle: h.CouponApplied}},
		enums.EventCouponRemoved:           {{Name: handlerCouponRemoved, Handle: h.CouponRemoved}},
		enums.EventTipApplied:              {{Name: handlerTipApplied, Handle: h.TipApplied}},
		enums.EventCartLocked:              {{Name: handlerCartLocked, Handle: h.CartLocked}},
		enums.EventPricingFinalized:        {{Name: handlerPricingFinalized, Handle: h.PricingFinalized}},
		enums.EventQuoteUpdated:            {{Name: handlerQuoteUpdated, Handle: h.QuoteUpdated}},
		enums.EventOnlinePaymentSucceeded:  {{Name: handlerOnlinePaymentSucceeded, Handle: h.OnlinePaymentSucceeded}},
		enums.EventOnlinePaymentFailed:     {{Name: handlerOnlinePaymentFailed, Handle: h.OnlinePaymentFailed}},
		enums.EventCashOnDeliveryCommitted: {{Name: handlerCashOnDeliveryCommitted, Handle: h.CashOnDeliveryCommitted}},
		enums.EventReadyForConfirmation:    {{Name: handlerReadyForConfirmation, Handle: h.ReadyForConfirmation}},
		enums.EventCartConverted:           {{Name: handlerCartConverted, Handle: h.CartConverted}},
		enums.EventCartExpired:             {{Name: handlerCartExpired, Handle: h.CartExpired}},
	}
	if suggestions != nil {
		reg[enums.EventItemAdded] = append(reg[enums.EventItemAdded], Binding{
			Name:       handlerCouponSuggestions,
			Handle:     suggestions.ItemAdded,
			BestEffort: true,
		})
	}
	return reg
}
