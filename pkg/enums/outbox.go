package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCart OutboxAggregateType = "cart"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCart,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a committed cart domain event.
type OutboxEventType string

const (
	EventCartCreated             OutboxEventType = "cart_created"
	EventMemberJoined            OutboxEventType = "member_joined"
	EventItemAdded               OutboxEventType = "item_added"
	EventItemRemoved             OutboxEventType = "item_removed"
	EventItemQuantityUpdated     OutboxEventType = "item_quantity_updated"
	EventCouponApplied           OutboxEventType = "coupon_applied"
	EventCouponRemoved           OutboxEventType = "coupon_removed"
	EventTipApplied              OutboxEventType = "tip_applied"
	EventCartLocked              OutboxEventType = "cart_locked"
	EventPricingFinalized        OutboxEventType = "pricing_finalized"
	EventQuoteUpdated            OutboxEventType = "quote_updated"
	EventOnlinePaymentSucceeded  OutboxEventType = "online_payment_succeeded"
	EventOnlinePaymentFailed     OutboxEventType = "online_payment_failed"
	EventCashOnDeliveryCommitted OutboxEventType = "cash_on_delivery_committed"
	EventReadyForConfirmation    OutboxEventType = "ready_for_confirmation"
	EventCartConverted           OutboxEventType = "cart_converted"
	EventCartExpired             OutboxEventType = "cart_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCartCreated,
	EventMemberJoined,
	EventItemAdded,
	EventItemRemoved,
	EventItemQuantityUpdated,
	EventCouponApplied,
	EventCouponRemoved,
	EventTipApplied,
	EventCartLocked,
	EventPricingFinalized,
	EventQuoteUpdated,
	EventOnlinePaymentSucceeded,
	EventOnlinePaymentFailed,
	EventCashOnDeliveryCommitted,
	EventReadyForConfirmation,
	EventCartConverted,
	EventCartExpired,
}

// OutboxEventTypes returns every known event type in declaration order.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, len(validOutboxEventTypes))
	copy(out, validOutboxEventTypes)
	return out
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
