package notify

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
)

// renderText builds the visible title and body for hybrid pushes.
func renderText(nc NotificationContext) (string, string) {
	actor := strings.TrimSpace(nc.ActorName)
	if actor == "" {
		actor = "Someone"
	}
	switch nc.EventType {
	case enums.EventMemberJoined:
		return "New member", fmt.Sprintf("%s joined the group cart", actor)
	case enums.EventItemAdded:
		return "Item added", fmt.Sprintf("%s added %s", actor, itemOrDefault(nc.ItemName))
	case enums.EventItemRemoved:
		return "Item removed", fmt.Sprintf("%s removed %s", actor, itemOrDefault(nc.ItemName))
	case enums.EventCouponApplied:
		if nc.CouponCode != "" {
			return "Coupon applied", fmt.Sprintf("%s applied coupon %s", actor, nc.CouponCode)
		}
		return "Coupon applied", fmt.Sprintf("%s applied a coupon", actor)
	case enums.EventCouponRemoved:
		return "Coupon removed", fmt.Sprintf("%s removed the coupon", actor)
	case enums.EventTipApplied:
		return "Tip updated", fmt.Sprintf("Tip set to %s", money(nc))
	case enums.EventCartLocked:
		return "Time to pay", "The host locked the cart. Pay your share to place the order."
	case enums.EventOnlinePaymentFailed:
		if nc.Reason != "" {
			return "Payment failed", fmt.Sprintf("Your payment did not go through: %s", nc.Reason)
		}
		return "Payment failed", "Your payment did not go through. Please try again."
	case enums.EventOnlinePaymentSucceeded:
		return "Payment received", fmt.Sprintf("%s paid %s", actor, money(nc))
	case enums.EventCashOnDeliveryCommitted:
		return "Cash on delivery", fmt.Sprintf("%s will pay %s on delivery", actor, money(nc))
	case enums.EventReadyForConfirmation:
		return "Ready to order", "Everyone has paid. The order is ready for confirmation."
	case enums.EventCartConverted:
		return "Order placed", "Your group order is on its way to the restaurant."
	case enums.EventCartExpired:
		return "Cart expired", "This group cart expired before the order was placed."
	default:
		return "Group cart updated", "Open the app to see the latest changes."
	}
}

func itemOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return "an item"
	}
	return name
}

func money(nc NotificationContext) string {
	if nc.Amount == nil {
		return "their share"
	}
	if nc.Currency == "" {
		return nc.Amount.StringFixed(2)
	}
	return nc.Amount.StringFixed(2) + " " + nc.Currency
}
