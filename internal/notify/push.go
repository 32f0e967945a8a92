package notify

import (
	"context"
	"strconv"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationContext carries the event details a push message is rendered from.
type NotificationContext struct {
	EventType  enums.OutboxEventType
	ActorID    uuid.UUID
	ActorName  string
	Amount     *decimal.Decimal
	Currency   string
	OrderID    *uuid.UUID
	CouponCode string
	ItemName   string
	Reason     string
}

// PushRequest addresses one push fan-out. Version is the cart view version the
// client should expect after refetching; it lets devices drop stale pushes.
type PushRequest struct {
	CartID       uuid.UUID
	Version      int64
	Target       enums.PushTarget
	TargetUserID uuid.UUID
	Context      NotificationContext
	Mode         enums.DeliveryMode
}

// Result reports whether a push was handed to the provider.
type Result struct {
	Success bool
	Failure string
}

func Delivered() Result {
	return Result{Success: true}
}

func Failed(reason string) Result {
	return Result{Failure: reason}
}

// PushNotifier delivers push notifications to the devices of cart members.
type PushNotifier interface {
	Send(ctx context.Context, req PushRequest) Result
}

// NoopPusher accepts every request without sending anything.
type NoopPusher struct{}

func (NoopPusher) Send(context.Context, PushRequest) Result {
	return Delivered()
}

// dataPayload renders the key/value map every push carries, visible or not.
func dataPayload(req PushRequest) map[string]string {
	nc := req.Context
	data := map[string]string{
		"cartId":    req.CartID.String(),
		"version":   strconv.FormatInt(req.Version, 10),
		"eventType": string(nc.EventType),
	}
	if nc.ActorID != uuid.Nil {
		data["actorId"] = nc.ActorID.String()
	}
	if nc.ActorName != "" {
		data["actorName"] = nc.ActorName
	}
	if nc.Amount != nil {
		data["amount"] = nc.Amount.StringFixed(2)
	}
	if nc.Currency != "" {
		data["currency"] = nc.Currency
	}
	if nc.OrderID != nil {
		data["orderId"] = nc.OrderID.String()
	}
	if nc.CouponCode != "" {
		data["couponCode"] = nc.CouponCode
	}
	if nc.ItemName != "" {
		data["itemName"] = nc.ItemName
	}
	if nc.Reason != "" {
		data["reason"] = nc.Reason
	}
	return data
}
