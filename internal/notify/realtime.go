package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/google/uuid"
)

// SignalType names the realtime signal published on a cart channel.
type SignalType string

const (
	SignalCartUpdated       SignalType = "cart_updated"
	SignalCartLocked        SignalType = "cart_locked"
	SignalReadyToConfirm    SignalType = "ready_to_confirm"
	SignalCartConverted     SignalType = "cart_converted"
	SignalCartExpired       SignalType = "cart_expired"
	SignalPaymentEvent      SignalType = "payment_event"
	SignalCouponSuggestions SignalType = "coupon_suggestions"
)

// RealtimeNotifier tells connected clients that a cart changed. Clients refetch
// the view on receipt; signals carry no cart state.
type RealtimeNotifier interface {
	NotifyCartUpdated(ctx context.Context, cartID uuid.UUID) error
	NotifyLocked(ctx context.Context, cartID uuid.UUID) error
	NotifyReadyToConfirm(ctx context.Context, cartID uuid.UUID) error
	NotifyConverted(ctx context.Context, cartID, orderID uuid.UUID) error
	NotifyExpired(ctx context.Context, cartID uuid.UUID) error
	NotifyPaymentEvent(ctx context.Context, cartID uuid.UUID, kind enums.MemberPaymentStatus, userID uuid.UUID) error
	NotifyCouponSuggestions(ctx context.Context, cartID uuid.UUID, codes []string) error
}

// Signal is the JSON body published to gc:cart:<cartId>.
type Signal struct {
	Type    SignalType `json:"type"`
	CartID  uuid.UUID  `json:"cartId"`
	OrderID *uuid.UUID `json:"orderId,omitempty"`
	UserID  *uuid.UUID `json:"userId,omitempty"`
	Kind    string     `json:"kind,omitempty"`
	Codes   []string   `json:"codes,omitempty"`
	SentAt  time.Time  `json:"sentAt"`
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
	CartChannel(cartID string) string
}

// RedisRealtime publishes signals over Redis Pub/Sub.
type RedisRealtime struct {
	publisher channelPublisher
	now       func() time.Time
}

func NewRedisRealtime(publisher channelPublisher) (*RedisRealtime, error) {
	if publisher == nil {
		return nil, fmt.Errorf("redis publisher required")
	}
	return &RedisRealtime{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *RedisRealtime) NotifyCartUpdated(ctx context.Context, cartID uuid.UUID) error {
	return r.publish(ctx, Signal{Type: SignalCartUpdated, CartID: cartID})
}

func (r *RedisRealtime) NotifyLocked(ctx context.Context, cartID uuid.UUID) error {
	return r.publish(ctx, Signal{Type: SignalCartLocked, CartID: cartID})
}

func (r *RedisRealtime) NotifyReadyToConfirm(ctx context.Context, cartID uuid.UUID) error {
	return r.publish(ctx, Signal{Type: SignalReadyToConfirm, CartID: cartID})
}

func (r *RedisRealtime) NotifyConverted(ctx context.Context, cartID, orderID uuid.UUID) error {
	return r.publish(ctx, Signal{Type: SignalCartConverted, CartID: cartID, OrderID: &orderID})
}

func (r *RedisRealtime) NotifyExpired(ctx context.Context, cartID uuid.UUID) error {
	return r.publish(ctx, Signal{Type: SignalCartExpired, CartID: cartID})
}

func (r *RedisRealtime) NotifyPaymentEvent(ctx context.Context, cartID uuid.UUID, kind enums.MemberPaymentStatus, userID uuid.UUID) error {
	return r.publish(ctx, Signal{Type: SignalPaymentEvent, CartID: cartID, Kind: kind.String(), UserID: &userID})
}

func (r *RedisRealtime) NotifyCouponSuggestions(ctx context.Context, cartID uuid.UUID, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	return r.publish(ctx, Signal{Type: SignalCouponSuggestions, CartID: cartID, Codes: codes})
}

func (r *RedisRealtime) publish(ctx context.Context, signal Signal) error {
	signal.SentAt = r.now()
	body, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("encode realtime signal: %w", err)
	}
	if _, err := r.publisher.Publish(ctx, r.publisher.CartChannel(signal.CartID.String()), body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish realtime signal")
	}
	return nil
}
