package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/redis"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRealtimePublishesToCartChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := redis.Wrap(raw)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cartID := uuid.New()
	orderID := uuid.New()
	sub, err := client.Subscribe(ctx, client.CartChannel(cartID.String()))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscription confirmation: %v", err)
	}

	notifier, err := NewRedisRealtime(client)
	if err != nil {
		t.Fatalf("new realtime: %v", err)
	}
	if err := notifier.NotifyConverted(ctx, cartID, orderID); err != nil {
		t.Fatalf("notify converted: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Channel != "gc:cart:"+cartID.String() {
		t.Fatalf("unexpected channel %q", msg.Channel)
	}
	var signal Signal
	if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if signal.Type != SignalCartConverted || signal.CartID != cartID {
		t.Fatalf("unexpected signal %+v", signal)
	}
	if signal.OrderID == nil || *signal.OrderID != orderID {
		t.Fatalf("expected order id %s, got %v", orderID, signal.OrderID)
	}
}

type recordingPublisher struct {
	channels []string
	bodies   [][]byte
	err      error
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, message any) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.channels = append(r.channels, channel)
	r.bodies = append(r.bodies, message.([]byte))
	return 1, nil
}

func (r *recordingPublisher) CartChannel(cartID string) string {
	return "gc:cart:" + cartID
}

func TestRealtimeSignals(t *testing.T) {
	cartID := uuid.New()
	userID := uuid.New()

	tests := []struct {
		name  string
		call  func(n *RedisRealtime) error
		want  SignalType
		check func(t *testing.T, s Signal)
	}{
		{
			name: "cart updated",
			call: func(n *RedisRealtime) error { return n.NotifyCartUpdated(context.Background(), cartID) },
			want: SignalCartUpdated,
		},
		{
			name: "locked",
			call: func(n *RedisRealtime) error { return n.NotifyLocked(context.Background(), cartID) },
			want: SignalCartLocked,
		},
		{
			name: "ready",
			call: func(n *RedisRealtime) error { return n.NotifyReadyToConfirm(context.Background(), cartID) },
			want: SignalReadyToConfirm,
		},
		{
			name: "expired",
			call: func(n *RedisRealtime) error { return n.NotifyExpired(context.Background(), cartID) },
			want: SignalCartExpired,
		},
		{
			name: "payment",
			call: func(n *RedisRealtime) error {
				return n.NotifyPaymentEvent(context.Background(), cartID, enums.MemberPaymentFailed, userID)
			},
			want: SignalPaymentEvent,
			check: func(t *testing.T, s Signal) {
				if s.Kind != "payment_failed" || s.UserID == nil || *s.UserID != userID {
					t.Fatalf("unexpected payment signal %+v", s)
				}
			},
		},
		{
			name: "suggestions",
			call: func(n *RedisRealtime) error {
				return n.NotifyCouponSuggestions(context.Background(), cartID, []string{"SAVE5", "FREEDEL"})
			},
			want: SignalCouponSuggestions,
			check: func(t *testing.T, s Signal) {
				if len(s.Codes) != 2 || s.Codes[0] != "SAVE5" {
					t.Fatalf("unexpected codes %v", s.Codes)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			notifier, err := NewRedisRealtime(pub)
			if err != nil {
				t.Fatalf("new realtime: %v", err)
			}
			if err := tt.call(notifier); err != nil {
				t.Fatalf("notify: %v", err)
			}
			if len(pub.bodies) != 1 {
				t.Fatalf("expected one publish, got %d", len(pub.bodies))
			}
			var signal Signal
			if err := json.Unmarshal(pub.bodies[0], &signal); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if signal.Type != tt.want || signal.CartID != cartID {
				t.Fatalf("unexpected signal %+v", signal)
			}
			if tt.check != nil {
				tt.check(t, signal)
			}
		})
	}
}

func TestRealtimeSkipsEmptySuggestions(t *testing.T) {
	pub := &recordingPublisher{}
	notifier, _ := NewRedisRealtime(pub)
	if err := notifier.NotifyCouponSuggestions(context.Background(), uuid.New(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.bodies) != 0 {
		t.Fatalf("expected no publish for empty suggestions")
	}
}

func TestRealtimePublishFailureIsRetryable(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection reset")}
	notifier, _ := NewRedisRealtime(pub)
	err := notifier.NotifyCartUpdated(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
