package projection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	"github.com/angelmondragon/groupcart-backend/internal/notify"
	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/groupcart-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakeReader struct {
	mu        sync.Mutex
	carts     map[uuid.UUID]*models.Cart
	coupons   map[uuid.UUID]*models.Coupon
	suggested []models.Coupon
	err       error
	reads     int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		carts:   map[uuid.UUID]*models.Cart{},
		coupons: map[uuid.UUID]*models.Coupon{},
	}
}

func (f *fakeReader) GetCartByID(_ context.Context, cartID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.carts[cartID], nil
}

func (f *fakeReader) GetCartWithItems(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	return f.GetCartByID(ctx, cartID)
}

func (f *fakeReader) GetCouponByID(_ context.Context, couponID uuid.UUID) (*models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.coupons[couponID], nil
}

func (f *fakeReader) ListMemberIDs(_ context.Context, cartID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.carts[cartID]
	if cart == nil {
		return nil, f.err
	}
	ids := make([]uuid.UUID, 0, len(cart.Members))
	for _, m := range cart.Members {
		ids = append(ids, m.UserID)
	}
	return ids, f.err
}

func (f *fakeReader) ListSuggestedCoupons(context.Context, uuid.UUID, decimal.Decimal, int) ([]models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suggested, f.err
}

type realtimeCall struct {
	kind   notify.SignalType
	cartID uuid.UUID
	codes  []string
}

type recordingRealtime struct {
	mu    sync.Mutex
	calls []realtimeCall
	err   error
}

func (r *recordingRealtime) record(kind notify.SignalType, cartID uuid.UUID, codes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, realtimeCall{kind: kind, cartID: cartID, codes: codes})
	return nil
}

func (r *recordingRealtime) NotifyCartUpdated(_ context.Context, cartID uuid.UUID) error {
	return r.record(notify.SignalCartUpdated, cartID, nil)
}

func (r *recordingRealtime) NotifyLocked(_ context.Context, cartID uuid.UUID) error {
	return r.record(notify.SignalCartLocked, cartID, nil)
}

func (r *recordingRealtime) NotifyReadyToConfirm(_ context.Context, cartID uuid.UUID) error {
	return r.record(notify.SignalReadyToConfirm, cartID, nil)
}

func (r *recordingRealtime) NotifyConverted(_ context.Context, cartID, _ uuid.UUID) error {
	return r.record(notify.SignalCartConverted, cartID, nil)
}

func (r *recordingRealtime) NotifyExpired(_ context.Context, cartID uuid.UUID) error {
	return r.record(notify.SignalCartExpired, cartID, nil)
}

func (r *recordingRealtime) NotifyPaymentEvent(_ context.Context, cartID uuid.UUID, _ enums.MemberPaymentStatus, _ uuid.UUID) error {
	return r.record(notify.SignalPaymentEvent, cartID, nil)
}

func (r *recordingRealtime) NotifyCouponSuggestions(_ context.Context, cartID uuid.UUID, codes []string) error {
	return r.record(notify.SignalCouponSuggestions, cartID, codes)
}

func (r *recordingRealtime) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingRealtime) kinds() []notify.SignalType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.SignalType, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.kind)
	}
	return out
}

type recordingPusher struct {
	mu       sync.Mutex
	requests []notify.PushRequest
	result   *notify.Result
}

func (p *recordingPusher) Send(_ context.Context, req notify.PushRequest) notify.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.result != nil {
		return *p.result
	}
	return notify.Delivered()
}

func (p *recordingPusher) sent() []notify.PushRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.PushRequest(nil), p.requests...)
}

type harness struct {
	mr         *miniredis.Miniredis
	store      *cartview.RedisStore
	ledger     *idempotency.RedisLedger
	reader     *fakeReader
	realtime   *recordingRealtime
	pusher     *recordingPusher
	handlers   *Handlers
	dispatcher *Dispatcher
	registry   *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := redis.Wrap(raw)

	store, err := cartview.NewRedisStore(client, cartview.StoreOptions{TTL: time.Hour, MaxRetries: 50})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ledger, err := idempotency.NewRedisLedger(client, 0)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	h := &harness{
		mr:       mr,
		store:    store,
		ledger:   ledger,
		reader:   newFakeReader(),
		realtime: &recordingRealtime{},
		pusher:   &recordingPusher{},
		registry: prometheus.NewRegistry(),
	}
	m := metrics.NewProjectionMetrics(h.registry)
	handlers, err := NewHandlers(HandlersParams{
		Store:    store,
		Reader:   h.reader,
		Realtime: h.realtime,
		Pusher:   h.pusher,
		Metrics:  m,
		Logger:   logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new handlers: %v", err)
	}
	suggestions, err := NewSuggestions(store, h.reader, h.realtime, logger.Nop())
	if err != nil {
		t.Fatalf("new suggestions: %v", err)
	}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Registry:          NewRegistry(handlers, suggestions),
		Ledger:            ledger,
		Logger:            logger.Nop(),
		Metrics:           m,
		BestEffortTimeout: time.Second,
		BestEffortLimit:   4,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	h.handlers = handlers
	h.dispatcher = dispatcher
	return h
}

// dispatch runs evt and waits for detached handlers so assertions see their effects.
func (h *harness) dispatch(t *testing.T, evt Event) Outcome {
	t.Helper()
	outcome, _ := h.dispatcher.Dispatch(context.Background(), evt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("wait for best-effort handlers: %v", err)
	}
	return outcome
}

type cartFixture struct {
	cartID   uuid.UUID
	host     uuid.UUID
	guest    uuid.UUID
	itemID   uuid.UUID
	couponID uuid.UUID
	cart     *models.Cart
}

func (h *harness) seedCart() cartFixture {
	f := cartFixture{
		cartID:   uuid.New(),
		host:     uuid.New(),
		guest:    uuid.New(),
		itemID:   uuid.New(),
		couponID: uuid.New(),
	}
	restaurantID := uuid.New()
	f.cart = &models.Cart{
		ID:           f.cartID,
		RestaurantID: restaurantID,
		Restaurant:   &models.Restaurant{ID: restaurantID, Name: "Taqueria Luz"},
		HostUserID:   f.host,
		Status:       enums.CartStatusOpen,
		ShareToken:   "share-9f3b7c21",
		Currency:     "USD",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
		Members: []models.CartMember{
			{UserID: f.host, DisplayName: "Hana", Role: enums.MemberRoleHost},
			{UserID: f.guest, DisplayName: "Gus", Role: enums.MemberRoleGuest},
		},
		Items: []models.CartItem{
			{ID: f.itemID, CartID: f.cartID, AddedBy: f.guest, Name: "Al pastor", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
		},
	}
	h.reader.mu.Lock()
	h.reader.carts[f.cartID] = f.cart
	h.reader.coupons[f.couponID] = &models.Coupon{ID: f.couponID, Code: "SAVE10", Currency: "USD", Active: true}
	h.reader.mu.Unlock()
	return f
}

func newEvent(eventType enums.OutboxEventType, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
