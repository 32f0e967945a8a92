package cartview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/redis"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	store, err := NewRedisStore(redis.Wrap(raw), StoreOptions{TTL: time.Hour, MaxRetries: 50})
	require.NoError(t, err)
	return store, mr
}

func seedView(t *testing.T, store *RedisStore) (uuid.UUID, uuid.UUID) {
	t.Helper()
	cartID := uuid.New()
	host := uuid.New()
	version, err := store.CreateView(context.Background(), View{
		CartID:           cartID,
		RestaurantID:     uuid.New(),
		RestaurantName:   "Taqueria Luz",
		HostUserID:       host,
		Currency:         "USD",
		MaskedShareToken: MaskShareToken("tok_8f2a91c3"),
		Members: map[uuid.UUID]Member{
			host: {UserID: host, DisplayName: "Host", Role: enums.MemberRoleHost, PaymentStatus: enums.MemberPaymentPending},
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
	return cartID, host
}

func TestCreateViewIsNoopWhenPresent(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	cartID, _ := seedView(t, store)

	_, err := store.ApplyTip(ctx, cartID, decimal.RequireFromString("2.00"), "USD")
	require.NoError(t, err)

	version, err := store.CreateView(ctx, View{CartID: cartID, RestaurantName: "Other"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, version, "create on an existing document keeps its version")

	view, err := store.Get(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, "Taqueria Luz", view.RestaurantName)
	assert.Equal(t, enums.CartStatusOpen, view.Status)
	assert.Equal(t, "***91c3", view.MaskedShareToken)
	assert.True(t, mr.TTL("gc:cartview:"+cartID.String()) > 0)
}

func TestMutationsBumpVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cartID, host := seedView(t, store)
	guest := uuid.New()
	itemID := uuid.New()

	steps := []func() (int64, error){
		func() (int64, error) {
			return store.AddMember(ctx, cartID, Member{UserID: guest, DisplayName: "Guest", Role: enums.MemberRoleGuest})
		},
		func() (int64, error) {
			return store.AddItem(ctx, cartID, NewItem(itemID, guest, "Al pastor", 2, decimal.RequireFromString("5.00"), nil))
		},
		func() (int64, error) { return store.UpdateItemQuantity(ctx, cartID, itemID, 5) },
		func() (int64, error) {
			return store.ApplyCoupon(ctx, cartID, Coupon{Code: "SAVE10", Amount: decimal.RequireFromString("2.50"), Currency: "USD"})
		},
		func() (int64, error) { return store.SetLocked(ctx, cartID) },
		func() (int64, error) {
			return store.RecordOnlinePayment(ctx, cartID, guest, decimal.RequireFromString("12.50"), "pi_123")
		},
		func() (int64, error) {
			return store.CommitCashOnDelivery(ctx, cartID, host, decimal.RequireFromString("10.00"))
		},
	}
	for i, step := range steps {
		version, err := step()
		require.NoError(t, err, "step %d", i)
		assert.EqualValues(t, i+2, version, "step %d", i)
	}

	view, err := store.Get(ctx, cartID)
	require.NoError(t, err)
	assert.EqualValues(t, 8, view.Version)
	assert.Equal(t, enums.CartStatusLocked, view.Status)
	require.Contains(t, view.Items, itemID)
	assert.True(t, view.Items[itemID].LineTotal.Equal(decimal.RequireFromString("25.00")))
	require.NotNil(t, view.CouponCode)
	assert.Equal(t, "SAVE10", *view.CouponCode)
	assert.Equal(t, enums.MemberPaymentPaidOnline, view.Members[guest].PaymentStatus)
	assert.Equal(t, "pi_123", *view.Members[guest].OnlineTransactionRef)
	assert.Equal(t, enums.MemberPaymentCashOnDelivery, view.Members[host].PaymentStatus)
}

func TestUpsertsAreIdempotentByID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cartID, host := seedView(t, store)
	itemID := uuid.New()
	item := NewItem(itemID, host, "Horchata", 1, decimal.RequireFromString("3.00"), nil)

	for i := 0; i < 2; i++ {
		_, err := store.AddItem(ctx, cartID, item)
		require.NoError(t, err)
	}
	_, err := store.RecordOnlinePayment(ctx, cartID, host, decimal.RequireFromString("3"), "pi_1")
	require.NoError(t, err)
	_, err = store.AddMember(ctx, cartID, Member{UserID: host, DisplayName: "Host Renamed", Role: enums.MemberRoleHost})
	require.NoError(t, err)

	view, err := store.Get(ctx, cartID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
	assert.Len(t, view.Members, 1)
	assert.Equal(t, "Host Renamed", view.Members[host].DisplayName)
	assert.Equal(t, enums.MemberPaymentPaidOnline, view.Members[host].PaymentStatus, "rejoin keeps payment state")
}

func TestLineTotalIncludesCustomizations(t *testing.T) {
	item := NewItem(uuid.New(), uuid.New(), "Burrito", 3, decimal.RequireFromString("8.00"), []Customization{
		{Group: "Protein", Choice: "Steak", PriceDelta: decimal.RequireFromString("1.50")},
		{Group: "Extras", Choice: "Guac", PriceDelta: decimal.RequireFromString("0.75")},
	})
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("30.75")), "got %s", item.LineTotal)
}

func TestMissingDocument(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := store.AddItem(ctx, missing, NewItem(uuid.New(), uuid.New(), "x", 1, decimal.NewFromInt(1), nil))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetVersion(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	qv, err := store.GetQuoteVersion(ctx, missing)
	require.NoError(t, err)
	assert.Zero(t, qv)
	applied, err := store.UpdateQuote(ctx, missing, Quote{Version: 3})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, applied)
	require.NoError(t, store.DeleteView(ctx, missing))
	assert.Empty(t, mr.Keys(), "no document is created as a side effect")
}

func TestUnknownItemAndMember(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cartID, _ := seedView(t, store)

	_, err := store.UpdateItemQuantity(ctx, cartID, uuid.New(), 4)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = store.RecordOnlinePaymentFailure(ctx, cartID, uuid.New())
	assert.ErrorIs(t, err, ErrMemberNotFound)

	version, err := store.GetVersion(ctx, cartID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version, "rejected mutations do not bump the version")
}

func TestUpdateQuoteRatchets(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cartID, host := seedView(t, store)

	applied, err := store.UpdateQuote(ctx, cartID, Quote{Version: 2, Currency: "USD", Amounts: map[uuid.UUID]decimal.Decimal{host: decimal.RequireFromString("20")}})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.UpdateQuote(ctx, cartID, Quote{Version: 1, Currency: "USD", Amounts: map[uuid.UUID]decimal.Decimal{host: decimal.RequireFromString("10")}})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = store.UpdateQuote(ctx, cartID, Quote{Version: 2, Currency: "USD", Amounts: map[uuid.UUID]decimal.Decimal{host: decimal.RequireFromString("99")}})
	require.NoError(t, err)
	assert.False(t, applied, "equal version is a duplicate")

	view, err := store.Get(ctx, cartID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, view.QuoteVersion)
	assert.EqualValues(t, 1, view.Version, "quotes do not bump version")
	require.NotNil(t, view.Members[host].QuotedAmount)
	assert.True(t, view.Members[host].QuotedAmount.Equal(decimal.RequireFromString("20")))
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cartID, host := seedView(t, store)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddItem(ctx, cartID, NewItem(uuid.New(), host, "Taco", 1, decimal.NewFromInt(2), nil))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := store.Get(ctx, cartID)
	require.NoError(t, err)
	assert.Len(t, view.Items, writers)
	assert.EqualValues(t, writers+1, view.Version)
}

func TestDeleteViewRetiresDocument(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cartID, _ := seedView(t, store)

	require.NoError(t, store.DeleteView(ctx, cartID))
	_, err := store.Get(ctx, cartID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetireViewLeavesTombstoneForRetiringEvent(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	cartID, _ := seedView(t, store)
	_, err := store.ApplyTip(ctx, cartID, decimal.NewFromInt(2), "USD")
	require.NoError(t, err)
	eventID := uuid.New()

	version, err := store.RetireView(ctx, cartID, eventID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	_, err = store.Get(ctx, cartID)
	assert.ErrorIs(t, err, ErrNotFound)

	stoneKey := "gc:cartview:retired:" + cartID.String()
	require.True(t, mr.Exists(stoneKey))
	assert.Equal(t, 7*24*time.Hour, mr.TTL(stoneKey))

	version, err = store.RetireView(ctx, cartID, eventID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version, "redelivery sees the pre-deletion version")

	_, err = store.RetireView(ctx, cartID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound, "other events find nothing to retire")
}

func TestRetireViewWithoutDocument(t *testing.T) {
	store, mr := newTestStore(t)

	_, err := store.RetireView(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, mr.Keys())
}

func TestStoreErrorsAreRetryable(t *testing.T) {
	store, mr := newTestStore(t)
	cartID, _ := seedView(t, store)
	mr.Close()

	_, err := store.ApplyTip(context.Background(), cartID, decimal.NewFromInt(1), "USD")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	cartID, _ := seedView(t, store)
	_, err := store.SetStatus(context.Background(), cartID, enums.CartStatus("paused"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestMaskShareToken(t *testing.T) {
	assert.Equal(t, "***wxyz", MaskShareToken("abcdefwxyz"))
	assert.Equal(t, "***", MaskShareToken("abcd"))
	assert.Equal(t, "***", MaskShareToken(""))
	assert.Equal(t, "***ñoño", MaskShareToken("tok_ñoño"))
	assert.True(t, utf8.ValidString(MaskShareToken("tok_€€€€€")))
}
