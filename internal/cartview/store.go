package cartview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/redis"
)

var (
	// ErrNotFound means the cart has no view document (never created or already retired).
	ErrNotFound = errors.New("cart view not found")
	// ErrItemNotFound means the referenced item is not part of the view.
	ErrItemNotFound = errors.New("cart view item not found")
	// ErrMemberNotFound means the referenced user is not a member of the view.
	ErrMemberNotFound = errors.New("cart view member not found")
)

// Store mutates and reads cart view documents. Every mutation except
// UpdateQuote bumps Version atomically and returns the new value.
type Store interface {
	CreateView(ctx context.Context, view View) (int64, error)
	AddMember(ctx context.Context, cartID uuid.UUID, member Member) (int64, error)
	AddItem(ctx context.Context, cartID uuid.UUID, item Item) (int64, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (int64, error)
	ApplyCoupon(ctx context.Context, cartID uuid.UUID, coupon Coupon) (int64, error)
	RemoveCoupon(ctx context.Context, cartID uuid.UUID) (int64, error)
	ApplyTip(ctx context.Context, cartID uuid.UUID, amount decimal.Decimal, currency string) (int64, error)
	SetStatus(ctx context.Context, cartID uuid.UUID, status enums.CartStatus) (int64, error)
	SetLocked(ctx context.Context, cartID uuid.UUID) (int64, error)
	RecordOnlinePayment(ctx context.Context, cartID, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (int64, error)
	RecordOnlinePaymentFailure(ctx context.Context, cartID, userID uuid.UUID) (int64, error)
	CommitCashOnDelivery(ctx context.Context, cartID, userID uuid.UUID, amount decimal.Decimal) (int64, error)
	ApplyPricing(ctx context.Context, cartID uuid.UUID, pricing Pricing) (int64, error)
	UpdateQuote(ctx context.Context, cartID uuid.UUID, quote Quote) (bool, error)
	DeleteView(ctx context.Context, cartID uuid.UUID) error
	RetireView(ctx context.Context, cartID, eventID uuid.UUID) (int64, error)
	GetVersion(ctx context.Context, cartID uuid.UUID) (int64, error)
	GetQuoteVersion(ctx context.Context, cartID uuid.UUID) (int64, error)
	Get(ctx context.Context, cartID uuid.UUID) (*View, error)
}

// RedisStore keeps one JSON document per cart and serializes writers with WATCH/MULTI.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	tombstoneTTL time.Duration
	maxRetries   int
	now          func() time.Time
}

type StoreOptions struct {
	TTL          time.Duration
	TombstoneTTL time.Duration
	MaxRetries   int
}

const defaultTombstoneTTL = 7 * 24 * time.Hour

// tombstone outlives a retired view so a redelivered retirement event can
// finish its notifications with the version the document had.
type tombstone struct {
	Version int64     `json:"version"`
	EventID uuid.UUID `json:"eventId"`
}

func NewRedisStore(client *redis.Client, opts StoreOptions) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = defaultTombstoneTTL
	}
	return &RedisStore{
		client:       client,
		ttl:          opts.TTL,
		tombstoneTTL: opts.TombstoneTTL,
		maxRetries:   opts.MaxRetries,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *RedisStore) key(cartID uuid.UUID) string {
	return s.client.CartViewKey(cartID.String())
}

func (s *RedisStore) CreateView(ctx context.Context, view View) (int64, error) {
	key := s.key(view.CartID)
	var version int64
	err := s.client.Optimistic(ctx, s.maxRetries, func(tx *goredis.Tx) error {
		existing, err := load(ctx, tx, key)
		if err == nil {
			version = existing.Version
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if view.Items == nil {
			view.Items = map[uuid.UUID]Item{}
		}
		if view.Members == nil {
			view.Members = map[uuid.UUID]Member{}
		}
		if view.Status == "" {
			view.Status = enums.CartStatusOpen
		}
		view.Version = 1
		view.QuoteVersion = 0
		view.UpdatedAt = s.now()
		version = view.Version
		return s.write(ctx, tx, key, &view)
	}, key)
	return version, s.wrapErr(err)
}

func (s *RedisStore) AddMember(ctx context.Context, cartID uuid.UUID, member Member) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		if existing, ok := v.Members[member.UserID]; ok {
			member.PaymentStatus = existing.PaymentStatus
			member.CommittedAmount = existing.CommittedAmount
			member.OnlineTransactionRef = existing.OnlineTransactionRef
			member.QuotedAmount = existing.QuotedAmount
		}
		if member.PaymentStatus == "" {
			member.PaymentStatus = enums.MemberPaymentPending
		}
		v.Members[member.UserID] = member
		return nil
	})
}

func (s *RedisStore) AddItem(ctx context.Context, cartID uuid.UUID, item Item) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		item.LineTotal = item.lineTotal()
		v.Items[item.ItemID] = item
		return nil
	})
}

func (s *RedisStore) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		delete(v.Items, itemID)
		return nil
	})
}

func (s *RedisStore) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		item, ok := v.Items[itemID]
		if !ok {
			return ErrItemNotFound
		}
		item.Quantity = quantity
		item.LineTotal = item.lineTotal()
		v.Items[itemID] = item
		return nil
	})
}

func (s *RedisStore) ApplyCoupon(ctx context.Context, cartID uuid.UUID, coupon Coupon) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		code, amount, currency := coupon.Code, coupon.Amount, coupon.Currency
		v.CouponCode = &code
		v.DiscountAmount = &amount
		v.DiscountCurrency = &currency
		return nil
	})
}

func (s *RedisStore) RemoveCoupon(ctx context.Context, cartID uuid.UUID) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		v.CouponCode = nil
		v.DiscountAmount = nil
		v.DiscountCurrency = nil
		return nil
	})
}

func (s *RedisStore) ApplyTip(ctx context.Context, cartID uuid.UUID, amount decimal.Decimal, currency string) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		v.TipAmount = amount
		v.TipCurrency = currency
		return nil
	})
}

func (s *RedisStore) SetStatus(ctx context.Context, cartID uuid.UUID, status enums.CartStatus) (int64, error) {
	if !status.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid cart status %q", status))
	}
	return s.mutate(ctx, cartID, func(v *View) error {
		v.Status = status
		return nil
	})
}

func (s *RedisStore) SetLocked(ctx context.Context, cartID uuid.UUID) (int64, error) {
	return s.SetStatus(ctx, cartID, enums.CartStatusLocked)
}

func (s *RedisStore) RecordOnlinePayment(ctx context.Context, cartID, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (int64, error) {
	return s.mutateMember(ctx, cartID, userID, func(m *Member) {
		ref := transactionRef
		m.PaymentStatus = enums.MemberPaymentPaidOnline
		m.CommittedAmount = amount
		m.OnlineTransactionRef = &ref
	})
}

func (s *RedisStore) RecordOnlinePaymentFailure(ctx context.Context, cartID, userID uuid.UUID) (int64, error) {
	return s.mutateMember(ctx, cartID, userID, func(m *Member) {
		m.PaymentStatus = enums.MemberPaymentFailed
		m.CommittedAmount = decimal.Zero
		m.OnlineTransactionRef = nil
	})
}

func (s *RedisStore) CommitCashOnDelivery(ctx context.Context, cartID, userID uuid.UUID, amount decimal.Decimal) (int64, error) {
	return s.mutateMember(ctx, cartID, userID, func(m *Member) {
		m.PaymentStatus = enums.MemberPaymentCashOnDelivery
		m.CommittedAmount = amount
		m.OnlineTransactionRef = nil
	})
}

func (s *RedisStore) ApplyPricing(ctx context.Context, cartID uuid.UUID, pricing Pricing) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		v.Subtotal = pricing.Subtotal
		v.DeliveryFee = pricing.DeliveryFee
		v.Tax = pricing.Tax
		v.Total = pricing.Total
		v.CashOnDelivery = pricing.CashOnDelivery
		if pricing.Currency != "" {
			v.Currency = pricing.Currency
		}
		v.Status = enums.CartStatusFinalized
		return nil
	})
}

// UpdateQuote applies quote only when its version is strictly greater than the
// stored QuoteVersion. The comparison runs under WATCH, so a concurrently
// applied newer quote is never overwritten. Version is left untouched.
func (s *RedisStore) UpdateQuote(ctx context.Context, cartID uuid.UUID, quote Quote) (bool, error) {
	key := s.key(cartID)
	applied := false
	err := s.client.Optimistic(ctx, s.maxRetries, func(tx *goredis.Tx) error {
		applied = false
		view, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if quote.Version <= view.QuoteVersion {
			return nil
		}
		for userID, amount := range quote.Amounts {
			member, ok := view.Members[userID]
			if !ok {
				continue
			}
			quoted := amount
			member.QuotedAmount = &quoted
			view.Members[userID] = member
		}
		if quote.Currency != "" {
			view.Currency = quote.Currency
		}
		view.QuoteVersion = quote.Version
		view.UpdatedAt = s.now()
		if err := s.write(ctx, tx, key, view); err != nil {
			return err
		}
		applied = true
		return nil
	}, key)
	if err != nil {
		return false, s.wrapErr(err)
	}
	return applied, nil
}

func (s *RedisStore) DeleteView(ctx context.Context, cartID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(cartID)); err != nil {
		return s.wrapErr(err)
	}
	return nil
}

// RetireView deletes the document and records its last version under a
// tombstone owned by eventID, in one transaction. Retiring again with the same
// eventID returns the recorded version; any other event gets ErrNotFound.
func (s *RedisStore) RetireView(ctx context.Context, cartID, eventID uuid.UUID) (int64, error) {
	key := s.key(cartID)
	stoneKey := s.client.CartViewTombstoneKey(cartID.String())
	var version int64
	err := s.client.Optimistic(ctx, s.maxRetries, func(tx *goredis.Tx) error {
		view, err := load(ctx, tx, key)
		if errors.Is(err, ErrNotFound) {
			stone, err := loadTombstone(ctx, tx, stoneKey)
			if err != nil {
				return err
			}
			if stone.EventID != eventID {
				return ErrNotFound
			}
			version = stone.Version
			return nil
		}
		if err != nil {
			return err
		}
		data, err := json.Marshal(tombstone{Version: view.Version, EventID: eventID})
		if err != nil {
			return fmt.Errorf("encode cart view tombstone: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.Set(ctx, stoneKey, data, s.tombstoneTTL)
			return nil
		})
		if err != nil {
			return err
		}
		version = view.Version
		return nil
	}, key, stoneKey)
	if err != nil {
		return 0, s.wrapErr(err)
	}
	return version, nil
}

func (s *RedisStore) GetVersion(ctx context.Context, cartID uuid.UUID) (int64, error) {
	view, err := s.Get(ctx, cartID)
	if err != nil {
		return 0, err
	}
	return view.Version, nil
}

// GetQuoteVersion treats a missing document as quote version 0.
func (s *RedisStore) GetQuoteVersion(ctx context.Context, cartID uuid.UUID) (int64, error) {
	view, err := s.Get(ctx, cartID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return view.QuoteVersion, nil
}

func (s *RedisStore) Get(ctx context.Context, cartID uuid.UUID) (*View, error) {
	raw, err := s.client.Get(ctx, s.key(cartID))
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrapErr(err)
	}
	return decode([]byte(raw))
}

func (s *RedisStore) mutateMember(ctx context.Context, cartID, userID uuid.UUID, fn func(*Member)) (int64, error) {
	return s.mutate(ctx, cartID, func(v *View) error {
		member, ok := v.Members[userID]
		if !ok {
			return ErrMemberNotFound
		}
		fn(&member)
		v.Members[userID] = member
		return nil
	})
}

func (s *RedisStore) mutate(ctx context.Context, cartID uuid.UUID, fn func(*View) error) (int64, error) {
	key := s.key(cartID)
	var version int64
	err := s.client.Optimistic(ctx, s.maxRetries, func(tx *goredis.Tx) error {
		view, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(view); err != nil {
			return err
		}
		view.Version++
		view.UpdatedAt = s.now()
		if err := s.write(ctx, tx, key, view); err != nil {
			return err
		}
		version = view.Version
		return nil
	}, key)
	if err != nil {
		return 0, s.wrapErr(err)
	}
	return version, nil
}

func (s *RedisStore) write(ctx context.Context, tx *goredis.Tx, key string, view *View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode cart view: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.ttl)
		return nil
	})
	return err
}

// wrapErr leaves domain sentinels untouched and marks everything else as a
// retryable dependency failure.
func (s *RedisStore) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ErrMemberNotFound):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case pkgerrors.As(err) != nil:
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart view store")
}

func load(ctx context.Context, tx *goredis.Tx, key string) (*View, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func loadTombstone(ctx context.Context, tx *goredis.Tx, key string) (*tombstone, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var stone tombstone
	if err := json.Unmarshal(raw, &stone); err != nil {
		return nil, fmt.Errorf("decode cart view tombstone: %w", err)
	}
	return &stone, nil
}

func decode(raw []byte) (*View, error) {
	var view View
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("decode cart view: %w", err)
	}
	if view.Items == nil {
		view.Items = map[uuid.UUID]Item{}
	}
	if view.Members == nil {
		view.Members = map[uuid.UUID]Member{}
	}
	return &view, nil
}
