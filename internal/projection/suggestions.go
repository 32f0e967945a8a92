package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/groupcart-backend/internal/aggregate"
	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	"github.com/angelmondragon/groupcart-backend/internal/notify"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/payloads"
	"github.com/shopspring/decimal"
)

const suggestionLimit = 3

// Suggestions offers coupons the cart now qualifies for after an item is added.
// It runs best-effort: failures are logged and never retried.
type Suggestions struct {
	store    cartview.Store
	reader   aggregate.Reader
	realtime notify.RealtimeNotifier
	logg     *logger.Logger
}

func NewSuggestions(store cartview.Store, reader aggregate.Reader, realtime notify.RealtimeNotifier, logg *logger.Logger) (*Suggestions, error) {
	if store == nil || reader == nil || realtime == nil || logg == nil {
		return nil, fmt.Errorf("suggestions: store, reader, realtime notifier and logger are required")
	}
	return &Suggestions{store: store, reader: reader, realtime: realtime, logg: logg}, nil
}

func (s *Suggestions) ItemAdded(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.ItemAddedEvent](evt)
	if err != nil {
		return err
	}
	ctx = s.logg.WithCartID(ctx, p.CartID.String())

	view, err := s.store.Get(ctx, p.CartID)
	if err != nil {
		return viewErr(err)
	}
	if view.CouponCode != nil {
		return nil
	}

	subtotal := view.ItemsSubtotal()
	if subtotal.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	coupons, err := s.reader.ListSuggestedCoupons(ctx, view.RestaurantID, subtotal, suggestionLimit)
	if err != nil {
		return readErr(err, "list suggested coupons")
	}
	codes := make([]string, 0, len(coupons))
	for _, c := range coupons {
		if code := strings.TrimSpace(c.Code); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil
	}
	s.logg.Debug(s.logg.WithField(ctx, "codes", codes), "suggesting coupons")
	return s.realtime.NotifyCouponSuggestions(ctx, p.CartID, codes)
}
