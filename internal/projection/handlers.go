package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/groupcart-backend/internal/aggregate"
	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	"github.com/angelmondragon/groupcart-backend/internal/notify"
	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// Handlers projects cart events onto the view store and fans out notifications.
type Handlers struct {
	store    cartview.Store
	reader   aggregate.Reader
	realtime notify.RealtimeNotifier
	pusher   notify.PushNotifier
	metrics  *metrics.ProjectionMetrics
	logg     *logger.Logger
}

type HandlersParams struct {
	Store    cartview.Store
	Reader   aggregate.Reader
	Realtime notify.RealtimeNotifier
	Pusher   notify.PushNotifier
	Metrics  *metrics.ProjectionMetrics
	Logger   *logger.Logger
}

func NewHandlers(params HandlersParams) (*Handlers, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("cart view store required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("aggregate reader required")
	}
	if params.Realtime == nil {
		return nil, fmt.Errorf("realtime notifier required")
	}
	if params.Pusher == nil {
		return nil, fmt.Errorf("push notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handlers{
		store:    params.Store,
		reader:   params.Reader,
		realtime: params.Realtime,
		pusher:   params.Pusher,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (h *Handlers) CartCreated(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CartCreatedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	cart, err := h.reader.GetCartByID(ctx, p.CartID)
	if err != nil {
		return readErr(err, "load cart")
	}
	if cart == nil {
		return notFound("cart", p.CartID)
	}

	if _, err := h.store.CreateView(ctx, viewFromCart(cart)); err != nil {
		return viewErr(err)
	}
	return h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID))
}

func (h *Handlers) MemberJoined(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.MemberJoinedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.AddMember(ctx, p.CartID, cartview.Member{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Role:        p.Role,
	})
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.UserID,
			ActorName: p.DisplayName,
		},
	})
}

func (h *Handlers) ItemAdded(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.ItemAddedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	cart, err := h.reader.GetCartWithItems(ctx, p.CartID)
	if err != nil {
		return readErr(err, "load cart items")
	}
	if cart == nil {
		return notFound("cart", p.CartID)
	}
	row := findItem(cart, p.ItemID)
	if row == nil {
		return notFound("cart item", p.ItemID)
	}

	item := itemFromRow(row)
	version, err := h.store.AddItem(ctx, p.CartID, item)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.AddedBy,
			ActorName: memberName(cart, p.AddedBy),
			ItemName:  item.Name,
		},
	})
}

func (h *Handlers) ItemRemoved(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.ItemRemovedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.RemoveItem(ctx, p.CartID, p.ItemID)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.RemovedBy,
			ActorName: h.viewMemberName(ctx, p.CartID, p.RemovedBy),
			ItemName:  p.ItemName,
		},
	})
}

// ItemQuantityUpdated refreshes the line total. Quantity changes are frequent
// and never pushed.
func (h *Handlers) ItemQuantityUpdated(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.ItemQuantityUpdatedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	if _, err := h.store.UpdateItemQuantity(ctx, p.CartID, p.ItemID, p.Quantity); err != nil {
		return viewErr(err)
	}
	return h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID))
}

func (h *Handlers) CouponApplied(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CouponAppliedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	coupon, err := h.reader.GetCouponByID(ctx, p.CouponID)
	if err != nil {
		return readErr(err, "load coupon")
	}
	if coupon == nil {
		return notFound("coupon", p.CouponID)
	}

	version, err := h.store.ApplyCoupon(ctx, p.CartID, cartview.Coupon{
		Code:     coupon.Code,
		Amount:   p.DiscountAmount,
		Currency: p.Currency,
	})
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	amount := p.DiscountAmount
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType:  evt.Type,
			ActorID:    p.AppliedBy,
			ActorName:  h.viewMemberName(ctx, p.CartID, p.AppliedBy),
			CouponCode: coupon.Code,
			Amount:     &amount,
			Currency:   p.Currency,
		},
	})
}

func (h *Handlers) CouponRemoved(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CouponRemovedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.RemoveCoupon(ctx, p.CartID)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.RemovedBy,
			ActorName: h.viewMemberName(ctx, p.CartID, p.RemovedBy),
		},
	})
}

func (h *Handlers) TipApplied(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.TipAppliedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.ApplyTip(ctx, p.CartID, p.Amount, p.Currency)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	amount := p.Amount
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.AppliedBy,
			Amount:    &amount,
			Currency:  p.Currency,
		},
	})
}

// CartLocked asks every member except the locking host to pay.
func (h *Handlers) CartLocked(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CartLockedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.SetLocked(ctx, p.CartID)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyLocked(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetMembers,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.HostUserID,
		},
	})
}

// PricingFinalized is pushed data-only: devices refresh totals silently.
func (h *Handlers) PricingFinalized(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.PricingFinalizedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.ApplyPricing(ctx, p.CartID, cartview.Pricing{
		Subtotal:       p.Subtotal,
		DeliveryFee:    p.DeliveryFee,
		Tax:            p.Tax,
		Total:          p.Total,
		CashOnDelivery: p.CashOnDeliveryPortion,
		Currency:       p.Currency,
	})
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID)); err != nil {
		return err
	}
	total := p.Total
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryDataOnly,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			Amount:    &total,
			Currency:  p.Currency,
		},
	})
}

func (h *Handlers) OnlinePaymentSucceeded(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.OnlinePaymentSucceededEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.RecordOnlinePayment(ctx, p.CartID, p.UserID, p.Amount, p.TransactionRef)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyPaymentEvent(ctx, p.CartID, enums.MemberPaymentPaidOnline, p.UserID)); err != nil {
		return err
	}
	amount := p.Amount
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.UserID,
			ActorName: h.viewMemberName(ctx, p.CartID, p.UserID),
			Amount:    &amount,
			Currency:  p.Currency,
		},
	})
}

// OnlinePaymentFailed only tells the payer.
func (h *Handlers) OnlinePaymentFailed(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.OnlinePaymentFailedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.RecordOnlinePaymentFailure(ctx, p.CartID, p.UserID)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyPaymentEvent(ctx, p.CartID, enums.MemberPaymentFailed, p.UserID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:       p.CartID,
		Version:      version,
		Target:       enums.PushTargetSpecific,
		TargetUserID: p.UserID,
		Mode:         enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.UserID,
			Reason:    p.Reason,
		},
	})
}

func (h *Handlers) CashOnDeliveryCommitted(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CashOnDeliveryCommittedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.CommitCashOnDelivery(ctx, p.CartID, p.UserID, p.Amount)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyPaymentEvent(ctx, p.CartID, enums.MemberPaymentCashOnDelivery, p.UserID)); err != nil {
		return err
	}
	amount := p.Amount
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			ActorID:   p.UserID,
			ActorName: h.viewMemberName(ctx, p.CartID, p.UserID),
			Amount:    &amount,
			Currency:  p.Currency,
		},
	})
}

// ReadyForConfirmation does not mutate the view; the push carries the current version.
func (h *Handlers) ReadyForConfirmation(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.ReadyForConfirmationEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.store.GetVersion(ctx, p.CartID)
	if err != nil {
		return viewErr(err)
	}
	if err := h.realtimeErr(h.realtime.NotifyReadyToConfirm(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{EventType: evt.Type},
	})
}

// CartConverted retires the view. The version is read before deletion so the
// push still references the last state clients saw.
func (h *Handlers) CartConverted(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CartConvertedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.retireView(ctx, p.CartID, evt.ID)
	if err != nil {
		return err
	}
	if err := h.realtimeErr(h.realtime.NotifyConverted(ctx, p.CartID, p.OrderID)); err != nil {
		return err
	}
	orderID := p.OrderID
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Mode:    enums.DeliveryHybrid,
		Context: notify.NotificationContext{
			EventType: evt.Type,
			OrderID:   &orderID,
		},
	})
}

func (h *Handlers) CartExpired(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.CartExpiredEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithCartID(ctx, p.CartID.String())

	version, err := h.retireView(ctx, p.CartID, evt.ID)
	if err != nil {
		return err
	}
	if err := h.realtimeErr(h.realtime.NotifyExpired(ctx, p.CartID)); err != nil {
		return err
	}
	return h.push(ctx, notify.PushRequest{
		CartID:  p.CartID,
		Version: version,
		Target:  enums.PushTargetAll,
		Context: notify.NotificationContext{EventType: evt.Type},
	})
}

// retireView returns the pre-deletion version. A redelivery of the same event
// after a failed notification gets that version back from the tombstone.
func (h *Handlers) retireView(ctx context.Context, cartID, eventID uuid.UUID) (int64, error) {
	version, err := h.store.RetireView(ctx, cartID, eventID)
	if err != nil {
		return 0, viewErr(err)
	}
	return version, nil
}

func (h *Handlers) push(ctx context.Context, req notify.PushRequest) error {
	result := h.pusher.Send(ctx, req)
	if !result.Success {
		h.metrics.IncPush("failed")
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("push %s: %s", req.Context.EventType, result.Failure))
	}
	h.metrics.IncPush("sent")
	return nil
}

func (h *Handlers) realtimeErr(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "realtime notify")
}

// viewMemberName resolves a display name from the projected view. Lookup
// failures only degrade the push text.
func (h *Handlers) viewMemberName(ctx context.Context, cartID, userID uuid.UUID) string {
	view, err := h.store.Get(ctx, cartID)
	if err != nil {
		return ""
	}
	return view.Members[userID].DisplayName
}

// viewErr maps missing view documents and entries to a tolerated no-op.
func viewErr(err error) error {
	switch {
	case errors.Is(err, cartview.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "cart view missing")
	case errors.Is(err, cartview.ErrItemNotFound), errors.Is(err, cartview.ErrMemberNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "cart view entry missing")
	}
	return err
}

func readErr(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func notFound(what string, id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s %s not found", what, id))
}

func viewFromCart(cart *models.Cart) cartview.View {
	view := cartview.View{
		CartID:           cart.ID,
		RestaurantID:     cart.RestaurantID,
		HostUserID:       cart.HostUserID,
		Status:           enums.CartStatusOpen,
		Currency:         cart.Currency,
		MaskedShareToken: cartview.MaskShareToken(cart.ShareToken),
		Members:          make(map[uuid.UUID]cartview.Member, len(cart.Members)),
		Items:            make(map[uuid.UUID]cartview.Item, len(cart.Items)),
	}
	if cart.Restaurant != nil {
		view.RestaurantName = cart.Restaurant.Name
	}
	if !cart.ExpiresAt.IsZero() {
		expiresAt := cart.ExpiresAt.UTC()
		view.ExpiresAt = &expiresAt
	}
	for _, m := range cart.Members {
		view.Members[m.UserID] = cartview.Member{
			UserID:        m.UserID,
			DisplayName:   m.DisplayName,
			Role:          m.Role,
			PaymentStatus: enums.MemberPaymentPending,
		}
	}
	return view
}

func findItem(cart *models.Cart, itemID uuid.UUID) *models.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			return &cart.Items[i]
		}
	}
	return nil
}

func itemFromRow(row *models.CartItem) cartview.Item {
	customizations := make([]cartview.Customization, 0, len(row.Customizations))
	for _, c := range row.Customizations {
		customizations = append(customizations, cartview.Customization{
			Group:      c.GroupName,
			Choice:     c.ChoiceName,
			PriceDelta: c.PriceDelta,
		})
	}
	return cartview.NewItem(row.ID, row.AddedBy, row.Name, row.Quantity, row.UnitPrice, customizations)
}

func memberName(cart *models.Cart, userID uuid.UUID) string {
	for _, m := range cart.Members {
		if m.UserID == userID {
			return m.DisplayName
		}
	}
	return ""
}
