package projection

import (
	"context"
	"fmt"

	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteUpdated applies a recomputed quote only if it is newer than the stored
// one. The early read avoids a WATCH round trip for the common stale case; the
// store repeats the comparison atomically. Quotes never push.
func (h *Handlers) QuoteUpdated(ctx context.Context, evt Event) error {
	p, err := payloadAs[payloads.QuoteUpdatedEvent](evt)
	if err != nil {
		return err
	}
	ctx = h.logg.WithFields(h.logg.WithCartID(ctx, p.CartID.String()), map[string]any{
		"quote_version": p.QuoteVersion,
	})

	current, err := h.store.GetQuoteVersion(ctx, p.CartID)
	if err != nil {
		return viewErr(err)
	}
	if p.QuoteVersion <= current {
		return h.staleQuote(ctx, p.QuoteVersion, current)
	}

	amounts := make(map[uuid.UUID]decimal.Decimal, len(p.Quotes))
	for _, q := range p.Quotes {
		amounts[q.UserID] = q.Amount
	}
	applied, err := h.store.UpdateQuote(ctx, p.CartID, cartview.Quote{
		Version:  p.QuoteVersion,
		Currency: p.Currency,
		Amounts:  amounts,
	})
	if err != nil {
		return viewErr(err)
	}
	if !applied {
		return h.staleQuote(ctx, p.QuoteVersion, current)
	}
	return h.realtimeErr(h.realtime.NotifyCartUpdated(ctx, p.CartID))
}

func (h *Handlers) staleQuote(ctx context.Context, incoming, current int64) error {
	h.metrics.IncStaleQuote()
	h.logg.Info(h.logg.WithField(ctx, "stored_quote_version", current), "ignoring stale quote")
	return pkgerrors.New(pkgerrors.CodeStaleVersion, fmt.Sprintf("quote version %d is not newer than %d", incoming, current))
}
