package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/groupcart-backend/api/responses"
	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CartViewReader is the read side of the cart view store.
type CartViewReader interface {
	Get(ctx context.Context, cartID uuid.UUID) (*cartview.View, error)
}

// CartView returns the projected read model for a cart. Members poll it after
// a realtime signal or a data-only push.
func CartView(store CartViewReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := strings.TrimSpace(chi.URLParam(r, "cartId"))
		cartID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart id").
				WithDetails(map[string]any{"field": "cartId"}))
			return
		}
		if logg != nil {
			ctx = logg.WithCartID(ctx, cartID.String())
		}

		view, err := store.Get(ctx, cartID)
		if errors.Is(err, cartview.ErrNotFound) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "cart view not found"))
			return
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}
