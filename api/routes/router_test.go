package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/groupcart-backend/api/controllers"
	"github.com/angelmondragon/groupcart-backend/api/responses"
	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubViews struct {
	views map[uuid.UUID]*cartview.View
	err   error
}

func (s stubViews) Get(_ context.Context, cartID uuid.UUID) (*cartview.View, error) {
	if s.err != nil {
		return nil, s.err
	}
	view, ok := s.views[cartID]
	if !ok {
		return nil, cartview.ErrNotFound
	}
	return view, nil
}

func testRouter(t *testing.T, pingers map[string]controllers.Pinger, views controllers.CartViewReader) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRouter(RouterParams{
		Config:   &config.Config{App: config.AppConfig{Env: "test"}},
		Logger:   logger.Nop(),
		Pingers:  pingers,
		Views:    views,
		Gatherer: reg,
	}), reg
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealthLive(t *testing.T) {
	h, _ := testRouter(t, nil, stubViews{})

	w := serve(h, http.MethodGet, "/health/live")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-GroupCart-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthReadyReportsDependencies(t *testing.T) {
	h, _ := testRouter(t, map[string]controllers.Pinger{
		"db":     stubPinger{},
		"redis":  stubPinger{},
		"pubsub": nil,
	}, stubViews{})

	w := serve(h, http.MethodGet, "/health/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Status != "ready" {
		t.Fatalf("unexpected status %q", body.Data.Status)
	}
	if body.Data.Checks["db"] != "up" || body.Data.Checks["redis"] != "up" {
		t.Fatalf("unexpected checks %v", body.Data.Checks)
	}
	if _, ok := body.Data.Checks["pubsub"]; ok {
		t.Fatalf("nil pinger should be skipped")
	}
}

func TestHealthReadyFailsWhenDependencyDown(t *testing.T) {
	h, _ := testRouter(t, map[string]controllers.Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	}, stubViews{})

	w := serve(h, http.MethodGet, "/health/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var body responses.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	details, ok := body.Error.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected readiness details, got %#v", body.Error.Details)
	}
	checks, _ := details["checks"].(map[string]any)
	if checks["redis"] != "down" {
		t.Fatalf("expected redis reported down, got %#v", details["checks"])
	}
	if failed, _ := details["failed"].([]any); len(failed) != 1 || failed[0] != "redis" {
		t.Fatalf("unexpected failed list %#v", details["failed"])
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	h, reg := testRouter(t, nil, stubViews{})
	m := metrics.NewProjectionMetrics(reg)
	m.IncStaleQuote()

	w := serve(h, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "projection_stale_quotes_total 1") {
		t.Fatalf("expected stale quote counter in exposition:\n%s", body)
	}
}

func TestCartViewEndpoint(t *testing.T) {
	cartID := uuid.New()
	host := uuid.New()
	views := stubViews{views: map[uuid.UUID]*cartview.View{
		cartID: {
			CartID:           cartID,
			RestaurantName:   "Taqueria Luz",
			HostUserID:       host,
			Status:           enums.CartStatusOpen,
			Version:          4,
			MaskedShareToken: cartview.MaskShareToken("share-9f3b7c21"),
		},
	}}
	h, _ := testRouter(t, nil, views)

	w := serve(h, http.MethodGet, "/api/v1/carts/"+cartID.String()+"/view")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Data cartview.View `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.CartID != cartID || body.Data.Version != 4 {
		t.Fatalf("unexpected view %+v", body.Data)
	}
	if body.Data.MaskedShareToken != "***7c21" {
		t.Fatalf("share token should be masked, got %q", body.Data.MaskedShareToken)
	}
}

func TestCartViewEndpointErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		views  stubViews
		status int
		code   pkgerrors.Code
	}{
		{
			name:   "invalid id",
			path:   "/api/v1/carts/not-a-uuid/view",
			status: http.StatusBadRequest,
			code:   pkgerrors.CodeValidation,
		},
		{
			name:   "missing view",
			path:   "/api/v1/carts/" + uuid.NewString() + "/view",
			status: http.StatusNotFound,
			code:   pkgerrors.CodeNotFound,
		},
		{
			name:   "store down",
			path:   "/api/v1/carts/" + uuid.NewString() + "/view",
			views:  stubViews{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "cart view store")},
			status: http.StatusServiceUnavailable,
			code:   pkgerrors.CodeDependency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := testRouter(t, nil, tc.views)
			w := serve(h, http.MethodGet, tc.path)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			var body responses.ErrorEnvelope
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != string(tc.code) {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
			if body.RequestID == "" || body.RequestID != w.Header().Get(responses.RequestIDHeader) {
				t.Fatalf("error body should echo request id header, got %q", body.RequestID)
			}
		})
	}
}

func TestCartViewRouteOmittedWithoutStore(t *testing.T) {
	h, _ := testRouter(t, nil, nil)
	w := serve(h, http.MethodGet, "/api/v1/carts/"+uuid.NewString()+"/view")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a view store, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/health/live"); w.Code != http.StatusOK {
		t.Fatalf("health should still be served, got %d", w.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h, _ := testRouter(t, nil, stubViews{})
	if w := serve(h, http.MethodGet, "/api/v1/carts"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
