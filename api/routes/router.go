package routes

import (
	"net/http"

	"github.com/angelmondragon/groupcart-backend/api/controllers"
	"github.com/angelmondragon/groupcart-backend/api/middleware"
	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterParams wires the projector's operational HTTP surface.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Views    controllers.CartViewReader
	Gatherer prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.Pingers))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if p.Views != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/carts/{cartId}/view", controllers.CartView(p.Views, p.Logger))
		})
	}

	return r
}
