package httpx

import (
	"net/http"
	"time"

	"kasir-be/internal/idempotency"
	"kasir-be/internal/logger"
	"kasir-be/internal/metrics"
	"kasir-be/internal/middleware"
	"kasir-be/internal/order"
	"kasir-be/internal/product"
	"kasir-be/internal/promotion"
	"kasir-be/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Orders     order.Service
	Products   product.Repository
	Promotions promotion.Repository
	Now        func() time.Time
	Idem       idempotency.Store
	Webhook    http.HandlerFunc
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Limiter    *middleware.RateLimiter
	JWTSecret  []byte
	Location   *time.Location
	Timeout    time.Duration
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware, logger.LoggingMiddleware)
	if d.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(d.Metrics))
	}
	r.Use(middleware.AuthMiddleware(d.JWTSecret))
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Webhook != nil {
		r.Post(middleware.WebhookPath, d.Webhook)
	}

	h := &OrdersHandler{
		Orders:   d.Orders,
		Idem:     d.Idem,
		Location: d.Location,
		Timeout:  d.Timeout,
	}
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(middleware.RequireRole(utils.RoleAdmin, utils.RoleKasir))
		r.Post("/", h.createOrder)
		r.With(middleware.RequireRole(utils.RoleAdmin)).Post("/{id}/void", h.voidOrder)
		h.Register(r)
	})

	catalog := &CatalogHandler{
		Products:   d.Products,
		Promotions: d.Promotions,
		Now:        d.Now,
		Timeout:    d.Timeout,
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(utils.RoleAdmin, utils.RoleKasir))
		if d.Products != nil {
			r.Get("/api/products/{id}", catalog.getProduct)
		}
		if d.Promotions != nil {
			r.Get("/api/promotions/active", catalog.listActivePromotions)
		}
	})

	return r
}
