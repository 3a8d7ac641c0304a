// Package entitlementengine предоставляет маршруты и сборку основного
// приложения.
package entitlementengine

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	entitlementread "github.com/ridelink/entitlement-engine/internal/http/handlers/entitlement/read"
	entitlementunlocks "github.com/ridelink/entitlement-engine/internal/http/handlers/entitlement/unlocks"
	"github.com/ridelink/entitlement-engine/internal/http/handlers/health"
	"github.com/ridelink/entitlement-engine/internal/http/handlers/payment/confirm"
	"github.com/ridelink/entitlement-engine/internal/http/handlers/payment/webhook"
	quotareserve "github.com/ridelink/entitlement-engine/internal/http/handlers/quota/reserve"
	"github.com/ridelink/entitlement-engine/internal/http/middlewarectx"
	entitlementservice "github.com/ridelink/entitlement-engine/internal/services/entitlement"
	quotaservice "github.com/ridelink/entitlement-engine/internal/services/quota"
	reconcilerservice "github.com/ridelink/entitlement-engine/internal/services/reconciler"
	"github.com/ridelink/entitlement-engine/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db *repository.Storage, reconcilerService *reconcilerservice.Service, entitlementService *entitlementservice.Service, quotaService *quotaservice.Service, webhookSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.WithRequestTime(),
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Клиентские конечные точки под rate limit
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/payments/confirm", confirm.New(logger, reconcilerService).ServeHTTP)
			r.Get("/entitlements/{subjectID}", entitlementread.New(logger, entitlementService).ServeHTTP)
			r.Get("/entitlements/{subjectID}/unlocks", entitlementunlocks.New(logger, entitlementService).ServeHTTP)
			r.Post("/quota/reserve", quotareserve.New(logger, quotaService).ServeHTTP)
		})

		// Webhook endpoint (подпись вместо аутентификации, без rate limit:
		// провайдер ретраит 429 как ошибку)
		r.Post("/payments/webhook", webhook.New(logger, reconcilerService, webhookSecret).ServeHTTP)
	})

	r.Get("/health", health.New(logger, db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
