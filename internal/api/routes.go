package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/ses-guard/internal/domain"
)

// RouteConfig controls route layout.
type RouteConfig struct {
	WebhookPrefix string
	// Routes maps each category to its path segment under the prefix.
	Routes         map[domain.SubscriptionCategory]string
	APIToken       string
	AllowedOrigins []string
	// Metrics serves /metrics; nil uses the default Prometheus registry.
	Metrics http.Handler
}

// SetupRoutes builds the router: SNS webhooks without auth, /health and
// /metrics, and the operator API under /api.
func SetupRoutes(h *Handlers, hc *HealthChecker, rc RouteConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(recoverJSON)

	origins := rc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
	}
	metricsHandler := rc.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	prefix := "/" + strings.Trim(rc.WebhookPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	for _, c := range []domain.SubscriptionCategory{domain.CategoryBounces, domain.CategoryComplaints, domain.CategoryDeliveries} {
		seg := string(c)
		if s, ok := rc.Routes[c]; ok && s != "" {
			seg = strings.Trim(s, "/")
		}
		r.Post(prefix+"/"+seg, h.HandleSNS(c))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(rc.APIToken))

		r.Post("/check", h.HandleCheck)
		r.Post("/can-send", h.HandleCanSend)
		r.Post("/validate", h.HandleValidateBatch)
		r.Get("/validation/credits", h.HandleCredits)

		r.Route("/blacklist", func(r chi.Router) {
			r.Get("/", h.HandleListBlacklist)
			r.Post("/", h.HandleAddBlacklist)
			r.Get("/stats", h.HandleBlacklistStats)
			r.Get("/{email}", h.HandleGetBlacklist)
			r.Delete("/{email}", h.HandleRemoveBlacklist)
		})

		r.Get("/notifications", h.HandleListNotifications)

		r.Get("/subscriptions/pending", h.HandlePendingSubscriptions)
		r.Post("/subscriptions/confirm", h.HandleConfirmSubscription)
	})

	return r
}
