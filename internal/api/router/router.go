package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/restaurant-booking-ai/internal/channels/whatsapp"
	"github.com/wolfman30/restaurant-booking-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/restaurant-booking-ai/internal/http/middleware"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WhatsApp        *whatsapp.WebhookHandler
	Staff           *handlers.AdminStaffHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	// Ready reports whether backing services are reachable. Optional.
	Ready func(ctx context.Context) error

	// Per-IP limit on the public webhook; zero disables it.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.Ready))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsApp != nil {
			public.Route("/webhooks/whatsapp", func(wa chi.Router) {
				if cfg.WebhookRatePerSecond > 0 {
					wa.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookBurst))
				}
				wa.Get("/", cfg.WhatsApp.HandleVerification)
				wa.Post("/", cfg.WhatsApp.HandleInbound)
			})
		}
	})

	// Staff routes, protected by an HMAC JWT scoped to one restaurant or all.
	if cfg.AdminAuthSecret != "" && cfg.Staff != nil {
		r.Route("/admin/restaurants/{restaurantID}", func(admin chi.Router) {
			admin.Use(httpmiddleware.StaffJWT(cfg.AdminAuthSecret))
			admin.Use(httpmiddleware.RequireRestaurantScope)
			admin.Use(middleware.NoCache)

			admin.Post("/staff/devices", cfg.Staff.RegisterDevice)
			admin.Delete("/staff/devices/{token}", cfg.Staff.RemoveDevice)
			admin.Post("/messages", cfg.Staff.SendMessage)
			admin.Get("/customers/{phone}", cfg.Staff.GetTranscript)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

func ready(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check == nil {
			writeStatus(w, http.StatusOK, "ok")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}
