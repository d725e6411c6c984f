package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/kycgate/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса kycgate.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	limit := custommiddleware.RateLimit(h.opts.Limiter, h.logger)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/tiers", h.GetTiers)
		r.Get("/kyc/config", h.GetKYCConfig)
		r.Post("/kyc/webhook", h.KYCWebhook)
		r.With(limit).Post("/waitlist", h.JoinWaitlist)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.With(limit).Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/tier", h.GetUserTier)
				r.Get("/volume", h.GetVolume)
				r.Post("/permissions/check", h.CheckPermission)

				r.Post("/transactions", h.CreateTransaction)
				r.Get("/transactions", h.GetTransactions)

				r.Post("/kyc/inquiries", h.RegisterInquiry)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.AdminToken(h.opts.AdminToken))

			r.Post("/users/{id}/tier", h.UpgradeUserTier)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed)
	})

	return r
}
