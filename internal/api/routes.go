package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the full route tree.
func Routes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/test", h.TestDraftCondition)

			r.Route("/{ruleID}", func(r chi.Router) {
				r.Get("/", h.GetRule)
				r.Put("/", h.UpdateRule)
				r.Delete("/", h.DeleteRule)

				r.Post("/activate", h.ActivateRule)
				r.Post("/deactivate", h.DeactivateRule)

				r.Get("/notification", h.GetNotification)
				r.Put("/notification", h.SetNotification)

				r.Get("/executions", h.ListRuleExecutions)
				r.Post("/test", h.TestRule)
				r.Post("/run", h.RunRuleNow)
			})
		})

		r.Get("/campaigns/{campaignID}/executions", h.ListCampaignExecutions)

		r.Get("/inbox", h.ListInbox)
		r.Post("/inbox/{notificationID}/read", h.MarkInboxRead)
	})

	return r
}
