package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/komodo-run/core/internal/adapter/ws"
)

// MountRoutes registers Komodo's entire HTTP surface on r: the tagged-
// envelope /read, /write, /execute, and /user endpoints, the /auth/*
// family, the per-provider /listener/... webhook family, the /ws/update
// websocket upgrade, and the two health endpoints.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/health", h.HealthCheck)
	r.Get("/health/ready", h.HealthReady)

	r.Post("/read", h.HandleRead)
	r.Post("/write", h.HandleWrite)
	r.Post("/execute", h.HandleExecute)
	r.Post("/user", h.HandleUser)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/refresh", h.HandleRefresh)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
		r.Post("/change-password", h.HandleChangePassword)
		r.Get("/setup-status", h.HandleSetupStatus)
		r.Post("/setup", h.HandleSetup)
	})

	r.Route("/listener/{provider}/{kind}/{id}", func(r chi.Router) {
		r.Post("/", h.HandleListener)
		r.Post("/{option}", h.HandleListener)
	})

	r.Get("/ws/update", func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
	})
}
