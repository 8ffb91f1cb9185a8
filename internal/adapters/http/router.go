package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for license use-cases.
// Keeping only application and signer dependencies here preserves clean
// adapter boundaries.
type Handler struct {
	service *application.Service
	signer  ports.TokenSigner
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, signer ports.TokenSigner) *Handler {
	return &Handler{service: service, signer: signer}
}

// NewRouter registers license HTTP routes and the shared middleware stack.
// Client-facing verification and activation endpoints stay unauthenticated;
// everything that mutates license ownership requires a bearer token.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/.well-known/jwks.json", handler.jwks)

	r.Route("/licenses/v1", func(r chi.Router) {
		r.Post("/verify", handler.verify)
		r.Post("/activate", handler.activate)
		r.Post("/deactivate", handler.deactivate)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/issue", handler.issue)
			r.Get("/licenses", handler.listLicenses)
			r.Get("/licenses/{license_id}", handler.getLicense)
			r.Post("/licenses/{license_id}/suspend", handler.suspend)
			r.Post("/licenses/{license_id}/reinstate", handler.reinstate)
			r.Post("/licenses/{license_id}/revoke", handler.revoke)
		})
	})

	return r
}
