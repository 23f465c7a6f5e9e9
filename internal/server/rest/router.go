package rest

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for the ksc-server REST API.
//
// Route layout:
//
//	GET  /healthz            – liveness probe (no authentication required)
//	POST /api/v1/compile     – compile a unit, cache-checked (JWT required)
//	GET  /api/v1/jobs        – paginated job history query (JWT required)
//	GET  /api/v1/audit       – tamper-evident audit log query (JWT required)
//
// pubKey is the RSA public key used to verify RS256 Bearer tokens on all
// /api routes. Pass nil to disable JWT validation.
func NewRouter(srv *Server, pubKey *rsa.PublicKey) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTMiddleware(pubKey))
		}

		r.Post("/compile", srv.handleCompile)
		r.Get("/jobs", srv.handleGetJobs)
		r.Get("/audit", srv.handleGetAudit)
	})

	return r
}
