package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS admits the portal and admin frontends listed in allowedOrigins. The
// license client endpoints are called from desktop apps and need no CORS.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			IdempotencyHeader, requestIDHeader,
		},
		ExposedHeaders:   []string{"X-Licensor-Token", requestIDHeader, "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler
}
