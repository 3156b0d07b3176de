package handler

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS lets the browser client call the API from its own origin.
func WithCORS(next http.Handler, allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept-Language"},
		MaxAge:         86400,
	}).Handler(next)
}
