// Package middleware holds adapters and in house middlewares
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	chicors "github.com/go-chi/cors"
)

// RequestID attaches or propagates X-Request-ID and stores it on context
func RequestID() func(http.Handler) http.Handler { return chimw.RequestID }

// RealIP sets RemoteAddr to the upstream IP based on X-Forwarded-For headers
func RealIP() func(http.Handler) http.Handler { return chimw.RealIP }

// Timeout cancels the request context after d
func Timeout(d time.Duration) func(http.Handler) http.Handler { return chimw.Timeout(d) }

// NoCache sets headers to disable client and proxy caching
func NoCache() func(http.Handler) http.Handler { return chimw.NoCache }

// AllowContentType whitelists allowed content types
func AllowContentType(ct ...string) func(http.Handler) http.Handler {
	return chimw.AllowContentType(ct...)
}

// CORSOptions is a narrow surface over go-chi/cors
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// CORS wraps go-chi/cors with sane defaults applied
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	if len(opt.AllowedOrigins) == 0 {
		opt.AllowedOrigins = []string{"*"}
	}
	if len(opt.AllowedMethods) == 0 {
		opt.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(opt.AllowedHeaders) == 0 {
		opt.AllowedHeaders = []string{"Accept", "Content-Type", "X-Request-ID"}
	}
	if opt.MaxAge == 0 {
		opt.MaxAge = 300
	}
	return chicors.Handler(chicors.Options{
		AllowedOrigins:   opt.AllowedOrigins,
		AllowedMethods:   opt.AllowedMethods,
		AllowedHeaders:   opt.AllowedHeaders,
		AllowCredentials: opt.AllowCredentials,
		MaxAge:           opt.MaxAge,
	})
}
