package api

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/otafleet/otafleet/internal/services"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter is a fixed-window per-client limiter backed by redis, so the
// window survives restarts and is shared across replicas.
type RateLimiter struct {
	client    *redis.Client
	perMinute int
}

func NewRateLimiter(client *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{client: client, perMinute: perMinute}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, clientIP(r), time.Now().Unix()/60)

		pipe := l.client.Pipeline()
		count := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, time.Minute)
		if _, err := pipe.Exec(r.Context()); err != nil {
			// Fail open: the limiter protects the core, it is not the core.
			log.Printf("rate limiter unavailable: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		if count.Val() > int64(l.perMinute) {
			rateLimitedTotal.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireRole gates a route on a bearer token whose role satisfies the
// required one; admin tokens pass every gate.
func (s *Server) requireRole(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "malformed authorization header"})
				return
			}

			claims, err := s.auth.VerifyToken(token)
			if err != nil {
				writeError(w, err)
				return
			}

			if !services.RoleAllows(claims.Role, required) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "insufficient role"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
