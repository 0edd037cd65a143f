package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelshrink/internal/domain"
	"github.com/dunamismax/pixelshrink/internal/ratelimit"
)

const DefaultClientIDHeader = "X-Client-ID"

type RateLimiter interface {
	Allow(ctx context.Context, subject string) (ratelimit.Decision, error)
}

// withRateLimit guards queued conversions, the only command that consumes
// shared infrastructure. Limiter failures let the request through.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}

		subject := strings.TrimSpace(r.Header.Get(s.clientIDHeader))
		if subject == "" {
			subject = "anonymous"
		}
		route := s.routeLabel(r.URL.Path)

		decision, err := s.rateLimiter.Allow(r.Context(), subject+":"+route)
		if err != nil {
			s.logger.Warn().Err(err).Str("subject", subject).Msg("rate limiter check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

func shouldRateLimit(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == commandsPrefix+domain.CommandEnqueueConvert
}
