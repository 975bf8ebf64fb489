// Package middleware provides HTTP middleware for the service layer
package middleware

import (
	"fmt"
	"net/http"

	"github.com/sonet-social/search-service/infrastructure/errors"
	internalhttputil "github.com/sonet-social/search-service/infrastructure/httputil"
	"github.com/sonet-social/search-service/infrastructure/logging"
	"github.com/sonet-social/search-service/internal/ratelimiter"
)

// RateLimiter is perimeter HTTP middleware built directly on the rate
// limiter (C8, internal/ratelimiter.Limiter): the same per-principal,
// tier-aware token bucket the controller consults per RPC, mounted here as
// a cheap reject-early guard ahead of request body parsing and backend
// search calls. It buckets by authenticated principal when IdentityMiddleware
// has already resolved one, falling back to client IP at the anonymous tier
// otherwise.
type RateLimiter struct {
	limiter *ratelimiter.Limiter
	logger  *logging.Logger
}

// NewRateLimiter wraps limiter as HTTP middleware. limiter is typically the
// same *ratelimiter.Limiter instance passed to controller.New, so the
// perimeter guard and the controller's own limiting share one bucket set.
func NewRateLimiter(limiter *ratelimiter.Limiter, logger *logging.Logger) *RateLimiter {
	return &RateLimiter{limiter: limiter, logger: logger}
}

// LimiterCount reports the number of tracked buckets, for tests and metrics.
func (rl *RateLimiter) LimiterCount() int {
	if rl == nil || rl.limiter == nil {
		return 0
	}
	return rl.limiter.BucketCount()
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principalID := ""
		tier := ratelimiter.TierAnonymous
		if identity, ok := IdentityFromContext(r.Context()); ok {
			principalID = identity.UserID
			tier = tierFor(identity.Tier)
		}

		key := ratelimiter.Key(principalID, internalhttputil.ClientIP(r))

		if !rl.limiter.Allow(key, tier) {
			if rl.logger != nil {
				rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
					"key":    key,
					"path":   r.URL.Path,
					"method": r.Method,
					"tier":   string(tier),
				})
			}

			limits := rl.limiter.LimitsFor(tier)
			serviceErr := errors.RateLimitExceeded(limits.RPM, "1m")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(limits.RPM)))
			internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tierFor maps an authgate.Identity.Tier string onto a known ratelimiter
// tier, defaulting unrecognized or empty values to anonymous.
func tierFor(t string) ratelimiter.Tier {
	switch ratelimiter.Tier(t) {
	case ratelimiter.TierBasic, ratelimiter.TierPro, ratelimiter.TierInternal:
		return ratelimiter.Tier(t)
	default:
		return ratelimiter.TierAnonymous
	}
}

// retryAfterSeconds estimates a reasonable single-token refill wait from a
// tier's requests-per-minute budget.
func retryAfterSeconds(rpm int) int {
	if rpm <= 0 {
		return 60
	}
	seconds := 60 / rpm
	if seconds < 1 {
		return 1
	}
	return seconds
}
