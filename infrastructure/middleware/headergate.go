package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/sonet-social/search-service/infrastructure/httputil"
	sllogging "github.com/sonet-social/search-service/infrastructure/logging"
	"github.com/sonet-social/search-service/internal/authgate"
)

type auditEvent struct {
	ctx       context.Context
	reason    string
	method    string
	path      string
	clientIP  string
	userAgent string
}

var (
	auditLogger = sllogging.NewFromEnv("search-service")
	auditOnce   sync.Once
	auditQueue  chan *auditEvent
)

func enqueueAudit(event *auditEvent) {
	if event == nil {
		return
	}
	auditOnce.Do(func() {
		auditQueue = make(chan *auditEvent, 256)
		go func() {
			for auditEvent := range auditQueue {
				if auditEvent == nil {
					continue
				}
				fields := map[string]interface{}{
					"audit":      true,
					"event_type": "identity_gate_reject",
					"reason":     auditEvent.reason,
					"method":     auditEvent.method,
					"path":       auditEvent.path,
					"client_ip":  auditEvent.clientIP,
					"user_agent": auditEvent.userAgent,
				}
				auditLogger.WithContext(auditEvent.ctx).WithFields(fields).Warn("identity gate rejected credential")
			}
		}()
	})

	select {
	case auditQueue <- event:
	default:
		// Never block request processing for audit logging.
	}
}

type identityContextKey struct{}

// WithIdentity attaches identity to ctx, for IdentityMiddleware and tests.
func WithIdentity(ctx context.Context, identity authgate.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity IdentityMiddleware resolved for
// this request, if any.
func IdentityFromContext(ctx context.Context) (authgate.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(authgate.Identity)
	return identity, ok
}

// IdentityMiddleware resolves the request's Authorization header into an
// authgate.Identity once at the edge and attaches it to the request
// context, so RateLimiter can bucket by authenticated principal rather than
// bare IP and so downstream logging can tag the acting user. It never
// rejects a request itself — a missing or invalid token still resolves to
// authgate.Anonymous(), and permission decisions stay with the controller,
// which re-derives the identity per RPC — but it audits presented tokens
// that failed to authenticate, a signal worth watching for credential
// stuffing independent of any single RPC's outcome.
func IdentityMiddleware(gate *authgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			identity := gate.Validate(r.Context(), authHeader)

			if authHeader != "" && !identity.Authenticated {
				enqueueAudit(&auditEvent{
					ctx:       r.Context(),
					reason:    "invalid_credentials",
					method:    r.Method,
					path:      r.URL.Path,
					clientIP:  httputil.ClientIP(r),
					userAgent: r.UserAgent(),
				})
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
