package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/NopparootSuree/AI-Agent/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

const (
	apiKeyHeaderName = "X-API-Key"
	bearerScheme     = "bearer"
)

// Rejection causes, also used as the metric label.
const (
	causeMissing    = "missing"
	causeBadScheme  = "unsupported_scheme"
	causeUnknownKey = "unknown_key"
)

var causeDetails = map[string]string{
	causeMissing:    "missing API key",
	causeBadScheme:  "authorization header must use the Bearer scheme",
	causeUnknownKey: "invalid API key",
}

// Middleware admits requests carrying a key the validator knows, read from
// X-API-Key or an Authorization Bearer token, and stores the caller's
// identity in the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, cause := authenticate(r, validator)
			if cause != "" {
				observability.ObserveAuthFailure(cause)
				if logger != nil && cause != causeMissing {
					logger.WarnContext(r.Context(), "authentication_failed",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("cause", cause),
						slog.String("path", r.URL.Path),
					)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="agent-api"`)
				observability.WriteError(r.Context(), w, http.StatusUnauthorized, observability.ErrorBody{
					Reason: "Unauthorized",
					Detail: causeDetails[cause],
				})
				return
			}

			if logger != nil {
				logger.DebugContext(r.Context(), "authenticated",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("client_id", identity.ClientID),
				)
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// authenticate returns the caller identity, or the cause of the rejection.
func authenticate(r *http.Request, validator APIKeyValidator) (Identity, string) {
	key := strings.TrimSpace(r.Header.Get(apiKeyHeaderName))
	if key == "" {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if authorization == "" {
			return Identity{}, causeMissing
		}
		scheme, token, found := strings.Cut(authorization, " ")
		if !found || !strings.EqualFold(scheme, bearerScheme) {
			return Identity{}, causeBadScheme
		}
		key = strings.TrimSpace(token)
		if key == "" {
			return Identity{}, causeMissing
		}
	}
	identity, ok := validator.Validate(r.Context(), key)
	if !ok {
		return Identity{}, causeUnknownKey
	}
	return identity, ""
}
