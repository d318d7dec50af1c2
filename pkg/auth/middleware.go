package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/observability"
)

type contextKey struct{}

// ContextWithPrincipal stores p in ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the principal stored by Middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}

// Middleware rejects requests that fail verification with a JSON error body
// and passes the principal on through the request context.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := v.Verify(r.Header)
			if err != nil {
				status := errors.HTTPStatus(err)
				observability.AuthRejections.WithLabelValues(strconv.Itoa(status)).Inc()
				msg := "Invalid token"
				if appErr, ok := errors.As(err); ok {
					msg = appErr.ClientMessage()
				}
				if logger != nil {
					logger.Info("request rejected",
						"path", r.URL.Path,
						"status", status,
						"reason", err.Error(),
					)
				}
				writeError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="sidecar"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
