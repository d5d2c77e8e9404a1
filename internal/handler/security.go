package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopdesk/internal/domain/auth"
	"github.com/xenking/shopdesk/pkg/httpmiddleware"
)

// HeaderAPIKey carries the raw API key.
const HeaderAPIKey = "api_key"

// authenticate resolves the api_key header and rejects requests whose key
// lacks scope. The verified key is stored in the request context.
func (h *Handler) authenticate(scope auth.Scope, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		raw := r.Header.Get(HeaderAPIKey)
		if raw == "" {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		key, err := h.auth.Verify(ctx, raw)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				zctx.From(ctx).Error("Verify api key", zap.Error(err))
				httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if !key.HasScope(scope) {
			httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+string(scope))
			return
		}

		ctx = zctx.With(auth.WithKey(ctx, key), zap.String("api_key_id", key.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitKey buckets requests by API key, falling back to the client IP
// for anonymous requests.
func RateLimitKey(r *http.Request) string {
	if k := r.Header.Get(HeaderAPIKey); k != "" {
		return "key:" + k
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
