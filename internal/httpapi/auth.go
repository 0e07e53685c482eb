package httpapi

import (
	"context"
	"net/http"

	"github.com/genbatch/pipeline/internal/tenantauth"
)

type ctxKey string

const ctxClaimsKey ctxKey = "httpapi.claims"

var publicPaths = map[string]struct{}{
	"/health":             {},
	"/rate-limits/status": {},
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := h.auth.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxClaimsKey, claims)))
	})
}

func claimsFrom(r *http.Request) tenantauth.Claims {
	claims, _ := r.Context().Value(ctxClaimsKey).(tenantauth.Claims)
	return claims
}
