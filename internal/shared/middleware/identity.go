package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/Shawndas06/bank-aggregator/internal/shared/identity"
	"github.com/Shawndas06/bank-aggregator/internal/shared/logger"
)

// RequireIdentity resolves the caller from the gateway headers and rejects
// anonymous requests with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identity.FromHeaders(r.Header)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Authentication required"})
			return
		}

		ctx := identity.WithContext(r.Context(), id)
		ctx = logger.WithUserID(ctx, id.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
