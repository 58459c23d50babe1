package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type contextKey string

const (
	tenantContextKey contextKey = "tenant"
	tenantSlotKey    contextKey = "tenant_slot"
)

// Authenticator resolves a bearer credential to a tenant.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*domain.Tenant, error)
}

func TenantFromContext(ctx context.Context) *domain.Tenant {
	t, _ := ctx.Value(tenantContextKey).(*domain.Tenant)
	return t
}

// WithTenant stores the authenticated tenant in ctx.
func WithTenant(ctx context.Context, t *domain.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, t)
}

// withTenantSlot lets an outer middleware learn which tenant a request
// authenticated as.
func withTenantSlot(ctx context.Context, id *string) context.Context {
	return context.WithValue(ctx, tenantSlotKey, id)
}

// Auth accepts "Authorization: Bearer <api key | login token>".
func Auth(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			scheme, credential, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(credential) == "" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tenant, err := auth.Authenticate(r.Context(), strings.TrimSpace(credential))
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrForbidden):
				writeError(w, http.StatusForbidden, err.Error())
				return
			case errors.Is(err, domain.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			default:
				logger.Error("authentication failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			if slot, ok := r.Context().Value(tenantSlotKey).(*string); ok {
				*slot = tenant.ID.String()
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

// AdminOnly rejects callers without the admin role.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := TenantFromContext(r.Context())
		if t == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !t.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
