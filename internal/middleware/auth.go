package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey int

const principalKey contextKey = iota

// Authenticator resolves a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

// AuthMiddleware verifies the bearer token when one is present and puts
// the resolved principal into the request context. Requests without a
// bearer credential, including other Authorization schemes, pass through
// unauthenticated.
func AuthMiddleware(authn Authenticator, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, service.ErrTokenInvalid.Error())
				return
			}

			principal, err := authn.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				status := http.StatusUnauthorized
				msg := err.Error()
				if service.KindOf(err) == service.KindTransient {
					status = http.StatusServiceUnavailable
					w.Header().Set("Retry-After", "1")
					msg = service.ErrTransient.Error()
				} else if service.KindOf(err) != service.KindAuthentication {
					log.WithError(err).Error("Authentication failed")
					status = http.StatusInternalServerError
					msg = "internal server error"
				}
				writeError(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	return p, ok && p != nil
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// RequireRole rejects requests without a principal (401) or whose
// principal holds none of roles (403).
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, service.ErrUnauthenticated.Error())
				return
			}
			if !hasRole(principal, roles) {
				writeError(w, http.StatusForbidden, service.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(p *models.Principal, roles []models.Role) bool {
	for _, role := range roles {
		switch role {
		case models.RoleAdmin, models.RoleOwner:
			if p.Role == role {
				return true
			}
		}
	}
	return false
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
