package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/service"
)

type authCtxKey int

const (
	authUserKey authCtxKey = iota
	authTokenKey
)

func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plaintext, ok := auth.BearerToken(r)
		if !ok {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}

		u, tok, err := a.authSvc.Authenticate(r.Context(), plaintext)
		if err != nil {
			a.fail(w, r, err)
			return
		}

		annotateCaller(r.Context(), u.ID, tok.ID)
		ctx := context.WithValue(r.Context(), authUserKey, u)
		ctx = context.WithValue(ctx, authTokenKey, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// requireGuard runs after requireAuth. Roles and permissions are read from
// the store on every request, so a change takes effect immediately.
func (a *api) requireGuard(g service.Guard, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		u, _ := CurrentUser(r.Context())
		if err := a.authzSvc.Check(r.Context(), u.ID, g); err != nil {
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) requirePermission(next http.HandlerFunc, perms ...string) http.HandlerFunc {
	return a.requireGuard(service.AnyPermission(perms...), next)
}

func (a *api) requireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return a.requireGuard(service.AnyRole(roles...), next)
}

func CurrentUser(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(authUserKey).(domain.User)
	return u, ok
}

func CurrentToken(ctx context.Context) (domain.AccessToken, bool) {
	t, ok := ctx.Value(authTokenKey).(domain.AccessToken)
	return t, ok
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
