package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool
	// Debug exposes internal error text in 500 responses.
	Debug bool

	DBPing func(context.Context) error

	Auth         *service.AuthService
	Verification *service.VerificationService
	Reset        *service.PasswordResetService
	Authz        *service.AuthzService
	Admin        *service.AdminService
	Profiles     *service.ProfileService

	Now func() time.Time
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:          logger,
		isProd:          opts.IsProd,
		debug:           opts.Debug,
		dbPing:          opts.DBPing,
		authSvc:         opts.Auth,
		verificationSvc: opts.Verification,
		resetSvc:        opts.Reset,
		authzSvc:        opts.Authz,
		adminSvc:        opts.Admin,
		profileSvc:      opts.Profiles,
		limiter:         newLoginLimiter(),
		nowFunc:         opts.Now,
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)

	if api.authSvc == nil {
		apiMux.HandleFunc("POST /auth/register", handleNotImplemented)
		apiMux.HandleFunc("POST /auth/login", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /auth/register", api.handleAuthRegister)
		apiMux.HandleFunc("POST /auth/login", api.handleAuthLogin)
		apiMux.HandleFunc("POST /auth/logout", api.requireAuth(api.handleAuthLogout))
		apiMux.HandleFunc("POST /auth/logout-all", api.requireAuth(api.handleAuthLogoutAll))
		apiMux.HandleFunc("GET /auth/me", api.requireAuth(api.handleAuthMe))
		apiMux.HandleFunc("GET /auth/tokens", api.requireAuth(api.handleAuthTokens))
		apiMux.HandleFunc("DELETE /auth/tokens/{id}", api.requireAuth(api.handleAuthTokenRevoke))

		if api.resetSvc != nil {
			apiMux.HandleFunc("POST /auth/forgot-password", api.handleAuthForgot)
			apiMux.HandleFunc("POST /auth/reset-password", api.handleAuthReset)
		}

		if api.verificationSvc != nil {
			apiMux.HandleFunc("POST /auth/email/verify/{id}/{proof}", api.handleEmailVerify)
			apiMux.HandleFunc("POST /auth/email/resend-verification", api.requireAuth(api.handleEmailResend))
		}

		if api.profileSvc != nil {
			apiMux.HandleFunc("GET /profiles", api.requireAuth(api.handleProfilesList))
			apiMux.HandleFunc("POST /profiles", api.requireAuth(api.handleProfilesCreate))
			apiMux.HandleFunc("GET /profiles/current", api.requireAuth(api.handleProfilesCurrent))
			apiMux.HandleFunc("GET /profiles/{id}", api.requireAuth(api.handleProfilesGet))
			apiMux.HandleFunc("PUT /profiles/{id}", api.requireAuth(api.handleProfilesUpdate))
			apiMux.HandleFunc("DELETE /profiles/{id}", api.requireAuth(api.handleProfilesDelete))
			apiMux.HandleFunc("POST /profiles/{id}/switch", api.requireAuth(api.handleProfilesSwitch))
			apiMux.HandleFunc("POST /profiles/{id}/parental-controls", api.requireAuth(api.handleProfilesParental))
			apiMux.HandleFunc("POST /profiles/{id}/preferences", api.requireAuth(api.handleProfilesPreferences))
			apiMux.HandleFunc("POST /profiles/{id}/verify-pin", api.requireAuth(api.handleProfilesVerifyPIN))
		}

		if api.authzSvc != nil && api.adminSvc != nil {
			admin := func(h http.HandlerFunc) http.HandlerFunc {
				return api.requirePermission(h, domain.PermManageUsers)
			}
			apiMux.HandleFunc("GET /admin/roles", admin(api.handleAdminRoles))
			apiMux.HandleFunc("GET /admin/users/{id}", admin(api.handleAdminUserGet))
			apiMux.HandleFunc("POST /admin/users/{id}/roles", admin(api.handleAdminRolesAssign))
			apiMux.HandleFunc("PUT /admin/users/{id}/roles", admin(api.handleAdminRolesSync))
			apiMux.HandleFunc("DELETE /admin/users/{id}/roles/{role}", admin(api.handleAdminRoleRemove))
			apiMux.HandleFunc("DELETE /admin/users/{id}", admin(api.handleAdminUserDelete))
			apiMux.HandleFunc("POST /admin/users/{id}/restore", admin(api.handleAdminUserRestore))
			apiMux.HandleFunc("GET /admin/analytics/roles", api.requireRole(api.handleAdminRoleAnalytics, domain.RoleSuperAdmin, domain.RoleProductionHouse))
		}
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handler only reports the match; ServeHTTP also sets path values.
		if _, pattern := apiMux.Handler(r); pattern == "" {
			handleNotFound(w, r)
			return
		}
		apiMux.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := publicMux.Handler(r); pattern != "" {
			publicMux.ServeHTTP(w, r)
			return
		}
		apiHandler.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "Not implemented.")
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "Not found.")
}

type api struct {
	logger *slog.Logger
	isProd bool
	debug  bool

	dbPing func(context.Context) error

	authSvc         *service.AuthService
	verificationSvc *service.VerificationService
	resetSvc        *service.PasswordResetService
	authzSvc        *service.AuthzService
	adminSvc        *service.AdminService
	profileSvc      *service.ProfileService

	limiter *rateLimiter
	nowFunc func() time.Time
}

func (a *api) now() time.Time {
	if a.nowFunc == nil {
		return time.Now().UTC()
	}
	return a.nowFunc().UTC()
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
