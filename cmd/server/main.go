package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/config"
	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/email"
	"StreamAccounts/internal/httpapi"
	"StreamAccounts/internal/service"
	"StreamAccounts/internal/store/activeprofile"
	"StreamAccounts/internal/store/postgres"
	"StreamAccounts/internal/store/sqlite"
	"StreamAccounts/internal/telemetry"
)

const serviceName = "stream-accounts"

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(context.Background(), serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Error("telemetry setup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	st, err := openStores(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer st.close()

	if err := bootstrapAdminUser(context.Background(), logger, st.users, cfg.AdminBootstrapEmail, cfg.AdminBootstrapPassword); err != nil {
		logger.Error("bootstrap admin failed", "err", err)
		os.Exit(1)
	}

	active, closeActive := newActiveProfileStore(cfg, logger)
	defer closeActive()

	dispatcher := service.NewNotificationDispatcher(newNotificationSender(cfg, logger), service.DispatcherOptions{Logger: logger})

	proofs := auth.NewProofSigner(cfg.VerificationSecret)
	if !proofs.Keyed() {
		logger.Warn("APP_VERIFICATION_SECRET not set: verification links are unsigned")
	}
	links := service.Links{FrontendURL: cfg.FrontendURL}
	policy := newPasswordPolicy(cfg, logger)

	verificationSvc := &service.VerificationService{
		Users:    st.verifyUsers,
		Proofs:   proofs,
		Notifier: dispatcher,
		Links:    links,
		Logger:   logger,
	}
	authSvc := &service.AuthService{
		Users:        st.users,
		Tokens:       st.tokens,
		Policy:       policy,
		Verification: verificationSvc,
		Logger:       logger,
	}
	resetSvc := &service.PasswordResetService{
		Store:    st.resets,
		Users:    st.users,
		Policy:   policy,
		Notifier: dispatcher,
		Links:    links,
		TokenTTL: cfg.ResetTokenTTL,
	}
	authzSvc := &service.AuthzService{Store: st.roles}
	adminSvc := &service.AdminService{Users: st.adminUsers, Roles: st.roles}
	profileSvc := &service.ProfileService{Store: st.profiles, Active: active, Logger: logger}

	apiRouter := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:       logger,
		IsProd:       cfg.IsProd(),
		Debug:        cfg.Debug,
		DBPing:       st.ping,
		Auth:         authSvc,
		Verification: verificationSvc,
		Reset:        resetSvc,
		Authz:        authzSvc,
		Admin:        adminSvc,
		Profiles:     profileSvc,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(apiRouter, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		if err := dispatcher.Close(ctx); err != nil {
			logger.Warn("notification drain incomplete", "err", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

type stores struct {
	users       service.UsersStore
	adminUsers  service.AdminUsersStore
	verifyUsers service.VerificationUsersStore
	tokens      service.TokensStore
	resets      service.PasswordResetStore
	roles       service.RolesStore
	profiles    service.ProfilesStore
	ping        func(context.Context) error
	close       func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	driver, target, err := cfg.Database()
	if err != nil {
		return stores{}, err
	}

	switch driver {
	case "postgres":
		pool, err := postgres.Open(ctx, target)
		if err != nil {
			return stores{}, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return stores{}, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database ready", "driver", driver)
		users := postgres.NewUsersStore(pool)
		return stores{
			users:       users,
			adminUsers:  users,
			verifyUsers: users,
			tokens:      postgres.NewTokensStore(pool),
			resets:      postgres.NewPasswordResetStore(pool),
			roles:       postgres.NewRolesStore(pool),
			profiles:    postgres.NewProfilesStore(pool),
			ping:        pool.Ping,
			close:       pool.Close,
		}, nil
	default:
		s, err := sqlite.Open(ctx, target)
		if err != nil {
			return stores{}, err
		}
		logger.Info("database ready", "driver", driver, "path", target)
		return stores{
			users:       s,
			adminUsers:  s,
			verifyUsers: s,
			tokens:      s,
			resets:      s,
			roles:       s,
			profiles:    s,
			ping:        s.Ping,
			close:       func() { _ = s.Close() },
		}, nil
	}
}

// newActiveProfileStore uses Redis when configured and falls back to an
// in-process map otherwise. An unreachable Redis is logged, not fatal: the
// pointer degrades to the oldest-profile fallback.
func newActiveProfileStore(cfg config.Config, logger *slog.Logger) (service.ActiveProfileStore, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("active profile store: in-memory")
		return activeprofile.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := activeprofile.NewRedisStore(client, cfg.ActiveProfileTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("active profile store: redis ping failed", "err", err, "addr", cfg.RedisAddr)
	} else {
		logger.Info("active profile store: redis", "addr", cfg.RedisAddr)
	}
	return store, func() { _ = client.Close() }
}

func newNotificationSender(cfg config.Config, logger *slog.Logger) service.NotificationSender {
	if !cfg.SMTPConfigured() {
		logger.Info("notifications: smtp not configured, logging only")
		return &service.LogNotificationSender{Logger: logger}
	}
	return &service.EmailNotificationSender{
		SMTP: email.SMTPSettings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLSMode:  cfg.SMTPTLSMode,
		},
		FromEmail: cfg.SMTPFromEmail,
		FromName:  cfg.SMTPFromName,
	}
}

func newPasswordPolicy(cfg config.Config, logger *slog.Logger) auth.PasswordPolicy {
	checkers := []auth.BreachChecker{auth.CommonPasswords{}}
	if cfg.PwnedCheck {
		checkers = append(checkers, &auth.PwnedClient{
			BaseURL:    cfg.PwnedAPIURL,
			HTTPClient: &http.Client{Timeout: 3 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
			UserAgent:  serviceName,
		})
	}
	return auth.PasswordPolicy{Checkers: checkers, Logger: logger}
}

func bootstrapAdminUser(ctx context.Context, logger *slog.Logger, users service.UsersStore, email, password string) error {
	if password == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(password) < 12 {
		return errors.New("APP_ADMIN_BOOTSTRAP_PASSWORD: must be at least 12 characters")
	}
	if email == "" {
		return errors.New("admin bootstrap: email is required")
	}
	email = domain.NormalizeEmail(email)

	_, err := users.GetUserByEmail(ctx, email)
	if err == nil {
		logger.Info("admin bootstrap: user already exists", "email", email)
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("admin bootstrap: lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("admin bootstrap: hash password: %w", err)
	}

	now := time.Now().UTC()
	_, err = users.CreateUser(ctx, domain.NewUser{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		VerifiedAt:   &now,
	}, []string{domain.RoleSuperAdmin})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			logger.Info("admin bootstrap: user already exists", "email", email)
			return nil
		}
		return fmt.Errorf("admin bootstrap: create user: %w", err)
	}

	logger.Info("admin bootstrap: created admin user", "email", email)
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
