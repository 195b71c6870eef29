package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/config"
	"github.com/prperemyshlev/interview-auth/internal/handler"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/service"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"github.com/prperemyshlev/interview-auth/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second
	authPrefix      = "/api/v1/auth/"
)

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
	admin  service.AdminService
}

// handlers groups everything the routes need
type handlers struct {
	auth        *handler.AuthHandler
	oauth       *handler.OAuthHandler
	admin       *handler.AdminHandler
	guard       *service.Guard
	csrf        *service.CSRFService
	rateLimiter *service.RateLimiter
	health      *HealthChecker
}

func NewApp(infra Infrastructure, cfg *config.Config) *App {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres())
	store := infra.KVStore()
	metrics := infra.AuthMetrics()

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)
	hasher := utils.NewPasswordHasher(cfg.Security.BCryptCost)

	revocation := service.NewRevocationService(store, jwtManager, metrics)
	rateLimiter := service.NewRateLimiter(store)
	lockout := service.NewLockoutTracker(store, cfg.Security.FailedLoginWindow.Duration)
	csrf := service.NewCSRFService(store)
	guard := service.NewGuard(jwtManager, revocation, repos.User, repos.Permission)

	recovery := service.NewRecoveryService(store, repos.User, hasher, lockout, service.NewLogMailer(logger), logger, service.RecoveryConfig{
		FrontendURL:          cfg.FrontendURL,
		PasswordResetTTL:     cfg.Security.PasswordResetTTL.Duration,
		EmailVerificationTTL: cfg.Security.EmailVerificationTTL.Duration,
	})

	authService := service.NewAuthService(
		repos.User,
		repos.Permission,
		jwtManager,
		hasher,
		revocation,
		rateLimiter,
		lockout,
		csrf,
		recovery,
		metrics,
		logger,
		service.AuthConfig{
			LoginRateLimit:  cfg.Security.LoginRateLimit,
			LoginRateWindow: cfg.Security.LoginRateWindow.Duration,
			MaxFailedLogins: cfg.Security.MaxFailedLogins,
			LockoutDuration: cfg.Security.LockoutDuration.Duration,
		},
	)

	oauthService := service.NewOAuthService(
		service.NewProviders(cfg.OAuth),
		store,
		repos.User,
		repos.Permission,
		jwtManager,
		csrf,
		metrics,
		logger,
		service.OAuthConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			StateTTL:       cfg.Security.OAuthStateTTL.Duration,
			HTTPTimeout:    cfg.OAuth.HTTPTimeout.Duration,
		},
	)

	adminService := service.NewAdminService(repos.User, repos.Permission, hasher, logger)

	cookies := handler.SessionCookies{Secure: cfg.Cookie.Secure, Domain: cfg.Cookie.Domain}

	h := handlers{
		auth:        handler.NewAuthHandler(authService, recovery, cookies, cfg.Security.LoginRateWindow.Duration, logger),
		oauth:       handler.NewOAuthHandler(oauthService, cookies, logger),
		admin:       handler.NewAdminHandler(adminService),
		guard:       guard,
		csrf:        csrf,
		rateLimiter: rateLimiter,
		health:      NewHealthChecker(infra),
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Error("Invalid trusted proxies, forwarded headers are ignored", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.RequestIDMiddleware())
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, h, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
		admin:  adminService,
	}
}

// Bootstrap creates the configured super admin when the deployment has none
func (a *App) Bootstrap(ctx context.Context) error {
	email := a.config.Bootstrap.AdminEmail
	if email == "" {
		return nil
	}

	created, err := a.admin.EnsureSuperAdmin(ctx, email, a.config.Bootstrap.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to bootstrap super admin: %w", err)
	}
	if !created {
		a.infra.Logger().Info("Super admin already present, bootstrap skipped")
	}

	return nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(router *gin.Engine, cfg *config.Config, h handlers, metricsHandler http.Handler) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", h.health.Handler)

	limit := func(scope string) gin.HandlerFunc {
		return handler.RateLimitMiddleware(h.rateLimiter, scope, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.IPBasedKey)
	}
	authenticated := handler.AuthMiddleware(h.guard)
	csrfProtected := handler.CSRFMiddleware(h.csrf, authPrefix)

	api := router.Group("/api/v1")
	api.Use(handler.ThrottleMiddleware(cfg.Security.ThrottleRPS, cfg.Security.ThrottleBurst))
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", limit("register"), h.auth.Register)
			// Login is throttled per client inside the login flow.
			auth.POST("/login", h.auth.Login)
			auth.POST("/refresh", h.auth.Refresh)
			auth.POST("/logout", handler.OptionalAuthMiddleware(h.guard), h.auth.Logout)
			auth.GET("/me", authenticated, h.auth.GetMe)
			auth.POST("/csrf-token", authenticated, h.auth.CSRFToken)

			auth.POST("/password-reset/request", limit("password_reset"), h.auth.RequestPasswordReset)
			auth.POST("/password-reset/confirm", limit("password_reset_confirm"), h.auth.ConfirmPasswordReset)
			auth.POST("/email/verify/request", limit("email_verify"), h.auth.RequestEmailVerification)
			auth.POST("/email/verify/confirm", h.auth.ConfirmEmailVerification)

			auth.GET("/oauth/providers", h.oauth.Providers)
			auth.GET("/oauth/:provider", h.oauth.Initiate)
			auth.GET("/oauth/:provider/callback", h.oauth.Callback)
		}

		account := api.Group("/account", authenticated, csrfProtected)
		{
			account.PUT("/password", h.auth.ChangePassword)
		}

		admin := api.Group("/admin", authenticated, csrfProtected)
		{
			admin.GET("/users", handler.RequirePermission(h.guard, "users", "read"), h.admin.ListUsers)
			admin.POST("/users", handler.RequirePermission(h.guard, "users", "write"), h.admin.CreateUser)
			admin.GET("/users/:id", handler.RequirePermission(h.guard, "users", "read"), h.admin.GetUser)
			admin.PUT("/users/:id/role", handler.RequirePermission(h.guard, "roles", "manage"), h.admin.UpdateRole)
			admin.PUT("/users/:id/status", handler.RequirePermission(h.guard, "users", "write"), h.admin.UpdateStatus)
			admin.PUT("/users/:id/permissions", handler.RequirePermission(h.guard, "roles", "manage"), h.admin.SetUserPermissions)
			admin.GET("/permissions", handler.RequirePermission(h.guard, "roles", "manage"), h.admin.ListPermissions)
			admin.POST("/permissions", handler.RequirePermission(h.guard, "roles", "manage"), h.admin.CreatePermission)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// The server drains before connections it depends on are closed.
	if err := a.server.Shutdown(ctx); err != nil {
		a.infra.Logger().Error("Server shutdown failed", zap.Error(err))
		return errors.Join(err, a.infra.Shutdown(ctx))
	}

	if err := a.infra.Shutdown(ctx); err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
