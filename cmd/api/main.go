package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/planpago/planpago/internal/auth"
	"github.com/planpago/planpago/internal/background"
	"github.com/planpago/planpago/internal/config"
	"github.com/planpago/planpago/internal/database"
	"github.com/planpago/planpago/internal/handlers"
	middlewareCustom "github.com/planpago/planpago/internal/middleware"
	"github.com/planpago/planpago/internal/models"
	"github.com/planpago/planpago/internal/repositories"
	"github.com/planpago/planpago/internal/routes"
	"github.com/planpago/planpago/internal/services"
	pkgauth "github.com/planpago/planpago/pkg/auth"
	pkghttp "github.com/planpago/planpago/pkg/http"
	pkglogger "github.com/planpago/planpago/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	codeRepo := repositories.NewVerificationCodeRepository(db)
	impersonationRepo := repositories.NewImpersonationRepository(db)

	// Cleanup of expired verification codes
	cleanupManager := background.NewCleanupManager(codeRepo, logger, cfg.Auth.CleanupInterval)

	// Token codec for session and step-up tokens
	tokenCodec := auth.NewTokenCodec(
		cfg.Auth.JWTSecret,
		cfg.Auth.SessionTTL,
		cfg.Auth.StepUpTokenTTL,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Per-identity login throttle
	throttle := auth.NewMemoryThrottleGuard(auth.ThrottleConfig{
		MaxAttempts: cfg.Auth.ThrottleMaxAttempts,
		Window:      cfg.Auth.ThrottleWindow,
		Cooldown:    cfg.Auth.ThrottleCooldown,
	})

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 100,
	})

	totpManager := auth.NewTOTPManager("PlanPago", cfg.Auth.TOTPSkewSteps)

	// AWS SES notifier behind the async dispatcher
	notifier, err := services.NewAWSSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email notifier", slog.Any("error", err))
		os.Exit(1)
	}
	dispatcher := services.NewDispatcher(notifier, logger)

	// Initialize services
	secondFactor := services.NewSecondFactorVerifier(codeRepo, accountRepo, totpManager, services.SecondFactorConfig{
		CodeLength:    cfg.Auth.CodeLength,
		CodeTTL:       cfg.Auth.CodeTTL,
		TrustedWindow: cfg.Auth.TrustedWindow,
	}, logger)
	loginGate := services.NewLoginGate(accountRepo, throttle, secondFactor, tokenCodec, dispatcher, timingDelay, logger, auditLogger)
	changeCoordinator := services.NewPendingChangeCoordinator(accountRepo, secondFactor, tokenCodec, dispatcher, logger, auditLogger)
	impersonationBroker := services.NewImpersonationBroker(impersonationRepo, accountRepo, tokenCodec, dispatcher, services.ImpersonationConfig{
		Freshness:  cfg.Auth.ImpersonationFreshness,
		AppBaseURL: cfg.Email.AppBaseURL,
	}, logger, auditLogger)
	accountService := services.NewAccountService(accountRepo, totpManager, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(loginGate, accountService, ipConfig)
	profileHandler := handlers.NewProfileHandler(accountService, changeCoordinator)
	adminHandler := handlers.NewAdminHandler(impersonationBroker, accountService)

	// Bootstrap first admin account if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(bootCtx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	bootCancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, profileHandler, adminHandler, tokenCodec, accountRepo)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go dispatcher.Start(workerCtx)
	go cleanupManager.Start(workerCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	dispatcher.Stop()
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminAccount creates the first admin account if ADMIN_EMAIL and
// ADMIN_PASSWORD are set.
func ensureAdminAccount(ctx context.Context, accountRepo *repositories.AccountRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	_, err := accountRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.Account{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		IsAdmin:      true,
		SecondFactor: models.SecondFactorEmail,
	}

	if _, err := accountRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created")
	return nil
}
