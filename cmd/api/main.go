package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/background"
	"github.com/mportier/vaultgate/internal/config"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/handlers"
	middlewareCustom "github.com/mportier/vaultgate/internal/middleware"
	"github.com/mportier/vaultgate/internal/repositories"
	"github.com/mportier/vaultgate/internal/routes"
	"github.com/mportier/vaultgate/internal/services"
	pkglogger "github.com/mportier/vaultgate/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	policyRepo := repositories.NewPolicyRepository(db)
	ssoConfigRepo := repositories.NewSsoConfigRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	// Token managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)
	rememberManager := auth.NewRememberTokenManager(cfg.Auth.JWTSecret, cfg.Auth.RememberTokenExpiry)
	sessionManager := auth.NewSessionTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: cfg.Auth.AuthDelayBase,
		Jitter:    cfg.Auth.AuthDelayJitter,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)
	features := services.NewConfigFeatureService(cfg.Features)

	mailService, err := services.NewAWSSESMailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize mail service", slog.Any("error", err))
		os.Exit(1)
	}

	// External second-factor verifiers
	duoVerifier := services.NewDuoWebVerifier(cfg.External.DuoApplicationKey, cfg.External.DuoRedirectURI)
	var yubikeyVerifier services.YubiKeyVerifier
	if cfg.External.YubicoClientID != "" && cfg.External.YubicoSecretKey != "" {
		yubikeyVerifier, err = services.NewYubiCloudVerifier(cfg.External.YubicoClientID, cfg.External.YubicoSecretKey, nil)
		if err != nil {
			logger.Error("failed to initialize yubico verifier", slog.Any("error", err))
			os.Exit(1)
		}
	}
	var webauthnVerifier services.WebAuthnVerifier
	if cfg.External.WebAuthnRPID != "" {
		webauthnVerifier, err = services.NewWebAuthnService(
			cfg.External.WebAuthnRPID, cfg.External.WebAuthnRPDisplayName,
			cfg.Server.AllowedOrigins, redisClient, cfg.Redis.WebAuthnSessionTTL, logger,
		)
		if err != nil {
			logger.Error("failed to initialize webauthn verifier", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Services
	abilitiesCache := services.NewOrganizationAbilitiesCache(redisClient, orgRepo, cfg.Redis.AbilitiesTTL, logger)
	emailCodes := services.NewEmailCodeService(redisClient, mailService, cfg.Redis.EmailCodeTTL, logger)
	policyService := services.NewPolicyService(policyRepo, logger)
	deviceService := services.NewDeviceService(deviceRepo, mailService, auditLogger, logger, services.DeviceServiceConfig{
		NewDeviceAccountAge:  cfg.Auth.NewDeviceAccountAge,
		DisableNewDeviceMail: cfg.Email.DisableNewDeviceMail,
	})
	decryptionOptions := services.NewDecryptionOptionsBuilder(policyService, logger)
	twoFactorEngine := services.NewTwoFactorEngine(
		orgRepo, abilitiesCache, totpManager, emailCodes,
		rememberManager, sessionManager,
		duoVerifier, yubikeyVerifier, webauthnVerifier,
		features, logger,
	)
	loginValidator := services.NewLoginValidator(
		userRepo, ssoConfigRepo, eventRepo,
		policyService, twoFactorEngine, deviceService, decryptionOptions,
		features, mailService, timingDelay, auditLogger, logger,
		services.ValidatorConfig{FailedLoginCeiling: cfg.Auth.FailedLoginCeiling},
	)
	enrollmentService := services.NewEnrollmentService(userRepo, totpManager, emailCodes, auditLogger, logger)

	// Handlers
	outcomeWriter := handlers.NewJSONOutcomeWriter(tokenManager, logger)
	tokenHandler := handlers.NewTokenHandler(loginValidator, sessionManager, outcomeWriter, nil)
	twoFactorHandler := handlers.NewTwoFactorHandler(enrollmentService, logger)
	deviceHandler := handlers.NewDeviceHandler(deviceService, logger)

	cleanupManager := background.NewCleanupManager(eventRepo, logger, cfg.Auth.CleanupInterval, cfg.Auth.EventRetention)

	// Router
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, tokenHandler, twoFactorHandler, deviceHandler, tokenManager, userRepo)

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

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
