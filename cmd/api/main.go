package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/proptrade-auth/internal/api/http"
	"github.com/spec-kit/proptrade-auth/internal/api/http/handlers"
	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/config"
	"github.com/spec-kit/proptrade-auth/internal/events"
	"github.com/spec-kit/proptrade-auth/internal/mail"
	"github.com/spec-kit/proptrade-auth/internal/observability"
	"github.com/spec-kit/proptrade-auth/internal/persistence"
	"github.com/spec-kit/proptrade-auth/internal/ratelimit"
	"github.com/spec-kit/proptrade-auth/internal/repository"
	"github.com/spec-kit/proptrade-auth/internal/service"
	"github.com/spec-kit/proptrade-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		accountRepo   repository.AccountRepository
		ephemeralRepo repository.EphemeralTokenRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		accountRepo = repository.NewAccountRepository(pool)
		ephemeralRepo = repository.NewEphemeralTokenRepository(pool)
	} else {
		accountRepo = repository.NewMemoryAccountRepository()
		ephemeralRepo = repository.NewMemoryEphemeralTokenRepository()
	}

	clock := clockwork.NewRealClock()
	ephemeral := auth.NewEphemeralTokenStore(ephemeralRepo, accountRepo, clock, auth.EphemeralTokenOptions{
		EmailVerificationTTL: cfg.Auth.EmailVerificationTTL,
		PasswordResetTTL:     cfg.Auth.PasswordResetTTL,
		RevokePrior:          cfg.Auth.RevokePriorEphemeralTokens,
	})

	var mailer mail.Mailer
	if cfg.Notification.SendGridAPIKey != "" {
		mailer = mail.NewSendGridMailer(cfg.Notification.SendGridAPIKey, cfg.Notification.EmailFrom, cfg.Notification.EmailFromName)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, emails are logged instead of sent")
		mailer = mail.NewLogMailer(logger)
	}
	mailWorker := worker.NewMailWorker(mailer, logger, cfg.Notification.Workers, cfg.Notification.QueueSize)
	mailWorker.Start()
	defer mailWorker.Stop()

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notification, mailWorker).RegisterHandlers()

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Accounts:  accountRepo,
		Passwords: auth.NewPasswordManager(cfg.Auth),
		TOTP:      auth.NewTOTPManager(cfg.Auth.TOTPIssuer, cfg.Auth.TOTPWindow, clock),
		Tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, auth.TokenTTLs{
			Access:           cfg.Auth.AccessTokenTTL,
			Refresh:          cfg.Auth.RefreshTokenTTL,
			TwoFactorPending: cfg.Auth.TwoFactorPendingTTL,
		}, clock),
		Revocations: auth.NewRevocationRegistry(redis.Client, cfg.Redis.OpTimeout),
		Ephemeral:   ephemeral,
		Limiter:     ratelimit.New(redis.Client, cfg.RateLimit, logger, cfg.Redis.OpTimeout),
		Dispatcher:  dispatcher,
		Clock:       clock,
		Logger:      logger,
	})
	accountService := service.NewAccountService(accountRepo, logger)

	janitor := worker.NewJanitor(ephemeral, cfg.Auth.EphemeralPurgeInterval, clock, logger)
	go janitor.Run(ctx)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: !cfg.App.IsDevelopment(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService, cfg.App.IsDevelopment()),
		Passwords:      handlers.NewPasswordHandler(authService),
		TwoFactor:      handlers.NewTwoFactorHandler(authService),
		Accounts:       handlers.NewAccountsHandler(accountService),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// Recovery mails queued by in-flight requests go out before the worker stops.
	authService.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
