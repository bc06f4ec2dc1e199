package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-whatsapp-otp/internal/application/auth"
	"github.com/go-whatsapp-otp/internal/application/otp"
	"github.com/go-whatsapp-otp/internal/application/role"
	"github.com/go-whatsapp-otp/internal/config"
	"github.com/go-whatsapp-otp/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-whatsapp-otp/internal/infrastructure/jwt"
	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
	"github.com/go-whatsapp-otp/internal/infrastructure/redis"
	s3infra "github.com/go-whatsapp-otp/internal/infrastructure/s3"
	"github.com/go-whatsapp-otp/internal/infrastructure/sessionfile"
	"github.com/go-whatsapp-otp/internal/infrastructure/sns"
	"github.com/go-whatsapp-otp/internal/infrastructure/whatsapp"
	"github.com/go-whatsapp-otp/internal/pkg/logging"
	transporthttp "github.com/go-whatsapp-otp/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Bootstrap the users table (creates it if it doesn't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.UsersTable, logger)
	users := dynamo.NewUserRepo(dynamoClient, cfg.UsersTable)

	tokens, err := jwtinfra.NewProvider(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	sessions, err := sessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	devices, err := whatsapp.OpenStore(cfg.WhatsApp.StoreURL, logger)
	if err != nil {
		return err
	}
	manager := messaging.NewManager(whatsapp.NewDialer(devices, logger), sessions, logger, messaging.Options{
		TypingDelay: cfg.WhatsApp.TypingDelay,
	})

	settings := otp.Settings{
		TTL:             cfg.OTP.TTL,
		CooldownWindow:  cfg.OTP.CooldownWindow,
		MaxAttempts:     cfg.OTP.MaxAttempts,
		LoginRequestTTL: cfg.OTP.LoginRequestTTL,
	}
	observers := []otp.ExpiryObserver{otp.LogObserver(logger)}
	// SNS expiry events (optional; graceful fallback).
	if cfg.SNSExpiryTopicARN != "" {
		if client, err := sns.NewClient(ctx, cfg); err == nil {
			observers = append(observers, sns.NewExpiryPublisher(client, cfg.SNSExpiryTopicARN, logger))
		} else {
			logger.Warn("SNS expiry publisher not available", "err", err)
		}
	}
	expiry := otp.NewExpiryScheduler(rdb, cfg.OTP.ExpiryLead, logger, observers...)
	defer expiry.Stop()

	markers := otp.NewMarkers(rdb, settings)
	issuer := otp.NewIssuer(otp.NewGuard(rdb, settings), manager, expiry, settings, logger)
	trigger := otp.NewTriggerHandler(markers, issuer, manager, logger)

	go func() {
		if err := manager.Run(ctx, trigger); err != nil {
			logger.Error("messaging channel stopped", "err", err)
		}
	}()

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Auth: auth.NewService(auth.ServiceDeps{
			Users:    users,
			Markers:  markers,
			Issuer:   issuer,
			Verifier: otp.NewVerifier(rdb, expiry),
			Tokens:   tokens,
			Log:      logger,
		}),
		Roles:   role.NewService(users, logger),
		Tokens:  tokens,
		Redis:   rdb,
		Channel: manager,
		Log:     logger,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// sessionStore picks where the messaging session blob lives.
func sessionStore(ctx context.Context, cfg *config.Config) (messaging.SessionStore, error) {
	switch cfg.WhatsApp.SessionStore {
	case "s3":
		client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3infra.NewSessionStore(client, cfg.WhatsApp.SessionBucket, cfg.WhatsApp.SessionKey), nil
	case "file", "":
		return sessionfile.New(cfg.WhatsApp.SessionFile), nil
	}
	return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.WhatsApp.SessionStore)
}
