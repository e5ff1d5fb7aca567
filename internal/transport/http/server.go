package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"roaia/internal/cache"
	"roaia/internal/config"
	"roaia/internal/consumer"
	"roaia/internal/database"
	"roaia/internal/handler"
	"roaia/internal/logger"
	"roaia/internal/metrics"
	"roaia/internal/model"
	"roaia/internal/mqtt"
	"roaia/internal/queue"
	"roaia/internal/redis"
	"roaia/internal/repository"
	"roaia/internal/service"
	authmw "roaia/internal/transport/http/middleware"
	"roaia/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "roaia")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database and Redis
	db, err := database.Connect(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()

	m := metrics.New()

	// 3. Repositories
	users := repository.NewUserRepository(db)
	glasses := repository.NewGlassesRepository(db)
	contacts := repository.NewContactRepository(db)
	devices := repository.NewDeviceTokenRepository(db)
	refreshTokens := repository.NewRefreshTokenRepository(db)
	notifications := repository.NewNotificationRepository(db)
	tx := repository.NewTransactor(db)

	// 4. Services
	push, err := newPushGateway(ctx, cfg, log)
	if err != nil {
		return err
	}

	media, err := service.NewMediaService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to init media service: %w", err)
	}

	publisher := queue.NewPublisher(rdb.Client, log)

	sessions := service.NewSessionManager(service.NewSessionConfig(cfg), users, refreshTokens, devices, tx, m, log)
	userSvc := service.NewUserService(
		service.UserConfig{
			OTPTTL:          time.Duration(cfg.OTPMaxAge) * time.Second,
			AppDomain:       cfg.AppDomain,
			MaxFailedLogins: cfg.LoginMaxFailedAttempts,
			LockoutDuration: time.Duration(cfg.LoginLockoutSeconds) * time.Second,
			MaxOTPAttempts:  cfg.OTPMaxAttempts,
		},
		users, glasses, devices, refreshTokens, tx, sessions, publisher, media, log,
	)
	accountSvc := service.NewAccountService(
		service.AccountConfig{FreeContactQuota: cfg.FreeContactQuota},
		glasses, contacts, tx, publisher, media, log,
	)
	notifSvc := service.NewNotificationService(notifications, devices, glasses, push, m, log)

	locations := cache.NewLocationCache(rdb.Client, time.Duration(cfg.LocationTTL)*time.Second, log)
	relay := service.NewGPSRelay(rdb.Client, locations, log)

	assistant := service.NewAudioService(service.AudioConfig{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		TranscribeModel: cfg.OpenAITranscribeModel,
		ChatModel:       cfg.OpenAIChatModel,
	}, log)

	// 5. Background workers
	eventHandler := worker.NewHandler(notifSvc, service.NewMailer(cfg, log), worker.ContactTemplate{
		Title:    cfg.ContactNotificationTitle,
		Body:     cfg.ContactNotificationBody,
		ImageURL: cfg.ContactNotificationImageURL,
		AudioURL: cfg.ContactNotificationAudioURL,
		Category: model.Category(cfg.ContactNotificationCategory),
	}, log)
	manager := worker.NewManager(queue.NewConsumer(rdb.Client, log), eventHandler,
		worker.ManagerConfig{WorkerCount: cfg.WorkerCount}, m, log)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer manager.Stop()

	if cfg.MQTTBroker != "" {
		client, err := mqtt.Connect(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		defer client.Disconnect()

		gpsConsumer, err := consumer.NewMQTTGPSConsumer(cfg.MQTTGPSTopic, client, relay, m, log)
		if err != nil {
			return err
		}
		go func() {
			if err := gpsConsumer.Start(ctx); err != nil {
				log.Error("[MQTT] GPS consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("MQTT broker not configured, GPS accepted over HTTP only")
	}

	// 6. Setup Server
	router := NewRouter(RouterConfig{
		AuthHandler:         handler.NewAuthHandler(userSvc, sessions, media, log),
		DashboardHandler:    handler.NewDashboardHandler(userSvc, log),
		AccountHandler:      handler.NewAccountHandler(accountSvc, media, log),
		NotificationHandler: handler.NewNotificationHandler(notifSvc, log),
		GPSHandler:          handler.NewGPSHandler(relay, cfg.AllowedOrigins, m, log),
		AssistantHandler:    handler.NewAssistantHandler(assistant, log),
		Tokens:              authmw.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		AuthRateLimit: authmw.RateLimit(rdb.Client, authmw.RateLimitConfig{
			Enabled:        cfg.RateLimitEnabled,
			Capacity:       cfg.RateLimitCapacity,
			RefillTokens:   cfg.RateLimitRefillTokens,
			RefillInterval: cfg.RateLimitRefillInterval,
			TTL:            cfg.RateLimitTTL,
			Prefix:         "roaia:rl:auth",
		}, log),
		Metrics:             m,
		Logger:              log,
	})

	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newPushGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.PushGateway, error) {
	switch cfg.PushProvider {
	case "expo":
		return service.NewExpoGateway("", log), nil
	case "fcm", "":
		gw, err := service.NewFCMGateway(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init fcm: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.PushProvider)
	}
}
