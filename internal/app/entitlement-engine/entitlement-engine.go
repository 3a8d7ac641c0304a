package entitlementengine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/ridelink/entitlement-engine/internal/cache"
	"github.com/ridelink/entitlement-engine/internal/config"
	"github.com/ridelink/entitlement-engine/internal/migrations"
	"github.com/ridelink/entitlement-engine/internal/rabbitmq"
	"github.com/ridelink/entitlement-engine/internal/referrals"
	entitlementservice "github.com/ridelink/entitlement-engine/internal/services/entitlement"
	quotaservice "github.com/ridelink/entitlement-engine/internal/services/quota"
	reconcilerservice "github.com/ridelink/entitlement-engine/internal/services/reconciler"
	"github.com/ridelink/entitlement-engine/internal/storage/repository"
)

type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	rabbitMQ *amqp.Connection
	channel  *amqp.Channel
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.URLRabbit, cfg.ConnRetries, cfg.ConnRetryWait)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn)
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(ch)

	directoryClient := referrals.NewClient(cfg.DirectoryURL, cfg.DirectoryAPIKey, cfg.DirectoryWait)

	reconcilerService := reconcilerservice.New(db, cacheRedis, publisher, logger)
	entitlementService := entitlementservice.New(db, cacheRedis, logger)
	quotaService := quotaservice.New(db, directoryClient, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, db, reconcilerService, entitlementService, quotaService, cfg.WebhookSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		rabbitMQ: conn,
		channel:  ch,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.channel.Close()
		_ = a.rabbitMQ.Close()
		_ = a.db.DB.Close()
		return err
	}
}
