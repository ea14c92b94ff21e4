package app

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "chargeshare/backend/libs/db"
	libredis "chargeshare/backend/libs/redis"
	"chargeshare/backend/services/settlement-service/internal/config"
	"chargeshare/backend/services/settlement-service/internal/events"
	httpserver "chargeshare/backend/services/settlement-service/internal/http"
	"chargeshare/backend/services/settlement-service/internal/http/handlers"
	"chargeshare/backend/services/settlement-service/internal/payments"
	"chargeshare/backend/services/settlement-service/internal/repository"
	"chargeshare/backend/services/settlement-service/internal/service"
)

// App wires settlement-service dependencies.
type App struct {
	server      *httpserver.Server
	consumer    *events.Consumer
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	repo := repository.NewSettlementRepository(sqlDB)
	provider := payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.APIKey,
		payments.NewDefaultHTTPClient(cfg.Payments.Timeout))

	engine := service.NewEngine(repo, provider, cfg.Payments.HoldCents, cfg.Payments.PlatformShare, logger)

	consumer := events.NewConsumer(redisClient, cfg.Stream.Group, cfg.Stream.Consumer, engine.HandleEvent, logger)

	routes := httpserver.Routes{
		Health:     handlers.NewHealthHandler(),
		Settlement: handlers.NewSettlementHandler(engine, logger),
	}
	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		consumer:    consumer,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the stream consumer and the support HTTP server.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.consumer.Run(ctx) })
	group.Go(func() error { return a.server.Run(ctx) })
	return group.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
