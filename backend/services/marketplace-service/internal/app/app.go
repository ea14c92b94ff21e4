package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "chargeshare/backend/libs/db"
	libredis "chargeshare/backend/libs/redis"
	"chargeshare/backend/services/marketplace-service/internal/auth"
	"chargeshare/backend/services/marketplace-service/internal/config"
	"chargeshare/backend/services/marketplace-service/internal/events"
	httpserver "chargeshare/backend/services/marketplace-service/internal/http"
	"chargeshare/backend/services/marketplace-service/internal/http/handlers"
	"chargeshare/backend/services/marketplace-service/internal/http/middleware"
	"chargeshare/backend/services/marketplace-service/internal/reminder"
	"chargeshare/backend/services/marketplace-service/internal/repository"
	"chargeshare/backend/services/marketplace-service/internal/service"
	"chargeshare/backend/services/marketplace-service/internal/ws"
)

// App wires marketplace-service dependencies.
type App struct {
	server        *httpserver.Server
	hub           *ws.Hub
	charges       *service.ChargeService
	sweepInterval time.Duration
	db            *sql.DB
	redisClient   *redis.Client
	logger        *zap.Logger
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

	stationRepo := repository.NewStationRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	userRepo := repository.NewUserRepository(sqlDB)

	publisher := events.NewPublisher(redisClient, logger)
	reminders := reminder.NewStore(redisClient, 24*time.Hour)

	hasher := auth.NewBcryptHasher(0)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	authService := service.NewAuthService(userRepo, hasher, tokens, logger)
	stationsService := service.NewStationsService(stationRepo, logger)
	chargeService := service.NewChargeService(stationRepo, sessionRepo, userRepo, publisher, reminders, logger)

	hub := ws.NewHub(redisClient, logger)

	stationsHandlers := handlers.NewStationsHandlers(stationsService, logger)
	chargeHandlers := handlers.NewChargeHandlers(chargeService, logger)
	billingHandlers := handlers.NewBillingHandlers(userRepo, logger)

	authed := middleware.Auth(tokens)
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authed(h).ServeHTTP(w, r)
		}
	}

	routes := httpserver.Routes{
		Signup: handlers.NewSignupHandler(authService),
		Login:  handlers.NewLoginHandler(authService),
		Health: handlers.NewHealthHandler(),

		StationsNearby:    stationsHandlers.Nearby,
		StationsCreate:    protect(stationsHandlers.Create),
		StationsMine:      protect(stationsHandlers.Mine),
		StationsSetActive: protect(stationsHandlers.SetActive),

		StartNavigation:  protect(chargeHandlers.StartNavigation),
		CancelNavigation: protect(chargeHandlers.CancelNavigation),
		StartCharge:      protect(chargeHandlers.StartCharge),
		EndCharge:        protect(chargeHandlers.EndCharge),
		ReportLocation:   protect(chargeHandlers.ReportLocation),
		SessionsMe:       protect(chargeHandlers.SessionsMe),

		SetPaymentMethod: protect(billingHandlers.SetPaymentMethod),
		SetPayoutAccount: protect(billingHandlers.SetPayoutAccount),
		Wallet:           protect(billingHandlers.Wallet),

		StationFeed: hub.Handler(),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:        server,
		hub:           hub,
		charges:       chargeService,
		sweepInterval: cfg.Sweep.Interval,
		db:            sqlDB,
		redisClient:   redisClient,
		logger:        logger,
	}, nil
}

// Run starts the HTTP server, the live feed hub, and the reservation sweep.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)
	go a.runSweep(ctx)
	return a.server.Run(ctx)
}

func (a *App) runSweep(ctx context.Context) {
	interval := a.sweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.charges.ReleaseExpiredReservations(ctx); err != nil {
				a.logger.Error("reservation sweep failed", zap.Error(err))
			}
		}
	}
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
