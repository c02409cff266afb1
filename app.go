package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/events"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/ratelimit"
	"messaging-service/internal/repositories"
	"messaging-service/internal/repositories/memory"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const auditRoutingKey = "audit.events"

// application wires the services shared by the HTTP router and the websocket hub.
type application struct {
	cfg    *config.Config
	logger zerolog.Logger
	now    func() time.Time

	dispatcher *events.Dispatcher
	hub        *ws.Hub
	issuer     *auth.Issuer
	limiter    ratelimit.Limiter
	audit      *telemetry.AuditEmitter
	// publisherMode is "amqp" or "noop".
	publisherMode string

	users         *services.UserService
	conversations *services.ConversationService
	messages      *services.MessageService
	notifications *services.NotificationService
}

func newApplication(cfg *config.Config, logger zerolog.Logger, store repositories.Store, publisher rabbitmq.Publisher, limiter ratelimit.Limiter) *application {
	dispatcher := events.NewDispatcher(logger, cfg.NotifyAsync)
	hub := ws.NewHub(logger)
	dispatcher.Subscribe(hub)
	dispatcher.Subscribe(rabbitmq.NewEventListener(publisher))

	deps := services.Deps{Store: store, Events: dispatcher, Logger: logger}
	return &application{
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
		dispatcher:    dispatcher,
		hub:           hub,
		issuer:        auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		limiter:       limiter,
		audit:         telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger),
		publisherMode: rabbitmq.PublisherMode(publisher),
		users:         services.NewUserService(deps),
		conversations: services.NewConversationService(deps),
		messages:      services.NewMessageService(deps),
		notifications: services.NewNotificationService(deps),
	}
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (repositories.Store, func() error, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return memory.NewStore(), func() error { return nil }, nil
	}
	database, err := db.Connect(ctx, cfg.DBDSN, true)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewPostgresStore(database), database.Close, nil
}

// newLimiter prefers the shared Redis window and falls back to an in-process one.
func newLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ratelimit.Limiter, func() error) {
	if cfg.RedisURL != "" {
		limiter, err := ratelimit.NewRedisWindow(cfg.RedisURL, cfg.RateLimitMessages, cfg.RateLimitWindow)
		if err == nil {
			if err = limiter.Ping(); err == nil {
				logger.Info().Msg("rate limiter backed by redis")
				return limiter, limiter.Close
			}
			_ = limiter.Close()
		}
		logger.Warn().Err(err).Msg("redis unavailable, using in-process rate limiter")
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimitMessages, cfg.RateLimitWindow)
	go limiter.RunJanitor(ctx, cfg.RateLimitWindow)
	return limiter, func() error { return nil }
}
