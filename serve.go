package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"messaging-service/internal/config"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := log.Logger

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)

	app := newApplication(cfg, logger, store, publisher, limiter)
	router, err := newRouter(app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("http shutdown")
	}
	app.dispatcher.Wait()
	_ = closeLimiter()
	_ = publisher.Close()
	_ = closeStore()
	_ = shutdownTracing(shutdownCtx)
	return err
}
