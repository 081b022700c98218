// cmd/api/main.go

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"brandpulse/internal/adapter/collector"
	"brandpulse/internal/adapter/events"
	"brandpulse/internal/adapter/storage"
	"brandpulse/internal/config"
	domain "brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/server"
	"brandpulse/internal/service/pipeline"
	"brandpulse/internal/service/theme"
)

func main() {
	logger := logging.NewLoggerWithService("brandpulse-api")
	config.LoadEnv(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize storage
	store, closer, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer closer.Close()

	// NATS is optional; without it events are not published and the
	// raw-batch subscriber and event stream are disabled.
	var publisher domain.EventPublisher
	var eventSource *nats.Conn
	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.WithError(err).Warn("NATS unavailable, running without events")
	} else {
		defer natsConn.Close()
		publisher = events.NewPublisher(natsConn, cfg.NATS.EventsPrefix)
		eventSource = natsConn
	}

	// Topic refresher
	refresher := theme.NewRefresher(
		store,
		publisher,
		theme.NewTermFilter(cfg.Catalog.Stopwords),
		pipeline.RefresherConfig(cfg),
		logger,
	)
	if err := refresher.Load(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load topic snapshot, discovered themes disabled until next refresh")
	}

	// Pipeline
	components, err := pipeline.NewComponents(cfg, refresher, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build pipeline components")
	}
	orchestrator := pipeline.NewOrchestrator(store, publisher, components, pipeline.Config{
		Version:          cfg.Pipeline.Version,
		CommitMaxRetries: cfg.Pipeline.CommitMaxRetries,
		CommitBackoff:    cfg.Pipeline.CommitBackoff,
		CommitMaxBackoff: cfg.Pipeline.CommitMaxBackoff,
	}, logger)
	refresher.SetTrendRefresher(orchestrator)
	refresher.Start(ctx)

	// Raw batch subscriber
	var subscriber *events.Subscriber
	if natsConn != nil {
		subscriber = events.NewSubscriber(natsConn, cfg.NATS.EventsPrefix, orchestrator, logger)
		if err := subscriber.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to subscribe to raw batches")
		}
	}

	// Scheduled collection
	var scheduler *collector.Scheduler
	if cfg.Collect.Enabled {
		scheduler = collector.NewScheduler(orchestrator, cfg.Collect.Interval, logger, collectors(cfg.Collect)...)
		scheduler.Start(ctx)
	}

	// Initialize HTTP server
	deps := server.Dependencies{
		Reader:       store,
		Runner:       orchestrator,
		Topics:       refresher,
		EventsPrefix: cfg.NATS.EventsPrefix,
	}
	if eventSource != nil {
		deps.Events = eventSource
	}
	httpServer := server.NewServer(cfg.Server, deps, logger)

	// Start HTTP server
	go func() {
		logger.Infof("Starting HTTP server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	logger.Info("Shutting down services...")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown error")
	}

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			logger.WithError(err).Warn("Subscriber shutdown error")
		}
	}

	cancel()
	refresher.Wait()
	if scheduler != nil {
		scheduler.Wait()
	}

	logger.Info("Shutdown complete")
}

// collectors builds the enabled platform collectors
func collectors(cfg config.CollectConfig) []collector.Collector {
	var out []collector.Collector
	if cfg.Reddit.Enabled {
		out = append(out, collector.NewRedditClient(cfg.Reddit))
	}
	if cfg.Twitter.Enabled {
		out = append(out, collector.NewTwitterClient(cfg.Twitter))
	}
	return out
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger logging.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("brandpulse-api"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	return nats.Connect(cfg.URL, options...)
}
