package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"EarnScan/internal/usecase"
	pkgch "EarnScan/pkg/clickhouse"
	"EarnScan/pkg/config"
	xhttp "EarnScan/pkg/http"
	pkgkafka "EarnScan/pkg/kafka"
	applogger "EarnScan/pkg/logger"
	"EarnScan/pkg/queue"
)

// App owns the serve-mode lifecycle: the HTTP API, the scan-request queue
// consumer, the results consumer on the kafka backend, and the quote stream.
// Components left nil by DI are simply not started.
type App struct {
	cfg    *config.Config
	logger *applogger.Logger

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	queueConsumer   *queue.RedisQueue
	resultsConsumer *pkgkafka.Consumer
	resultsHandler  pkgkafka.MessageHandler
	quotes          *usecase.QuoteCollector
	chClient        *pkgch.Client

	// Sink is closed last so in-flight scan deliveries can finish first.
	Sink usecase.ResultSink
}

// New assembles the application from its long-lived components.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	queueConsumer *queue.RedisQueue,
	resultsConsumer *pkgkafka.Consumer,
	resultsHandler pkgkafka.MessageHandler,
	quotes *usecase.QuoteCollector,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:             cfg,
		logger:          l,
		queueConsumer:   queueConsumer,
		resultsConsumer: resultsConsumer,
		resultsHandler:  resultsHandler,
		quotes:          quotes,
		chClient:        chClient,
	}
}

// SetHTTPHandler lets DI inject the route handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts every configured component and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.queueConsumer != nil {
		if err := a.queueConsumer.Start(); err != nil {
			return fmt.Errorf("start scan queue: %w", err)
		}
		a.logger.Info("scan queue consumer started",
			applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.resultsConsumer != nil && a.resultsHandler != nil {
		a.resultsConsumer.RegisterHandler(a.resultsHandler)
		go func() {
			if err := a.resultsConsumer.Start(); err != nil {
				a.logger.Error("results consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("results consumer started",
			applogger.String("topic", a.resultsHandler.Topic()))
	}

	if a.quotes != nil {
		go func() {
			if err := a.quotes.Start(ctx); err != nil {
				a.logger.Error("quote collector error", applogger.Error(err))
			}
		}()
		a.logger.Info("quote stream enabled",
			applogger.String("url", a.cfg.QuoteStream.URL))
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.logger.Info("http server listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops components in reverse dependency order: intake first, then
// processing, then shared clients.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.queueConsumer != nil {
		if err := a.queueConsumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scan queue stop error", applogger.Error(err))
		}
	}

	if a.quotes != nil {
		if err := a.quotes.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("quote collector stop error", applogger.Error(err))
		}
	}

	if a.resultsConsumer != nil {
		if err := a.resultsConsumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("results consumer stop error", applogger.Error(err))
		}
	}

	// Flush aggregated error logs while the producer is still open.
	a.logger.RemoveCollector()

	if a.Sink != nil {
		a.Sink.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
