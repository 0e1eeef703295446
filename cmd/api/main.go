package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bloom-client/internal/backend"
	"bloom-client/internal/config"
	apihttp "bloom-client/internal/http"
	"bloom-client/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	client := backend.NewHTTPClient(cfg.BaseURL, cfg.BackendHeaderTimeout, logger)

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if health, err := client.Health(healthCtx); err != nil {
		logger.Warn("bloom backend not reachable", zap.String("base_url", cfg.BaseURL), zap.Error(err))
	} else {
		logger.Info("bloom backend reachable", zap.String("status", health.Status), zap.String("version", health.Version))
	}
	cancel()

	controller := service.NewConversationController(logger, client, service.NewStreamReducer(), cfg.UserID, cfg.ReportsClearTimeout)
	convHandler := apihttp.NewConversationHandler(logger, controller)
	router := apihttp.NewRouter(logger, convHandler)

	// Los feeds SSE no terminan solos; se cancelan al apagar el servidor.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}

	controller.Cancel()
	controller.Wait()
	logger.Info("server stopped")
}
