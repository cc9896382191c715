package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skylift-io/dispatch-go/internal/controller"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/eventbus"
	httpPkg "github.com/skylift-io/dispatch-go/internal/http"
	"github.com/skylift-io/dispatch-go/internal/infra/config"
	"github.com/skylift-io/dispatch-go/internal/infra/logging"
	"github.com/skylift-io/dispatch-go/internal/infra/observability"
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		slog.Error("failed to initialize configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logging.InitLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.InfoContext(ctx, "dispatch system starting up",
		slog.String("environment", cfg.Environment),
		slog.Any("config_summary", cfg.GetEnvironmentInfo()))

	telemetry, err := observability.NewTelemetryProvider(cfg.TracingEnabled, slog.With(slog.String("component", "observability")))
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	strategy, err := domain.ParseStrategy(cfg.Strategy)
	if err != nil {
		slog.ErrorContext(ctx, "invalid strategy", slog.String("error", err.Error()))
		os.Exit(1)
	}

	bus := eventbus.New()
	ctrl, err := controller.New(controller.Config{
		FloorTravelDuration: cfg.FloorTravelDuration,
		AccelerateDuration:  cfg.AccelerateDuration,
		DoorMoveDuration:    cfg.DoorMoveDuration,
		DoorStayDuration:    cfg.DoorStayDuration,
		Floors:              cfg.FloorLabels(),
		DefaultFloor:        cfg.DefaultFloor,
		ElevatorCount:       cfg.ElevatorCount,
		Strategy:            strategy,
	}, bus)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize controller", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctrl.Start(ctx)

	server := httpPkg.NewServer(cfg, cfg.Port, ctrl, telemetry)

	var wsServer *httpPkg.WebSocketServer
	if cfg.WebSocketEnabled {
		wsServer = httpPkg.NewWebSocketServer(cfg, cfg.WebSocketPort, ctrl)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 2)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "HTTP server failed",
				slog.Int("port", cfg.Port),
				slog.String("error", err.Error()))
			serverErrCh <- err
		}
	}()

	if wsServer != nil {
		go func() {
			if err := wsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.ErrorContext(ctx, "WebSocket server failed",
					slog.Int("port", cfg.WebSocketPort),
					slog.String("error", err.Error()))
				serverErrCh <- err
			}
		}()
	}

	select {
	case err := <-serverErrCh:
		slog.ErrorContext(ctx, "server startup failed", slog.String("error", err.Error()))
		shutdownServers(cfg, server, wsServer)
		ctrl.Stop()
		os.Exit(1)

	case sig := <-quit:
		slog.InfoContext(ctx, "received shutdown signal",
			slog.String("signal", sig.String()),
			slog.Duration("shutdown_timeout", cfg.ShutdownTimeout))
	}

	cancel()
	shutdownServers(cfg, server, wsServer)

	slog.InfoContext(ctx, "shutting down controller")
	ctrl.Stop()

	time.Sleep(cfg.ShutdownGrace)
	slog.InfoContext(ctx, "graceful shutdown completed")
}

// shutdownServers gracefully shuts down the HTTP and WebSocket servers
func shutdownServers(cfg *config.Config, server *httpPkg.Server, wsServer *httpPkg.WebSocketServer) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if wsServer != nil {
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("WebSocket server shutdown failed", slog.String("error", err.Error()))
		}
	}
}
