// Package main is the bridge daemon entry point. It wires the IPC bridge,
// the agent state client, the ask dispatcher, persistence, the event bus,
// and the HTTP/WebSocket gateway into one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	"github.com/agentbridge/agentbridge/internal/api"
	"github.com/agentbridge/agentbridge/internal/bridgehost"
	"github.com/agentbridge/agentbridge/internal/common/config"
	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/internal/dispatch"
	"github.com/agentbridge/agentbridge/internal/events/bus"
	gateway "github.com/agentbridge/agentbridge/internal/gateway/websocket"
	"github.com/agentbridge/agentbridge/internal/ipc"
	"github.com/agentbridge/agentbridge/internal/session"
	"github.com/agentbridge/agentbridge/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()
	logger.SetDefault(log)

	log.Info("starting agentbridge daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus, err := bus.New(cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer eventBus.Close()

	var store session.Store
	if cfg.Storage.Path != "" {
		store, err = session.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			log.Fatal("failed to open session store",
				zap.String("path", cfg.Storage.Path),
				zap.Error(err))
		}
		defer func() {
			_ = store.Close()
		}()
	} else {
		log.Info("session persistence disabled")
	}

	bridge := ipc.NewBridge(log, ipc.WithDefaultTimeout(cfg.IPC.RequestTimeoutDuration()))
	defer bridge.Dispose()

	stateClient := agentstate.NewClient(log)
	host := bridgehost.New(bridge, stateClient, store, eventBus, log)
	host.Start(ctx)

	dispatcher := dispatch.NewDispatcher(host, dispatch.NewPolicy(cfg.Approval), nil, log)
	dispatcher.Attach(ctx, stateClient)

	actions := gateway.NewActionDispatcher(stateClient, dispatcher, host)
	hub := gateway.NewHub(actions, log)
	if store != nil {
		hub.SetHistoryProvider(store.ListMessages)
	}

	notifier := gateway.NewNotifier(hub, eventBus, host.CurrentTaskID, log)
	notifier.Attach(ctx, stateClient, dispatcher)

	server := api.NewServer(cfg.Server, cfg.IPC, stateClient, dispatcher, host, hub, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("daemon exited with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}

	log.Info("agentbridge daemon stopped")
}
