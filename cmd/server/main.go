package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/abhaydixit07/codehive-server/internal/api"
	"github.com/abhaydixit07/codehive-server/internal/config"
	"github.com/abhaydixit07/codehive-server/internal/routers"
	"github.com/abhaydixit07/codehive-server/internal/session"
	"github.com/abhaydixit07/codehive-server/internal/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	registry := session.NewRegistry(logger)

	var bridge *session.Bridge
	if cfg.RedisAddr != "" {
		bridge = session.NewBridge(cfg.RedisAddr, registry, logger)
	}

	h := api.NewHandlers(logger, registry, bridge, utils.BuildWebRTCConfig(cfg))
	router := routers.New(h, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("codehive-server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	registry.Shutdown()
	bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}
