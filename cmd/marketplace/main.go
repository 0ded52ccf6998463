package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/config"
	"github.com/aman-churiwal/marketplace-gateway/internal/server"
	"github.com/aman-churiwal/marketplace-gateway/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	redis, err := storage.NewRedis(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logrus.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redis.Close()

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN)
	if err != nil {
		logrus.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	srv, err := server.New(cfg, redis, postgres)
	if err != nil {
		logrus.Fatalf("Failed to build server: %v", err)
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("server exited")
}
