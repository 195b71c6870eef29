package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prperemyshlev/interview-auth/internal/app"
	"github.com/prperemyshlev/interview-auth/internal/config"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}

	application := app.NewApp(infra, cfg)

	if err := application.Bootstrap(ctx); err != nil {
		infra.Logger().Fatal("Bootstrap failed", zap.Error(err))
	}

	if err := application.Run(ctx); err != nil {
		infra.Logger().Fatal("Application failed", zap.Error(err))
	}
}
