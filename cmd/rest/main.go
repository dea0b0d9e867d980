package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"ai-answer-engine-be/internal/bootstrap"
	"ai-answer-engine-be/internal/config"
	"ai-answer-engine-be/internal/server"
	"ai-answer-engine-be/internal/tracer"
	"ai-answer-engine-be/pkg/database"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Tracer is a no-op unless OTEL_ENABLED=true.
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	cfg := config.Load()

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	container := bootstrap.NewContainer(gormDB, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Consumers detach their worker goroutines and return; the context
	// closes their subscriptions on shutdown.
	if err := container.MetricsService.Consume(ctx); err != nil {
		log.Panicf("Unable to start metrics consumer: %v", err)
	}
	if err := container.RecorderService.Consume(ctx); err != nil {
		log.Panicf("Unable to start recorder consumer: %v", err)
	}

	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutdown signal received, draining connections...")
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
	log.Println("Server stopped cleanly")
}
