package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/LancemDev/LostLink/internal/claim"
	"github.com/LancemDev/LostLink/internal/config"
	"github.com/LancemDev/LostLink/internal/database"
	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/match"
	"github.com/LancemDev/LostLink/internal/repository"
	"github.com/LancemDev/LostLink/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.QueueEnabled() {
		log.Fatalf("worker requires LOSTLINK_REDIS_ADDR; without a queue, jobs run inside the api process")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	store := docstore.NewPostgresStore(pool, cfg.SubscribePoll)
	repo := repository.NewItems(store)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
	})
	processor := worker.NewProcessor(
		match.NewEngine(repo, cfg.MinMatchDescription),
		claim.NewWorkflow(repo, store),
	)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
