package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/LancemDev/LostLink/internal/api"
	"github.com/LancemDev/LostLink/internal/blobstore"
	"github.com/LancemDev/LostLink/internal/claim"
	"github.com/LancemDev/LostLink/internal/config"
	"github.com/LancemDev/LostLink/internal/database"
	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/match"
	"github.com/LancemDev/LostLink/internal/repository"
	"github.com/LancemDev/LostLink/internal/signing"
	"github.com/LancemDev/LostLink/internal/submit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var store docstore.Store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		store = docstore.NewMemoryStore()
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect database: %v", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		store = docstore.NewPostgresStore(pool, cfg.SubscribePoll)
	}

	var blobs blobstore.Store
	var presigner *blobstore.MinioStore
	switch cfg.ImageMode {
	case config.ImageModeUpload:
		minioStore, err := blobstore.NewMinioStore(blobstore.MinioOptions{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Region:    cfg.S3Region,
			Bucket:    cfg.PhotoBucket,
		})
		if err != nil {
			log.Fatalf("init blob storage: %v", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			log.Fatalf("ensure bucket: %v", err)
		}
		blobs = minioStore
		presigner = minioStore
	default:
		blobs = blobstore.NewInlineStore(cfg.MaxImageBytes)
	}

	repo := repository.NewItems(store)
	engine := match.NewEngine(repo, cfg.MinMatchDescription)
	workflow := claim.NewWorkflow(repo, store)
	orchestrator := submit.NewOrchestrator(repo, blobs)
	signer := signing.NewSigner(cfg.AdminSecret)

	var queueClient *asynq.Client
	if cfg.QueueEnabled() {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	srv := api.New(api.Options{
		Config:       cfg,
		Repo:         repo,
		Store:        store,
		Engine:       engine,
		Workflow:     workflow,
		Orchestrator: orchestrator,
		Signer:       signer,
		Presigner:    presigner,
		Queue:        queueClient,
	})
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
