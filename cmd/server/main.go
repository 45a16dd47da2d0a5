package main

import (
	"github.com/modsentry/moderation-api/internal/blobstore"
	"github.com/modsentry/moderation-api/internal/config"
	"github.com/modsentry/moderation-api/internal/contentsafety"
	"github.com/modsentry/moderation-api/internal/db"
	"github.com/modsentry/moderation-api/internal/httpapi"
	"github.com/modsentry/moderation-api/internal/models"
	"github.com/modsentry/moderation-api/internal/moderation"
	"github.com/modsentry/moderation-api/internal/quota"
	"github.com/modsentry/moderation-api/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(&models.User{}, &moderation.Request{}); err != nil {
		logger.Fatal("automigrate", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rds.Close() }()

	safety := contentsafety.NewClient(cfg.ContentSafetyEndpoint, cfg.ContentSafetyKey, cfg.ContentSafetyAPIVersion)

	blobs, err := blobstore.NewAzureStore(cfg.BlobAccount, cfg.BlobKey, cfg.BlobContainer)
	if err != nil {
		logger.Fatal("blob store", zap.Error(err))
	}

	tracker := quota.NewTracker(gdb)
	repo := moderation.NewRepo(gdb)
	svc := moderation.NewService(repo, tracker, safety, blobs, logger)

	r := httpapi.NewRouter(gdb, cfg, rds, svc, blobs, tracker, logger)

	logger.Info("server starting", zap.String("addr", cfg.ListenAddr))
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
