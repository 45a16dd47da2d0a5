package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/modsentry/moderation-api/internal/config"
	"github.com/modsentry/moderation-api/internal/db"
	"github.com/modsentry/moderation-api/internal/quota"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// resetd zeroes every user's daily usage counter on a schedule. It runs
// out-of-band from the request path; a reset racing an in-flight request only
// affects subsequent admission checks.
func main() {
	once := flag.Bool("once", false, "run a single reset and exit")
	flag.Parse()

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	gdb := db.Connect(cfg.DBDSN)
	tracker := quota.NewTracker(gdb)

	run := func() {
		n, err := tracker.ResetAll(context.Background())
		if err != nil {
			logger.Error("daily reset failed", zap.Error(err))
			return
		}
		logger.Info("daily reset done", zap.Int64("users", n))
	}

	if *once {
		run()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.ResetCron, run); err != nil {
		logger.Fatal("invalid cron spec", zap.String("spec", cfg.ResetCron), zap.Error(err))
	}
	c.Start()
	logger.Info("resetd started", zap.String("spec", cfg.ResetCron))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	<-c.Stop().Done()
	logger.Info("resetd stopped")
}
