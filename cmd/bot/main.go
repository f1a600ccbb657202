package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/mediarise/captionbot/internal/admin"
	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/database"
	"github.com/mediarise/captionbot/internal/line"
	"github.com/mediarise/captionbot/internal/openai"
	"github.com/mediarise/captionbot/internal/repository"
	"github.com/mediarise/captionbot/internal/service"
	"github.com/mediarise/captionbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	lineClient, err := linebot.New(cfg.LineChannelSecret, cfg.LineChannelToken)
	if err != nil {
		log.Fatalf("line client: %v", err)
	}

	openaiClient := openai.NewClient(cfg, logr)

	entitlementRepo := repository.NewEntitlementRepository(db)
	captionRepo := repository.NewCaptionRepository(db)
	referralRepo := repository.NewReferralRepository(db)

	locks := service.NewKeyedMutex()
	captionService := service.NewCaptionService(cfg, logr, entitlementRepo, captionRepo, openaiClient, locks)
	entitlementService := service.NewEntitlementService(cfg, entitlementRepo, entitlementRepo, locks)
	referralService := service.NewReferralService(cfg, referralRepo, locks)

	bot := line.NewBot(cfg, lineClient, logr, captionService, entitlementService, referralService)
	webhookServer := line.NewServer(cfg.ListenAddr, logr, bot)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, entitlementService, referralService, captionRepo, bot)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := webhookServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("webhook server stopped", "err", err)
	}
}
