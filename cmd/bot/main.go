package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tokengatebot/gatekeeper/internal/config"
	"github.com/tokengatebot/gatekeeper/internal/etherscan"
	"github.com/tokengatebot/gatekeeper/internal/gate"
	"github.com/tokengatebot/gatekeeper/internal/moralis"
	"github.com/tokengatebot/gatekeeper/internal/rejections"
	"github.com/tokengatebot/gatekeeper/internal/reverify"
	"github.com/tokengatebot/gatekeeper/internal/store"
	"github.com/tokengatebot/gatekeeper/internal/telegram"
	"github.com/tokengatebot/gatekeeper/internal/verify"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.BotToken == "" {
		log.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize shared store (DATABASE_URL selects the backend)
	st, err := store.Open(store.Config{
		DatabaseURL: cfg.DatabaseURL,
		DataDir:     cfg.DataDir,
	}, log)
	if err != nil {
		log.Error("init store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("store initialized", "database", cfg.DatabaseURL != "", "data_dir", cfg.DataDir)

	registry := gate.NewRegistry(st, log)
	whitelist := gate.NewWhitelist(st)
	tracker := rejections.New(st, log)

	// Balance providers: Moralis primary (only with a plausible key),
	// Etherscan fallback.
	moralisClient := moralis.NewClient("", cfg.MoralisAPIKey, log)
	var primary verify.BalanceProvider
	if moralis.ValidKey(cfg.MoralisAPIKey) {
		primary = moralisClient
	} else {
		log.Warn("no usable Moralis API key, relying on fallback provider only")
	}
	etherscanClient := etherscan.NewClient("", cfg.EtherscanAPIKey, log)

	verifier := verify.New(primary, etherscanClient, moralisClient, cfg.ProviderTimeout, log)

	// Initialize telegram bot
	tgBot, err := telegram.New(cfg, registry, whitelist, tracker, verifier, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional in-process reverification loop; most deployments run
	// cmd/verify under cron instead.
	if cfg.ReverifyInterval > 0 {
		runner := reverify.New(registry, verifier, tgBot, tracker, cfg.IsOwner, cfg.RemovalFailureRatio, log)
		go runner.Start(ctx, cfg.ReverifyInterval)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	log.Info("starting bot polling...")
	tgBot.Start(ctx)
}
