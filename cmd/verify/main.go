// Command verify runs a single reverification pass and exits. It is meant
// to run as a separate scheduled service (e.g. cron "0 */6 * * *"),
// sharing the store with the interactive bot process.
package main

import (
	"context"
	"log/slog"
	"os"

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
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

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

	st, err := store.Open(store.Config{
		DatabaseURL: cfg.DatabaseURL,
		DataDir:     cfg.DataDir,
	}, log)
	if err != nil {
		log.Error("init store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := gate.NewRegistry(st, log)
	whitelist := gate.NewWhitelist(st)
	tracker := rejections.New(st, log)

	moralisClient := moralis.NewClient("", cfg.MoralisAPIKey, log)
	var primary verify.BalanceProvider
	if moralis.ValidKey(cfg.MoralisAPIKey) {
		primary = moralisClient
	} else {
		log.Warn("no usable Moralis API key, relying on fallback provider only")
	}
	etherscanClient := etherscan.NewClient("", cfg.EtherscanAPIKey, log)

	verifier := verify.New(primary, etherscanClient, moralisClient, cfg.ProviderTimeout, log)

	// The bot is only used here as the remove-member capability; it does
	// not poll for updates.
	tgBot, err := telegram.New(cfg, registry, whitelist, tracker, verifier, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}

	log.Info("starting cron verification job")

	runner := reverify.New(registry, verifier, tgBot, tracker, cfg.IsOwner, cfg.RemovalFailureRatio, log)
	report := runner.Run(context.Background())

	log.Info("cron verification job completed",
		"groups", report.Groups,
		"verified", report.Verified,
		"removed", report.Removed,
		"errors", report.Errors,
	)
}
