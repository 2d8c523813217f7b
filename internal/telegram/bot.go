// Package telegram is the interactive process: group gating setup,
// member verification proofs, whitelist approval, and the admin strike
// commands. It also implements the member-removal capability used by the
// reverification pass.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tokengatebot/gatekeeper/internal/config"
	"github.com/tokengatebot/gatekeeper/internal/gate"
	"github.com/tokengatebot/gatekeeper/internal/rejections"
)

// Verifier answers balance compliance for proof submissions.
type Verifier interface {
	VerifyUserBalance(ctx context.Context, cfg gate.GroupConfig, address string) bool
}

// Bot wraps the telegram bot with handlers.
type Bot struct {
	bot       *bot.Bot
	cfg       *config.Config
	registry  *gate.Registry
	whitelist *gate.Whitelist
	tracker   *rejections.Tracker
	verifier  Verifier
	log       *slog.Logger
}

// New creates the interactive bot.
func New(cfg *config.Config, registry *gate.Registry, whitelist *gate.Whitelist, tracker *rejections.Tracker, verifier Verifier, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:       cfg,
		registry:  registry,
		whitelist: whitelist,
		tracker:   tracker,
		verifier:  verifier,
		log:       log,
	}

	opts := []bot.Option{
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/setup", bot.MatchTypePrefix, b.setupHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/verify", bot.MatchTypePrefix, b.verifyHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/blocked", bot.MatchTypeExact, b.blockedHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/strikes", bot.MatchTypePrefix, b.strikesHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/resetstrikes", bot.MatchTypePrefix, b.resetStrikesHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypeExact, b.pendingHandler)

	return b, nil
}

// Start starts bot polling.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// RemoveMember kicks a member: revoke membership, then immediately lift
// the ban so the member can rejoin after re-verifying.
func (b *Bot) RemoveMember(ctx context.Context, groupID, memberID string) error {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse group id %q: %w", groupID, err)
	}
	userID, err := strconv.ParseInt(memberID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse member id %q: %w", memberID, err)
	}

	if _, err := b.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	}); err != nil {
		return fmt.Errorf("ban member: %w", err)
	}
	if _, err := b.bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	}); err != nil {
		return fmt.Errorf("unban member: %w", err)
	}
	return nil
}

// --- Helpers ---

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := b.bot.EditMessageText(ctx, params); err != nil {
		b.log.Error("edit message", "error", err)
	}
}

func (b *Bot) isGroupAdmin(ctx context.Context, chatID, userID int64) bool {
	member, err := b.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		b.log.Error("get chat member", "chat_id", chatID, "user_id", userID, "error", err)
		return false
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator:
		return true
	}
	return false
}

func groupKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func memberKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
