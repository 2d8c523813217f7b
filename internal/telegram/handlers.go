package telegram

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tokengatebot/gatekeeper/internal/gate"
	"github.com/tokengatebot/gatekeeper/internal/rejections"
)

var evmAddrRegex = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != "private" {
		return
	}

	text := "👋 Welcome to <b>Gatekeeper</b>!\n\n" +
		"I enforce token-gated membership in group chats.\n\n" +
		"In your group:\n" +
		"• <code>/setup &lt;token&gt; &lt;min_balance&gt; [chain]</code> — set the requirement\n" +
		"• <code>/verify &lt;address&gt;</code> — prove your balance\n\n" +
		"Members whose balance drops below the requirement are removed on the next periodic check."

	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

// setupHandler configures a group's token requirement and, for groups not
// yet whitelisted, posts the gating approval prompt. Blocked groups get no
// response at all.
func (b *Bot) setupHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.Type == "private" {
		return
	}

	groupID := groupKey(msg.Chat.ID)
	if b.tracker.IsBlocked(ctx, groupID) {
		b.log.Info("ignoring setup in blocked group", "group_id", groupID)
		return
	}
	if !b.isGroupAdmin(ctx, msg.Chat.ID, msg.From.ID) {
		b.sendMessage(ctx, msg.Chat.ID, "Only group admins can configure gating.", nil)
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) < 3 {
		b.sendMessage(ctx, msg.Chat.ID,
			"Usage: <code>/setup &lt;token&gt; &lt;min_balance&gt; [chain]</code>", nil)
		return
	}

	token := fields[1]
	if !evmAddrRegex.MatchString(token) {
		b.sendMessage(ctx, msg.Chat.ID, "❌ That doesn't look like a token contract address.", nil)
		return
	}
	minBalance, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || minBalance < 0 {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Minimum balance must be a non-negative number.", nil)
		return
	}
	chain := "eth"
	if len(fields) > 3 {
		chain = fields[3]
	}

	if !b.registry.SetGroupConfig(ctx, groupID, gate.GroupConfig{
		ChainID:    chain,
		Token:      token,
		MinBalance: minBalance,
	}) {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Failed to save group configuration.", nil)
		return
	}

	b.log.Info("group configured",
		"group_id", groupID,
		"token", token,
		"min_balance", minBalance,
		"chain", chain,
	)

	if b.whitelist.IsWhitelisted(ctx, groupID) {
		b.sendMessage(ctx, msg.Chat.ID,
			fmt.Sprintf("✅ Requirement updated: hold at least <b>%g</b> of <code>%s</code> on %s.",
				minBalance, token, chain),
			nil)
		return
	}

	b.whitelist.AddPending(ctx, groupID, gate.PendingGroup{
		GroupName: msg.Chat.Title,
		AdminID:   msg.From.ID,
		AdminName: msg.From.FirstName,
	})

	text := fmt.Sprintf(
		"🔐 <b>Enable token gating for %s?</b>\n\n"+
			"Requirement: hold at least <b>%g</b> of <code>%s</code> on %s.\n\n"+
			"I will periodically remove members who fall below it.",
		msg.Chat.Title, minBalance, token, chain,
	)
	b.sendMessage(ctx, msg.Chat.ID, text, ApprovalKeyboard(groupID))
}

// verifyHandler checks a member's submitted address and records the proof.
func (b *Bot) verifyHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.Type == "private" {
		return
	}

	groupID := groupKey(msg.Chat.ID)
	if b.tracker.IsBlocked(ctx, groupID) {
		return
	}
	if !b.whitelist.IsWhitelisted(ctx, groupID) {
		b.sendMessage(ctx, msg.Chat.ID, "This group hasn't enabled token gating yet.", nil)
		return
	}

	cfg, ok := b.registry.GroupConfig(ctx, groupID)
	if !ok {
		b.sendMessage(ctx, msg.Chat.ID, "No token requirement configured. An admin should run /setup first.", nil)
		return
	}

	address := evmAddrRegex.FindString(msg.Text)
	if address == "" {
		b.sendMessage(ctx, msg.Chat.ID,
			"Usage: <code>/verify &lt;wallet address&gt;</code>", nil)
		return
	}

	if !b.verifier.VerifyUserBalance(ctx, cfg, address) {
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"❌ <a href='tg://user?id=%d'>%s</a>, that wallet doesn't hold enough of the required token.",
			msg.From.ID, msg.From.FirstName), nil)
		return
	}

	memberID := memberKey(msg.From.ID)
	if !b.registry.MarkVerified(ctx, groupID, memberID, address) {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Verification succeeded but could not be recorded, try again.", nil)
		return
	}

	b.log.Info("member verified",
		"group_id", groupID,
		"member_id", memberID,
		"address", address,
	)
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
		"✅ <a href='tg://user?id=%d'>%s</a> verified!",
		msg.From.ID, msg.From.FirstName), nil)
}

// --- Approval callbacks ---

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch {
	case strings.HasPrefix(data, "approve:"):
		b.handleApprove(ctx, cb, strings.TrimPrefix(data, "approve:"))
	case strings.HasPrefix(data, "reject:"):
		b.handleReject(ctx, cb, strings.TrimPrefix(data, "reject:"))
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

func (b *Bot) handleApprove(ctx context.Context, cb *models.CallbackQuery, groupID string) {
	if !b.callbackFromAdmin(ctx, cb, groupID) {
		return
	}

	if !b.whitelist.Approve(ctx, groupID) {
		b.editMessage(ctx, cb.Message, "❌ Failed to save approval, try again.", nil)
		return
	}

	b.log.Info("group gating approved", "group_id", groupID, "admin_id", cb.From.ID)
	b.editMessage(ctx, cb.Message,
		"✅ <b>Token gating enabled.</b>\n\nMembers can verify with <code>/verify &lt;address&gt;</code>.", nil)
}

// handleReject records a strike. At three strikes the group is blocked and
// the bot goes fully passive in it until an explicit reset.
func (b *Bot) handleReject(ctx context.Context, cb *models.CallbackQuery, groupID string) {
	if !b.callbackFromAdmin(ctx, cb, groupID) {
		return
	}

	var groupName string
	if cb.Message.Message != nil {
		groupName = cb.Message.Message.Chat.Title
	}

	blocked := b.tracker.Track(ctx, groupID, rejections.Strike{
		GroupName: groupName,
		AdminID:   cb.From.ID,
		AdminName: cb.From.FirstName,
	})

	b.whitelist.RemovePending(ctx, groupID)

	if blocked {
		b.editMessage(ctx, cb.Message,
			"🚫 Gating request rejected. I won't ask again in this group.", nil)
		return
	}

	count := b.tracker.Count(ctx, groupID)
	b.editMessage(ctx, cb.Message, fmt.Sprintf(
		"Gating request rejected (%d/%d).", count, rejections.BlockThreshold), nil)
}

func (b *Bot) callbackFromAdmin(ctx context.Context, cb *models.CallbackQuery, groupID string) bool {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return false
	}
	if b.isGroupAdmin(ctx, chatID, cb.From.ID) {
		return true
	}

	b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            "Only group admins can decide this.",
		ShowAlert:       true,
	})
	return false
}

// --- Owner commands ---

func (b *Bot) blockedHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From.ID != b.cfg.OwnerID {
		return
	}

	blocked := b.tracker.Blocked(ctx)
	if len(blocked) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "No blocked groups.", nil)
		return
	}

	lines := []string{"🚫 <b>Blocked groups:</b>", ""}
	for _, groupID := range sortedKeys(blocked) {
		rec := blocked[groupID]
		lines = append(lines, fmt.Sprintf("• <b>%s</b> (<code>%s</code>) — %d strikes, last by %s",
			rec.GroupName, groupID, rec.Count, rec.LastAdminName))
	}
	b.sendMessage(ctx, msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

func (b *Bot) strikesHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From.ID != b.cfg.OwnerID {
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) > 1 {
		groupID := fields[1]
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"Group <code>%s</code>: %d strikes, blocked: %t",
			groupID, b.tracker.Count(ctx, groupID), b.tracker.IsBlocked(ctx, groupID)), nil)
		return
	}

	all := b.tracker.All(ctx)
	if len(all) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "No rejections recorded.", nil)
		return
	}

	lines := []string{"📋 <b>Rejection history:</b>", ""}
	for _, groupID := range sortedKeys(all) {
		rec := all[groupID]
		status := ""
		if rec.Blocked {
			status = " 🚫"
		}
		lines = append(lines, fmt.Sprintf("• <b>%s</b> (<code>%s</code>) — %d strikes%s",
			rec.GroupName, groupID, rec.Count, status))
	}
	b.sendMessage(ctx, msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

func (b *Bot) resetStrikesHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From.ID != b.cfg.OwnerID {
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) < 2 {
		b.sendMessage(ctx, msg.Chat.ID, "Usage: <code>/resetstrikes &lt;group_id&gt;</code>", nil)
		return
	}

	groupID := fields[1]
	if !b.tracker.Reset(ctx, groupID) {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Failed to reset strikes.", nil)
		return
	}

	b.log.Info("strikes reset", "group_id", groupID, "by", msg.From.ID)
	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
		"✅ Strikes cleared for <code>%s</code>. The group is eligible for gating again.", groupID), nil)
}

func (b *Bot) pendingHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From.ID != b.cfg.OwnerID {
		return
	}

	pending := b.whitelist.Pending(ctx)
	if len(pending) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "No pending gating requests.", nil)
		return
	}

	lines := []string{"⏳ <b>Pending gating requests:</b>", ""}
	for _, groupID := range sortedKeys(pending) {
		p := pending[groupID]
		lines = append(lines, fmt.Sprintf("• <b>%s</b> (<code>%s</code>) — requested by %s",
			p.GroupName, groupID, p.AdminName))
	}
	b.sendMessage(ctx, msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
