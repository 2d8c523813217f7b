package telegram

import "github.com/go-telegram/bot/models"

// ApprovalKeyboard is the approve/reject prompt posted when a group admin
// asks to enable gating.
func ApprovalKeyboard(groupID string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Enable", CallbackData: "approve:" + groupID},
				{Text: "❌ Reject", CallbackData: "reject:" + groupID},
			},
		},
	}
}
