package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bakelite_bot/internal/action"
	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/models"
)

// Telegram caps a message at 4096 characters.
const listChunkSize = 3500

const (
	welcomeText = `👋 <b>Welcome to the defenders bot!</b>

Join the community as a defender or send an SOS signal if you need help.`

	helpText = `📚 <b>Help</b>

🔹 /start - main menu
🔹 /join - apply as a defender
🔹 /report - send an SOS signal
🔹 /status - check your application
🔹 /cancel - abort the current form

👨‍💼 Admin: /users - list applicants`

	unknownText          = "Choose an action from the menu below."
	notFoundText         = "❓ You have not applied yet. Press <b>Join</b> to become a defender."
	errorText            = "❌ Something went wrong. Please try again later."
	adminOnlyText        = "⛔ Only the administrator can do that."
	unknownActionText    = "This button is no longer supported."
	expiredText          = "This form has expired, start again from the menu."
	applicantMissingText = "Applicant not found."
	claimDeniedText      = "⛔ Only approved defenders can take cases."
	claimAckText         = "🛡 You took this case. The requester has been notified."
	approvedSuffix       = "✅ Accepted"
	rejectedSuffix       = "❌ Declined"
)

func (b *Bot) mainMenu(userID int64) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛡 Join as defender", action.DataJoin),
			tgbotapi.NewInlineKeyboardButtonData("🆘 SOS signal", action.DataReport),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Check status", action.DataCheckStatus),
		),
	}
	if b.intake.IsAdmin(userID) {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Applicants", action.DataAdminList),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// promptKeyboard lays buttons out in one row. It reports false for none.
func promptKeyboard(buttons []dialog.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func statusText(rec *models.ApplicantRecord) string {
	return fmt.Sprintf(`📋 Your application status: <b>%s</b>

🌍 Region: %s
🕶 Nick: %s
📅 Submitted: %s`,
		rec.Status.Label(), esc(rec.Region), esc(rec.Nick), rec.RegisteredAt.Format("2006-01-02 15:04"))
}

// applicantList renders records into messages below the size limit.
func applicantList(recs []*models.ApplicantRecord) []string {
	if len(recs) == 0 {
		return []string{"📝 No applications yet."}
	}

	var chunks []string
	var b strings.Builder
	b.WriteString("👥 <b>Applicants</b>\n\n")
	for i, rec := range recs {
		handle := "—"
		if rec.Username != "" {
			handle = "@" + esc(rec.Username)
		}
		entry := fmt.Sprintf("%d. %s (%s)\n   ID: <code>%d</code> | %s | %s\n\n",
			i+1, esc(rec.Nick), handle, rec.UserID, esc(rec.Region), rec.Status.Label())

		if b.Len()+len(entry) > listChunkSize {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteString(entry)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
