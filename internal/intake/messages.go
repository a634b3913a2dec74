package intake

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bakelite_bot/internal/action"
	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/models"
)

const (
	joinSubmittedText = "✅ Application submitted!\n\nThe administrator will review it shortly. Use <b>Check status</b> to follow it."
	approvedText      = "🎉 Your application has been accepted. Welcome to the defenders!"
	rejectedText      = "❌ Your application has been declined."
)

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func handle(username string) string {
	if username == "" {
		return "—"
	}
	return "@" + esc(username)
}

func joinReview(s *dialog.Session) string {
	return fmt.Sprintf(`📋 <b>Check your application</b>

🌍 Region: %s
🕶 Nick: %s
🛠 Skills: %s
📝 Details: %s`,
		esc(s.Field(keyRegion)), esc(s.Field(keyNick)), esc(s.Field(keySkills)), esc(s.Field(keyDetails)))
}

func reportReview(s *dialog.Session) string {
	return fmt.Sprintf(`🆘 <b>Check your signal</b>

📍 Location: %s
⚠️ Issue: %s
📞 Contact: %s`,
		esc(s.Field(keyLocation)), esc(s.Field(keyIssue)), esc(s.Field(keyContact)))
}

func applicationNotice(userID int64, f models.ApplicantFields) string {
	return fmt.Sprintf(`🆕 <b>New defender application</b>

👤 User: %s
🆔 ID: <code>%d</code>
🌍 Region: %s
🕶 Nick: %s
🛠 Skills: %s
📝 Details: %s`,
		handle(f.Username), userID, esc(f.Region), esc(f.Nick), esc(f.Skills), esc(f.Details))
}

func moderationKeyboard(applicantID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Approve", action.ApproveData(applicantID)),
		tgbotapi.NewInlineKeyboardButtonData("❌ Reject", action.RejectData(applicantID)),
	))
}

// ModeratedNotice re-renders the administrator's copy of an application once
// a decision is made. Both buttons stay so the decision can be revised.
func ModeratedNotice(rec *models.ApplicantRecord, verdict string) (string, tgbotapi.InlineKeyboardMarkup) {
	text := applicationNotice(rec.UserID, models.ApplicantFields{
		Username: rec.Username,
		Region:   rec.Region,
		Nick:     rec.Nick,
		Skills:   rec.Skills,
		Details:  rec.Details,
	})
	return text + "\n\n<b>" + verdict + "</b>", moderationKeyboard(rec.UserID)
}

func signalNotice(sig models.HelpSignal) string {
	return fmt.Sprintf(`🚨 <b>SOS signal</b>

👤 From: %s (<code>%d</code>)
📍 Location: %s
⚠️ Issue: %s
📞 Contact: %s`,
		handle(sig.Username), sig.UserID, esc(sig.Location), esc(sig.Issue), esc(sig.Contact))
}

func claimKeyboard(requesterID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🛡 Take this case", action.TakeCaseData(requesterID)),
	))
}

func signalSentText(delivered int) string {
	return fmt.Sprintf("🆘 Signal sent. %d %s notified, someone will contact you soon.",
		delivered, plural(delivered, "recipient", "recipients"))
}

func claimedText(name string) string {
	return fmt.Sprintf("🛡 %s has taken your case and will contact you.", esc(name))
}

func claimedAdminText(name string, claimerID, requesterID int64) string {
	return fmt.Sprintf("🛡 %s (<code>%d</code>) took the case of <code>%d</code>.", esc(name), claimerID, requesterID)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// displayName picks the nick of a record, then the Telegram handle.
func displayName(rec *models.ApplicantRecord, username string) string {
	if rec != nil && strings.TrimSpace(rec.Nick) != "" {
		return rec.Nick
	}
	if username != "" {
		return "@" + username
	}
	return "A defender"
}
