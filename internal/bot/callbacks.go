package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakelite_bot/internal/action"
	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/intake"
)

// answer is the text of the callback acknowledgement. Alerts pop up.
type answer struct {
	text  string
	alert bool
}

func callbackChatID(cb *tgbotapi.CallbackQuery) int64 {
	if cb.Message != nil && cb.Message.Chat != nil {
		return cb.Message.Chat.ID
	}
	return cb.From.ID
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil {
		return
	}
	ans := b.routeCallback(ctx, callback)

	cfg := tgbotapi.NewCallback(callback.ID, ans.text)
	if ans.alert {
		cfg = tgbotapi.NewCallbackWithAlert(callback.ID, ans.text)
	}
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Warn("callback answer failed", zap.String("callback_id", callback.ID), zap.Error(err))
	}
}

func (b *Bot) routeCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) answer {
	userID := callback.From.ID
	chatID := callbackChatID(callback)
	log := b.log.With(zap.Int64("user_id", userID), zap.Int64("chat_id", chatID))

	act, err := action.Parse(callback.Data)
	if err != nil {
		log.Warn("unknown callback", zap.String("data", callback.Data))
		return answer{text: unknownActionText}
	}

	switch act.Kind {
	case action.Join:
		b.enterWizard(ctx, intake.WizardJoin, chatID, callback.From)
	case action.Report:
		b.enterWizard(ctx, intake.WizardReport, chatID, callback.From)
	case action.CheckStatus:
		b.handleStatus(ctx, chatID, userID)
	case action.AdminList:
		if !b.handleAdminList(ctx, chatID, userID) {
			return answer{text: adminOnlyText, alert: true}
		}
	case action.CancelDialog:
		b.handleCancel(ctx, chatID, userID)
	case action.ConfirmDialog:
		if !b.advance(ctx, chatID, userID, dialog.Confirm()) {
			return answer{text: expiredText, alert: true}
		}
	case action.Approve:
		return b.moderate(ctx, callback, act.UserID, b.intake.Approve, approvedSuffix)
	case action.Reject:
		return b.moderate(ctx, callback, act.UserID, b.intake.Reject, rejectedSuffix)
	case action.TakeCase:
		return b.takeCase(ctx, callback, act.UserID)
	}
	return answer{}
}

type decideFunc func(ctx context.Context, callerID, applicantID int64) (intake.Decision, error)

func (b *Bot) moderate(ctx context.Context, callback *tgbotapi.CallbackQuery, applicantID int64, decide decideFunc, suffix string) answer {
	d, err := decide(ctx, callback.From.ID, applicantID)
	switch {
	case errors.Is(err, intake.ErrForbidden):
		return answer{text: adminOnlyText, alert: true}
	case errors.Is(err, intake.ErrNotFound):
		return answer{text: applicantMissingText, alert: true}
	case err != nil:
		b.log.Error("moderation failed", zap.Int64("applicant_id", applicantID), zap.Error(err))
		return answer{text: errorText, alert: true}
	}

	label := d.Record.Status.Label()
	if !d.Changed {
		return answer{text: "Already " + label}
	}
	if callback.Message != nil && callback.Message.Chat != nil {
		text, kb := intake.ModeratedNotice(d.Record, suffix)
		edit := tgbotapi.NewEditMessageTextAndMarkup(callback.Message.Chat.ID, callback.Message.MessageID, text, kb)
		edit.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(edit); err != nil {
			b.log.Warn("edit moderation message", zap.Error(err))
		}
	}
	return answer{text: "Applicant " + label}
}

func (b *Bot) takeCase(ctx context.Context, callback *tgbotapi.CallbackQuery, requesterID int64) answer {
	err := b.intake.Claim(ctx, callback.From.ID, callback.From.UserName, requesterID)
	switch {
	case errors.Is(err, intake.ErrForbidden):
		return answer{text: claimDeniedText, alert: true}
	case err != nil:
		b.log.Error("claim failed", zap.Int64("requester_id", requesterID), zap.Error(err))
		return answer{text: errorText, alert: true}
	}
	b.reply(ctx, callbackChatID(callback), claimAckText)
	return answer{text: claimAckText}
}
