package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/intake"
	"bakelite_bot/internal/notify"
)

// Client is the subset of *tgbotapi.BotAPI used by the bot.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api        Client
	engine     *dialog.Engine
	intake     *intake.Service
	router     *notify.Router
	log        *zap.Logger
	queue      *serialQueue
	sessionTTL time.Duration
}

func NewBot(api Client, engine *dialog.Engine, svc *intake.Service, router *notify.Router, sessionTTL time.Duration, log *zap.Logger) *Bot {
	return &Bot{
		api:        api,
		engine:     engine,
		intake:     svc,
		router:     router,
		log:        log,
		queue:      newSerialQueue(log),
		sessionTTL: sessionTTL,
	}
}

// Run consumes updates until ctx is done or the channel closes. Updates of
// one chat are handled in arrival order; different chats run concurrently.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	sweep := time.NewTicker(b.sweepInterval())
	defer sweep.Stop()
	defer b.queue.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if n := b.engine.Sweep(b.sessionTTL); n > 0 {
				b.log.Info("abandoned dialogs dropped", zap.Int("count", n))
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			key, ok := conversationKey(update)
			if !ok {
				continue
			}
			b.queue.Submit(key, func() { b.HandleUpdate(ctx, update) })
		}
	}
}

func (b *Bot) sweepInterval() time.Duration {
	if iv := b.sessionTTL / 4; iv > time.Minute {
		return iv
	}
	return time.Minute
}

func conversationKey(u tgbotapi.Update) (int64, bool) {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID, true
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return callbackChatID(u.CallbackQuery), true
	}
	return 0, false
}

// HandleUpdate processes a single update. It never panics.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	log := b.log.With(zap.Int64("user_id", message.From.ID), zap.Int64("chat_id", chatID))

	if message.IsCommand() {
		log.Debug("command", zap.String("command", message.Command()))
		switch message.Command() {
		case "start":
			b.engine.Cancel(dialogKey(chatID, message.From.ID))
			b.handleStart(ctx, chatID, message.From.ID)
		case "help":
			b.reply(ctx, chatID, helpText)
		case "cancel":
			b.handleCancel(ctx, chatID, message.From.ID)
		case "join":
			b.enterWizard(ctx, intake.WizardJoin, chatID, message.From)
		case "report", "sos":
			b.enterWizard(ctx, intake.WizardReport, chatID, message.From)
		case "status":
			b.handleStatus(ctx, chatID, message.From.ID)
		case "users", "admin":
			if !b.handleAdminList(ctx, chatID, message.From.ID) {
				b.reply(ctx, chatID, adminOnlyText)
			}
		default:
			b.replyMenu(ctx, chatID, message.From.ID, unknownText)
		}
		return
	}

	if _, ok := b.engine.Active(dialogKey(chatID, message.From.ID)); ok {
		b.advance(ctx, chatID, message.From.ID, dialog.Text(message.Text))
		return
	}
	b.replyMenu(ctx, chatID, message.From.ID, unknownText)
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64) {
	b.replyMenu(ctx, chatID, userID, welcomeText)
}

func (b *Bot) handleCancel(ctx context.Context, chatID, userID int64) {
	b.sendPrompt(ctx, chatID, userID, b.engine.Cancel(dialogKey(chatID, userID)))
}

func dialogKey(chatID, userID int64) dialog.Key {
	return dialog.Key{ConversationID: chatID, UserID: userID}
}

func (b *Bot) enterWizard(ctx context.Context, wizard string, chatID int64, from *tgbotapi.User) {
	p, err := b.engine.Enter(ctx, wizard, dialog.Participant{
		ConversationID: chatID,
		UserID:         from.ID,
		Username:       from.UserName,
	})
	if err != nil {
		b.log.Error("enter dialog", zap.String("wizard", wizard), zap.Error(err))
		b.reply(ctx, chatID, errorText)
		return
	}
	b.sendPrompt(ctx, chatID, from.ID, p)
}

func (b *Bot) advance(ctx context.Context, chatID, userID int64, in dialog.Input) bool {
	p, err := b.engine.Advance(ctx, dialogKey(chatID, userID), in)
	if errors.Is(err, dialog.ErrNoSession) {
		return false
	}
	if err != nil {
		b.log.Error("dialog step failed", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
		if p.Text == "" {
			b.reply(ctx, chatID, errorText)
			return true
		}
	}
	b.sendPrompt(ctx, chatID, userID, p)
	return true
}

func (b *Bot) handleStatus(ctx context.Context, chatID, userID int64) {
	rec, err := b.intake.Status(ctx, userID)
	if err != nil {
		b.log.Error("status lookup", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, errorText)
		return
	}
	if rec == nil {
		b.replyMenu(ctx, chatID, userID, notFoundText)
		return
	}
	b.reply(ctx, chatID, statusText(rec))
}

// handleAdminList reports false when the caller is not the administrator.
func (b *Bot) handleAdminList(ctx context.Context, chatID, userID int64) bool {
	recs, err := b.intake.Applicants(ctx, userID)
	if errors.Is(err, intake.ErrForbidden) {
		return false
	}
	if err != nil {
		b.log.Error("list applicants", zap.Error(err))
		b.reply(ctx, chatID, errorText)
		return true
	}
	for _, chunk := range applicantList(recs) {
		b.reply(ctx, chatID, chunk)
	}
	return true
}

func (b *Bot) sendPrompt(ctx context.Context, chatID, userID int64, p dialog.Prompt) {
	if p.Done {
		b.replyMenu(ctx, chatID, userID, p.Text)
		return
	}
	if kb, ok := promptKeyboard(p.Buttons); ok {
		b.send(ctx, chatID, p.Text, notify.WithHTML(), notify.WithKeyboard(kb))
		return
	}
	b.reply(ctx, chatID, p.Text)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, chatID, text, notify.WithHTML())
}

func (b *Bot) replyMenu(ctx context.Context, chatID, userID int64, text string) {
	b.send(ctx, chatID, text, notify.WithHTML(), notify.WithKeyboard(b.mainMenu(userID)))
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, opts ...notify.Option) {
	if err := b.router.Send(ctx, chatID, text, opts...); err != nil {
		b.log.Error("reply not delivered", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
