// Package notify delivers bot messages to one or many Telegram chats.
package notify

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultParallelism = 8

// Sender is the part of *tgbotapi.BotAPI the router needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Option customizes an outgoing message.
type Option func(*tgbotapi.MessageConfig)

// WithKeyboard attaches inline buttons.
func WithKeyboard(kb tgbotapi.InlineKeyboardMarkup) Option {
	return func(m *tgbotapi.MessageConfig) {
		m.ReplyMarkup = kb
	}
}

// WithHTML renders the text as Telegram HTML.
func WithHTML() Option {
	return func(m *tgbotapi.MessageConfig) {
		m.ParseMode = tgbotapi.ModeHTML
	}
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	ChatID int64
	Err    error
}

// Report collects the outcomes of a broadcast in recipient order.
type Report struct {
	Outcomes []Outcome
}

func (r Report) Attempts() int { return len(r.Outcomes) }

func (r Report) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Router sends messages with per-recipient failure isolation.
type Router struct {
	sender      Sender
	log         *zap.Logger
	parallelism int
}

func NewRouter(sender Sender, log *zap.Logger) *Router {
	return &Router{
		sender:      sender,
		log:         log,
		parallelism: defaultParallelism,
	}
}

// Send delivers one message and returns the transport error, if any. Use it
// for replies the caller has to report on.
func (r *Router) Send(ctx context.Context, chatID int64, text string, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	for _, opt := range opts {
		opt(&msg)
	}
	if _, err := r.sender.Send(msg); err != nil {
		return errors.Wrapf(err, "send to %d", chatID)
	}
	return nil
}

// SendOne is Send for notifications nobody waits on: a failure is logged and
// reported back as a bool only.
func (r *Router) SendOne(ctx context.Context, chatID int64, text string, opts ...Option) bool {
	if err := r.Send(ctx, chatID, text, opts...); err != nil {
		r.log.Warn("notification not delivered", zap.Int64("chat_id", chatID), zap.Error(err))
		return false
	}
	return true
}

// Broadcast sends the same message to every recipient independently, one
// attempt per listed id. It never fails as a whole.
func (r *Router) Broadcast(ctx context.Context, chatIDs []int64, text string, opts ...Option) Report {
	report := Report{Outcomes: make([]Outcome, len(chatIDs))}

	sem := make(chan struct{}, r.parallelism)
	var wg sync.WaitGroup
	for i, id := range chatIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Outcomes[i] = Outcome{ChatID: id, Err: r.Send(ctx, id, text, opts...)}
		}(i, id)
	}
	wg.Wait()

	for _, o := range report.Failed() {
		r.log.Warn("broadcast delivery failed", zap.Int64("chat_id", o.ChatID), zap.Error(o.Err))
	}
	r.log.Info("broadcast finished",
		zap.Int("attempts", report.Attempts()),
		zap.Int("delivered", report.Delivered()))
	return report
}
