// Package notifytest provides a recording Telegram sender for tests.
package notifytest

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// ErrBlocked mimics Telegram refusing delivery to a chat.
var ErrBlocked = errors.New("Forbidden: bot was blocked by the user")

// Recorder implements notify.Sender and the bot's Telegram client. It keeps
// every request and fails sends to chats listed in Fail.
type Recorder struct {
	mu       sync.Mutex
	fail     map[int64]bool
	attempts []tgbotapi.Chattable
	sent     []tgbotapi.MessageConfig
	edits    []tgbotapi.EditMessageTextConfig
	answers  []tgbotapi.CallbackConfig
	nextID   int
}

func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[int64]bool)}
}

// Fail makes every message to the given chats fail.
func (r *Recorder) Fail(chatIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range chatIDs {
		r.fail[id] = true
	}
}

func (r *Recorder) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = append(r.attempts, c)
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		if r.fail[m.ChatID] {
			return tgbotapi.Message{}, ErrBlocked
		}
		r.sent = append(r.sent, m)
		r.nextID++
		return tgbotapi.Message{MessageID: r.nextID, Chat: &tgbotapi.Chat{ID: m.ChatID}, Text: m.Text}, nil
	case tgbotapi.EditMessageTextConfig:
		r.edits = append(r.edits, m)
		return tgbotapi.Message{MessageID: m.MessageID, Text: m.Text}, nil
	}
	return tgbotapi.Message{}, nil
}

func (r *Recorder) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		r.answers = append(r.answers, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// Attempts counts every Send call, failed ones included.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// Sent returns the messages that were delivered.
func (r *Recorder) Sent() []tgbotapi.MessageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), r.sent...)
}

// SentTo returns delivered messages addressed to chatID.
func (r *Recorder) SentTo(chatID int64) []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, m := range r.Sent() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the last message delivered to chatID.
func (r *Recorder) Last(chatID int64) (tgbotapi.MessageConfig, bool) {
	msgs := r.SentTo(chatID)
	if len(msgs) == 0 {
		return tgbotapi.MessageConfig{}, false
	}
	return msgs[len(msgs)-1], true
}

func (r *Recorder) Edits() []tgbotapi.EditMessageTextConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tgbotapi.EditMessageTextConfig(nil), r.edits...)
}

func (r *Recorder) Answers() []tgbotapi.CallbackConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tgbotapi.CallbackConfig(nil), r.answers...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = nil
	r.sent = nil
	r.edits = nil
	r.answers = nil
}
