package notify_test

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bakelite_bot/internal/notify"
	"bakelite_bot/internal/notify/notifytest"
)

func TestBroadcastIsolatesFailures(t *testing.T) {
	tests := []struct {
		name      string
		failing   []int64
		delivered int
	}{
		{name: "all delivered", failing: nil, delivered: 5},
		{name: "one blocked", failing: []int64{3}, delivered: 4},
		{name: "first and last blocked", failing: []int64{1, 5}, delivered: 3},
		{name: "all blocked", failing: []int64{1, 2, 3, 4, 5}, delivered: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := notifytest.NewRecorder()
			rec.Fail(tt.failing...)
			core, logs := observer.New(zapcore.WarnLevel)
			router := notify.NewRouter(rec, zap.New(core))

			report := router.Broadcast(context.Background(), []int64{1, 2, 3, 4, 5}, "help")

			if rec.Attempts() != 5 {
				t.Fatalf("expected 5 attempts, got %d", rec.Attempts())
			}
			if report.Delivered() != tt.delivered {
				t.Fatalf("expected %d delivered, got %d", tt.delivered, report.Delivered())
			}
			if len(report.Failed()) != len(tt.failing) {
				t.Fatalf("expected %d failures, got %d", len(tt.failing), len(report.Failed()))
			}
			if logs.FilterMessage("broadcast delivery failed").Len() != len(tt.failing) {
				t.Fatalf("expected one warning per failure, got %d", logs.Len())
			}
		})
	}
}

func TestBroadcastAttemptsEveryListedRecipient(t *testing.T) {
	rec := notifytest.NewRecorder()
	router := notify.NewRouter(rec, zap.NewNop())

	report := router.Broadcast(context.Background(), []int64{10, 20, 10}, "hi")

	if report.Attempts() != 3 || rec.Attempts() != 3 {
		t.Fatalf("expected 3 attempts, got report=%d sender=%d", report.Attempts(), rec.Attempts())
	}
	want := []int64{10, 20, 10}
	for i, o := range report.Outcomes {
		if o.ChatID != want[i] {
			t.Fatalf("outcome %d: expected chat %d, got %d", i, want[i], o.ChatID)
		}
	}
	if got := len(rec.SentTo(10)); got != 2 {
		t.Fatalf("expected chat 10 to get 2 copies, got %d", got)
	}
}

func TestSendSurfacesError(t *testing.T) {
	rec := notifytest.NewRecorder()
	rec.Fail(7)
	router := notify.NewRouter(rec, zap.NewNop())

	if err := router.Send(context.Background(), 7, "x"); err == nil {
		t.Fatalf("expected error for blocked chat")
	}
	if ok := router.SendOne(context.Background(), 7, "x"); ok {
		t.Fatalf("expected SendOne to report failure")
	}
	if ok := router.SendOne(context.Background(), 8, "x"); !ok {
		t.Fatalf("expected SendOne to succeed")
	}
}

func TestOptionsApplied(t *testing.T) {
	rec := notifytest.NewRecorder()
	router := notify.NewRouter(rec, zap.NewNop())
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Approve", "adm_ok_1"),
	))

	if err := router.Send(context.Background(), 1, "<b>x</b>", notify.WithHTML(), notify.WithKeyboard(kb)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msg, _ := rec.Last(1)
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("expected HTML parse mode, got %q", msg.ParseMode)
	}
	got, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *got.InlineKeyboard[0][0].CallbackData != "adm_ok_1" {
		t.Fatalf("keyboard not attached: %#v", msg.ReplyMarkup)
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	rec := notifytest.NewRecorder()
	router := notify.NewRouter(rec, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := router.Send(ctx, 1, "x"); err == nil {
		t.Fatalf("expected context error")
	}
	if rec.Attempts() != 0 {
		t.Fatalf("expected no attempts, got %d", rec.Attempts())
	}
}
