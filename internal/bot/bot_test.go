package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap/zaptest"

	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/intake"
	"bakelite_bot/internal/models"
	"bakelite_bot/internal/notify"
	"bakelite_bot/internal/notify/notifytest"
	"bakelite_bot/internal/store/memory"
)

const adminID int64 = 1

type harness struct {
	bot    *Bot
	api    *notifytest.Recorder
	store  *memory.Store
	update int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	api := notifytest.NewRecorder()
	st := memory.NewStore()
	router := notify.NewRouter(api, log)
	svc := intake.NewService(st, router, adminID, log)
	engine, err := dialog.NewEngine(log, svc.Wizards()...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return &harness{
		bot:   NewBot(api, engine, svc, router, time.Hour, log),
		api:   api,
		store: st,
	}
}

func (h *harness) nextID() int {
	h.update++
	return h.update
}

func (h *harness) command(userID int64, cmd string) {
	h.commandIn(userID, userID, cmd)
}

func (h *harness) commandIn(chatID, userID int64, cmd string) {
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: h.nextID(),
		Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: userID, UserName: "u"},
			Chat:     &tgbotapi.Chat{ID: chatID},
			Text:     cmd,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
		},
	})
}

func (h *harness) text(userID int64, text string) {
	h.textIn(userID, userID, text)
}

func (h *harness) textIn(chatID, userID int64, text string) {
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: h.nextID(),
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID, UserName: "u"},
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	})
}

func (h *harness) press(userID int64, data string) {
	h.pressOn(userID, data, &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: userID}, Text: "original"})
}

func (h *harness) pressOn(userID int64, data string, msg *tgbotapi.Message) {
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: h.nextID(),
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    &tgbotapi.User{ID: userID, UserName: "u"},
			Message: msg,
			Data:    data,
		},
	})
}

func (h *harness) lastAnswer(t *testing.T) tgbotapi.CallbackConfig {
	t.Helper()
	answers := h.api.Answers()
	if len(answers) == 0 {
		t.Fatalf("no callback answered")
	}
	return answers[len(answers)-1]
}

func buttonData(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			out = append(out, *b.CallbackData)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestStartMenuShowsAdminEntryOnlyToAdmin(t *testing.T) {
	h := newHarness(t)

	h.command(adminID, "/start")
	h.command(42, "/start")

	adminMenu, _ := h.api.Last(adminID)
	userMenu, _ := h.api.Last(42)
	if !contains(buttonData(t, adminMenu), "go_admin") {
		t.Fatalf("admin menu lacks go_admin: %v", buttonData(t, adminMenu))
	}
	if contains(buttonData(t, userMenu), "go_admin") {
		t.Fatalf("user menu must not offer go_admin")
	}
	for _, want := range []string{"go_join", "go_report", "check_status"} {
		if !contains(buttonData(t, userMenu), want) {
			t.Fatalf("user menu lacks %s", want)
		}
	}
}

func TestJoinApproveScenario(t *testing.T) {
	h := newHarness(t)
	const userA int64 = 500

	h.press(userA, "go_join")
	for _, answer := range []string{"RF", "Ghost", "OSINT", "Exp: 5y"} {
		h.text(userA, answer)
	}
	review, _ := h.api.Last(userA)
	if got := buttonData(t, review); len(got) != 2 || got[0] != "confirm_scene" || got[1] != "cancel_scene" {
		t.Fatalf("review must offer confirm and cancel, got %v", got)
	}
	h.press(userA, "confirm_scene")

	rec, _ := h.store.FindByKey(context.Background(), userA)
	if rec == nil || rec.Region != "RF" || rec.Nick != "Ghost" || rec.Skills != "OSINT" || rec.Details != "Exp: 5y" || rec.Status != models.StatusPending {
		t.Fatalf("unexpected record: %+v", rec)
	}

	notices := h.api.SentTo(adminID)
	if len(notices) != 1 {
		t.Fatalf("expected one admin notice, got %d", len(notices))
	}
	if !contains(buttonData(t, notices[0]), "adm_ok_500") {
		t.Fatalf("admin notice lacks approve affordance")
	}

	before := len(h.api.SentTo(userA))
	h.pressOn(adminID, "adm_ok_500", &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: adminID}, Text: "New application"})

	rec, _ = h.store.FindByKey(context.Background(), userA)
	if rec.Status != models.StatusApproved {
		t.Fatalf("expected approved, got %q", rec.Status)
	}
	if got := len(h.api.SentTo(userA)) - before; got != 1 {
		t.Fatalf("expected one congratulation, got %d", got)
	}
	edits := h.api.Edits()
	if len(edits) != 1 || edits[0].MessageID != 9 || !strings.Contains(edits[0].Text, approvedSuffix) {
		t.Fatalf("expected admin message edited, got %+v", edits)
	}
	if edits[0].ParseMode != tgbotapi.ModeHTML || !strings.Contains(edits[0].Text, "<code>500</code>") ||
		!strings.Contains(edits[0].Text, "Ghost") {
		t.Fatalf("edited notice lost its formatting: %+v", edits[0])
	}
	if edits[0].ReplyMarkup == nil {
		t.Fatalf("edited notice dropped the moderation buttons")
	}
	var kept []string
	for _, row := range edits[0].ReplyMarkup.InlineKeyboard {
		for _, btn := range row {
			kept = append(kept, *btn.CallbackData)
		}
	}
	if !contains(kept, "adm_ok_500") || !contains(kept, "adm_no_500") {
		t.Fatalf("edited notice buttons: %v", kept)
	}
}

func TestGroupMembersHaveSeparateDialogs(t *testing.T) {
	h := newHarness(t)
	const group int64 = -100
	const owner, other int64 = 500, 777

	h.commandIn(group, owner, "/join")
	for _, a := range []string{"X", "Y", "Z", "W"} {
		h.textIn(group, other, a)
	}
	h.pressOn(other, "confirm_scene", &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: group}})

	if ans := h.lastAnswer(t); !ans.ShowAlert || ans.Text != expiredText {
		t.Fatalf("expected stranger's confirm to be refused, got %+v", ans)
	}
	ctx := context.Background()
	for _, id := range []int64{owner, other} {
		if rec, _ := h.store.FindByKey(ctx, id); rec != nil {
			t.Fatalf("record stored for %d from another member's input: %+v", id, rec)
		}
	}
	if len(h.api.SentTo(adminID)) != 0 {
		t.Fatalf("admin notified of an application nobody confirmed")
	}

	h.pressOn(other, "cancel_scene", &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: group}})
	for _, a := range []string{"RF", "Ghost", "OSINT", "Exp"} {
		h.textIn(group, owner, a)
	}
	h.pressOn(owner, "confirm_scene", &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: group}})

	rec, _ := h.store.FindByKey(ctx, owner)
	if rec == nil || rec.Region != "RF" || rec.Nick != "Ghost" || rec.Skills != "OSINT" || rec.Details != "Exp" {
		t.Fatalf("owner's own answers not stored: %+v", rec)
	}
}

func TestCallbackWithoutSenderIsIgnored(t *testing.T) {
	h := newHarness(t)
	updates := make(chan tgbotapi.Update, 2)
	updates <- tgbotapi.Update{UpdateID: 1, CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", Data: "go_join"}}
	updates <- tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 3}, Chat: &tgbotapi.Chat{ID: 3}, Text: "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
	close(updates)

	h.bot.Run(context.Background(), updates)

	if len(h.api.Answers()) != 0 {
		t.Fatalf("callback without sender was answered")
	}
	if len(h.api.SentTo(3)) != 1 {
		t.Fatalf("update after the malformed callback was not handled")
	}
}

func TestApproveByNonAdminIsDenied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Upsert(ctx, 500, models.ApplicantFields{Nick: "Ghost"})

	h.press(42, "adm_ok_500")

	rec, _ := h.store.FindByKey(ctx, 500)
	if rec.Status != models.StatusPending {
		t.Fatalf("non-admin approval changed status")
	}
	if len(h.api.Sent()) != 0 {
		t.Fatalf("denied approval sent messages: %+v", h.api.Sent())
	}
	if ans := h.lastAnswer(t); !ans.ShowAlert || ans.Text != adminOnlyText {
		t.Fatalf("expected visible denial, got %+v", ans)
	}
}

func TestStatusNotFound(t *testing.T) {
	h := newHarness(t)

	h.press(77, "check_status")

	msg, ok := h.api.Last(77)
	if !ok || msg.Text != notFoundText {
		t.Fatalf("expected not found reply, got %+v", msg)
	}
	all, _ := h.store.ListAll(context.Background())
	if len(all) != 0 {
		t.Fatalf("status check created records")
	}
}

func TestStatusLabels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Upsert(ctx, 5, models.ApplicantFields{Nick: "n"})

	tests := []struct {
		status models.Status
		label  string
	}{
		{models.StatusPending, "queued"},
		{models.StatusApproved, "accepted"},
		{models.StatusRejected, "declined"},
	}
	for _, tt := range tests {
		_ = h.store.SetStatus(ctx, 5, tt.status)
		h.command(5, "/status")
		msg, _ := h.api.Last(5)
		if !strings.Contains(msg.Text, "<b>"+tt.label+"</b>") {
			t.Fatalf("status %s: expected label %q in %q", tt.status, tt.label, msg.Text)
		}
	}
}

func TestCancelThenTextStartsNothing(t *testing.T) {
	h := newHarness(t)

	h.press(8, "go_report")
	h.text(8, "Kyiv")
	h.press(8, "cancel_scene")
	h.text(8, "Phishing")

	msg, _ := h.api.Last(8)
	if msg.Text != unknownText {
		t.Fatalf("input after cancel must not resume the dialog, got %q", msg.Text)
	}
	if h.api.Attempts() != len(h.api.Sent()) || len(h.api.SentTo(adminID)) != 0 {
		t.Fatalf("cancelled report reached someone")
	}
}

func TestStrayTextAtReviewReprompts(t *testing.T) {
	h := newHarness(t)

	h.command(8, "/report")
	for _, a := range []string{"Kyiv", "Phishing", "@me"} {
		h.text(8, a)
	}
	h.text(8, "done?")

	msg, _ := h.api.Last(8)
	if got := buttonData(t, msg); len(got) != 2 || got[0] != "confirm_scene" {
		t.Fatalf("expected review re-prompt, got %v", got)
	}
}

func TestSignalAndClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Upsert(ctx, 30, models.ApplicantFields{Nick: "Ghost"})
	_ = h.store.SetStatus(ctx, 30, models.StatusApproved)
	_ = h.store.Upsert(ctx, 31, models.ApplicantFields{Nick: "Newbie"})

	h.command(900, "/report")
	for _, a := range []string{"Kyiv", "Phishing", "@victim"} {
		h.text(900, a)
	}
	h.press(900, "confirm_scene")

	for _, id := range []int64{adminID, 30} {
		msgs := h.api.SentTo(id)
		if len(msgs) != 1 || !contains(buttonData(t, msgs[0]), "w_take_900") {
			t.Fatalf("recipient %d did not get a claimable signal: %+v", id, msgs)
		}
	}
	if len(h.api.SentTo(31)) != 0 {
		t.Fatalf("pending applicant received the signal")
	}

	before := len(h.api.SentTo(900))
	h.press(31, "w_take_900")
	if ans := h.lastAnswer(t); !ans.ShowAlert || ans.Text != claimDeniedText {
		t.Fatalf("expected denial for pending applicant, got %+v", ans)
	}
	if len(h.api.SentTo(900)) != before {
		t.Fatalf("denied claim notified the requester")
	}

	h.press(30, "w_take_900")
	if ans := h.lastAnswer(t); ans.ShowAlert {
		t.Fatalf("approved defender was denied: %+v", ans)
	}
	if len(h.api.SentTo(900)) != before+1 {
		t.Fatalf("requester not notified of claim")
	}
}

func TestAdminListChunksAndDenies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for id := int64(100); id < 200; id++ {
		_ = h.store.Upsert(ctx, id, models.ApplicantFields{Nick: strings.Repeat("n", 20), Region: "Region", Username: "someone"})
	}

	h.press(42, "go_admin")
	if ans := h.lastAnswer(t); !ans.ShowAlert {
		t.Fatalf("non-admin listing must be denied visibly")
	}
	if len(h.api.SentTo(42)) != 0 {
		t.Fatalf("non-admin received a listing")
	}

	h.press(adminID, "go_admin")
	msgs := h.api.SentTo(adminID)
	if len(msgs) < 2 {
		t.Fatalf("expected the listing to be chunked, got %d messages", len(msgs))
	}
	for _, m := range msgs {
		if len(m.Text) > listChunkSize {
			t.Fatalf("chunk of %d bytes exceeds limit", len(m.Text))
		}
	}
}

func TestUnknownCallback(t *testing.T) {
	h := newHarness(t)
	h.press(5, "adm_ok_notanumber")
	if ans := h.lastAnswer(t); ans.Text != unknownActionText {
		t.Fatalf("expected unknown action answer, got %+v", ans)
	}
}

func TestSerialQueuePreservesOrderPerKey(t *testing.T) {
	q := newSerialQueue(zaptest.NewLogger(t))

	var mu sync.Mutex
	got := make(map[int64][]int)
	for i := 0; i < 100; i++ {
		for _, key := range []int64{1, 2, 3} {
			i, key := i, key
			q.Submit(key, func() {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			})
		}
	}
	q.Submit(1, func() { panic("boom") })
	q.Wait()

	for key, seq := range got {
		if len(seq) != 100 {
			t.Fatalf("key %d: expected 100 jobs, got %d", key, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("key %d: job %d ran at position %d", key, v, i)
			}
		}
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	h := newHarness(t)
	updates := make(chan tgbotapi.Update, 2)
	updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 3}, Chat: &tgbotapi.Chat{ID: 3}, Text: "hi",
	}}
	close(updates)

	done := make(chan struct{})
	go func() {
		h.bot.Run(context.Background(), updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}
	if _, ok := h.api.Last(3); !ok {
		t.Fatalf("queued update was not handled before Run returned")
	}
}
