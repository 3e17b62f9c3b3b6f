package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"finbot/internal/bot"
	"finbot/internal/callback"
	"finbot/internal/log"
	"finbot/internal/menu"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type apiCall struct {
	method string
	form   map[string]string
}

// fakeBotAPI answers Bot API methods with canned JSON and records the
// submitted forms.
type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	replies map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, form: form})
	reply, ok := f.replies[method]
	f.mu.Unlock()
	if !ok {
		reply = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(reply))
}

func (f *fakeBotAPI) last(method string) (apiCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i], true
		}
	}
	return apiCall{}, false
}

func newFakeClient(t *testing.T, replies map[string]string) (*Client, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{replies: map[string]string{
		"getMe": `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"finbot","username":"finbot"}}`,
	}}
	for k, v := range replies {
		fake.replies[k] = v
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewWithEndpoint("token", srv.URL+"/bot%s/%s", srv.Client(), log.Discard())
	if err != nil {
		t.Fatalf("NewWithEndpoint: %v", err)
	}
	return c, fake
}

func TestSendRendersKeyboard(t *testing.T) {
	c, fake := newFakeClient(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":7,"type":"private"}}}`,
	})
	v := menu.View{
		Text:     "Hello",
		Keyboard: [][]menu.Button{{{Label: "Recent", Action: callback.ListRecent{}}}},
	}
	ref, err := c.Send(context.Background(), 7, v)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref != (bot.MessageRef{ChatID: 7, MessageID: 42}) {
		t.Fatalf("ref = %+v", ref)
	}
	call, ok := fake.last("sendMessage")
	if !ok {
		t.Fatalf("sendMessage not called")
	}
	if call.form["chat_id"] != "7" || call.form["text"] != "Hello" {
		t.Fatalf("form = %v", call.form)
	}
	var markup tgbotapi.InlineKeyboardMarkup
	if err := json.Unmarshal([]byte(call.form["reply_markup"]), &markup); err != nil {
		t.Fatalf("reply_markup: %v", err)
	}
	got := markup.InlineKeyboard[0][0]
	if got.Text != "Recent" || got.CallbackData == nil || *got.CallbackData != callback.MustEncode(callback.ListRecent{}) {
		t.Fatalf("button = %+v", got)
	}
}

func TestEditIgnoresNotModified(t *testing.T) {
	c, _ := newFakeClient(t, map[string]string{
		"editMessageText": `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`,
	})
	if err := c.Edit(context.Background(), bot.MessageRef{ChatID: 7, MessageID: 42}, menu.View{Text: "same"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
}

func TestEditReportsOtherFailures(t *testing.T) {
	c, _ := newFakeClient(t, map[string]string{
		"editMessageText": `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`,
	})
	if err := c.Edit(context.Background(), bot.MessageRef{ChatID: 7, MessageID: 42}, menu.View{Text: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNotifyAnswersCallback(t *testing.T) {
	c, fake := newFakeClient(t, nil)
	if err := c.Notify(context.Background(), "cb-1", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	call, ok := fake.last("answerCallbackQuery")
	if !ok || call.form["callback_query_id"] != "cb-1" {
		t.Fatalf("answerCallbackQuery call = %+v, %v", call, ok)
	}
}

func TestKeyboard(t *testing.T) {
	if Keyboard(menu.View{Text: "plain"}) != nil {
		t.Fatalf("expected nil keyboard for a view without buttons")
	}
	v := menu.View{Keyboard: [][]menu.Button{
		{{Label: "A", Action: callback.MainMenu{}}, {Label: "B", Action: callback.Cancel{}}},
		{},
		{{Label: "C", Action: callback.OpenRow{Index: 3}}},
	}}
	kb := Keyboard(v)
	if kb == nil || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("keyboard = %+v", kb)
	}
	if len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("first row has %d buttons", len(kb.InlineKeyboard[0]))
	}
	if got := *kb.InlineKeyboard[1][0].CallbackData; got != callback.MustEncode(callback.OpenRow{Index: 3}) {
		t.Fatalf("callback data = %q", got)
	}
}

func command(chatID int64, text string) *tgbotapi.Message {
	end := strings.IndexByte(text, ' ')
	if end < 0 {
		end = len(text)
	}
	return &tgbotapi.Message{
		MessageID: 5,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}},
	}
}

func TestToEvent(t *testing.T) {
	tests := []struct {
		name   string
		update tgbotapi.Update
		want   bot.Event
		ok     bool
	}{
		{
			name:   "command with arguments",
			update: tgbotapi.Update{Message: command(7, "/setup https://docs.google.com/x")},
			want:   bot.Event{ChatID: 7, MessageID: 5, Command: "setup", Args: "https://docs.google.com/x"},
			ok:     true,
		},
		{
			name:   "bare command",
			update: tgbotapi.Update{Message: command(7, "/Add")},
			want:   bot.Event{ChatID: 7, MessageID: 5, Command: "add"},
			ok:     true,
		},
		{
			name:   "text",
			update: tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 6, Chat: &tgbotapi.Chat{ID: 7}, Text: "12,50"}},
			want:   bot.Event{ChatID: 7, MessageID: 6, Text: "12,50"},
			ok:     true,
		},
		{
			name: "callback",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
				ID:      "cb",
				Data:    "ops",
				Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 7}},
			}},
			want: bot.Event{ChatID: 7, MessageID: 9, CallbackID: "cb", Payload: "ops"},
			ok:   true,
		},
		{
			name:   "callback without message",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", Data: "ops"}},
		},
		{
			name:   "empty text",
			update: tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "  "}},
		},
		{
			name:   "edited message",
			update: tgbotapi.Update{EditedMessage: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToEvent(tt.update)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("event = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []bot.Event
}

func (s *recordingSink) Dispatch(_ context.Context, ev bot.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func TestWebhookHandler(t *testing.T) {
	body := `{"update_id":1,"callback_query":{"id":"cb","data":"bal","message":{"message_id":3,"date":0,"chat":{"id":11,"type":"private"}}}}`

	tests := []struct {
		name       string
		method     string
		secret     string
		body       string
		wantStatus int
		wantEvents int
	}{
		{name: "dispatches update", method: http.MethodPost, secret: "s3", body: body, wantStatus: http.StatusOK, wantEvents: 1},
		{name: "wrong method", method: http.MethodGet, secret: "s3", wantStatus: http.StatusMethodNotAllowed},
		{name: "wrong secret", method: http.MethodPost, secret: "nope", body: body, wantStatus: http.StatusUnauthorized},
		{name: "malformed body", method: http.MethodPost, secret: "s3", body: "{", wantStatus: http.StatusBadRequest},
		{name: "ignored update", method: http.MethodPost, secret: "s3", body: `{"update_id":2}`, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			h := WebhookHandler(sink, "s3", log.Discard())
			req := httptest.NewRequest(tt.method, "/telegram", strings.NewReader(tt.body))
			req.Header.Set(secretHeader, tt.secret)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if len(sink.events) != tt.wantEvents {
				t.Fatalf("events = %d, want %d", len(sink.events), tt.wantEvents)
			}
			if tt.wantEvents == 1 && sink.events[0] != (bot.Event{ChatID: 11, MessageID: 3, CallbackID: "cb", Payload: "bal"}) {
				t.Fatalf("event = %+v", sink.events[0])
			}
		})
	}
}

func TestSetWebhookSendsSecret(t *testing.T) {
	c, fake := newFakeClient(t, nil)
	if err := c.SetWebhook(context.Background(), "https://bot.example.com/telegram", "s3"); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	call, ok := fake.last("setWebhook")
	if !ok || call.form["url"] != "https://bot.example.com/telegram" || call.form["secret_token"] != "s3" {
		t.Fatalf("setWebhook call = %+v, %v", call, ok)
	}
}
