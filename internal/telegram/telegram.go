// Package telegram connects the bot to the Telegram Bot API. It renders
// menu views as messages with inline keyboards and turns updates into
// bot events, either by long polling or from webhook requests.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"finbot/internal/bot"
	"finbot/internal/callback"
	"finbot/internal/log"
	"finbot/internal/menu"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	notModified  = "message is not modified"
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Sink receives the events produced from updates.
type Sink interface {
	Dispatch(ctx context.Context, ev bot.Event) error
}

// Client implements bot.Transport on top of the Bot API.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *log.Logger
}

var _ bot.Transport = (*Client)(nil)

// New authenticates token against the Bot API.
func New(token string, logger *log.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return wrap(api, logger), nil
}

// NewWithEndpoint is New against a custom API endpoint, given as a format
// string like tgbotapi.APIEndpoint.
func NewWithEndpoint(token, endpoint string, client *http.Client, logger *log.Logger) (*Client, error) {
	if client == nil {
		client = http.DefaultClient
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return wrap(api, logger), nil
}

func wrap(api *tgbotapi.BotAPI, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	c := &Client{api: api, logger: logger.WithComponent(log.ComponentTelegram)}
	c.logger.Info("Telegram client ready", "username", api.Self.UserName)
	return c
}

func (c *Client) Send(ctx context.Context, chatID int64, v menu.View) (bot.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, v.Text)
	if kb := Keyboard(v); kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return bot.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return bot.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text and keyboard of a sent message. Editing a message
// into its current content is not an error.
func (c *Client) Edit(ctx context.Context, ref bot.MessageRef, v menu.View) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, v.Text)
	edit.ReplyMarkup = Keyboard(v)
	if _, err := c.api.Request(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}
	return nil
}

func (c *Client) Notify(ctx context.Context, callbackID, text string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// SetWebhook asks Telegram to push updates to url, signed with secret when
// it is not empty.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := c.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	c.logger.InfoContext(ctx, "Webhook registered", "url", url)
	return nil
}

// DeleteWebhook switches the bot back to polling.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.api.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// Keyboard converts the view's buttons; nil when the view has none.
func Keyboard(v menu.View) *tgbotapi.InlineKeyboardMarkup {
	if len(v.Keyboard) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(v.Keyboard))
	for _, r := range v.Keyboard {
		if len(r) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, callback.MustEncode(b.Action)))
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, notModified)
	}
	return strings.Contains(err.Error(), notModified)
}

// ToEvent maps an update to a bot event. Updates the bot does not act on,
// such as edited messages or stickers, report false.
func ToEvent(u tgbotapi.Update) (bot.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil {
			return bot.Event{}, false
		}
		return bot.Event{
			ChatID:     cq.Message.Chat.ID,
			MessageID:  cq.Message.MessageID,
			CallbackID: cq.ID,
			Payload:    cq.Data,
		}, true
	case u.Message != nil && u.Message.Chat != nil:
		m := u.Message
		ev := bot.Event{ChatID: m.Chat.ID, MessageID: m.MessageID}
		if m.IsCommand() {
			ev.Command = strings.ToLower(m.Command())
			ev.Args = strings.TrimSpace(m.CommandArguments())
			return ev, true
		}
		if strings.TrimSpace(m.Text) == "" {
			return bot.Event{}, false
		}
		ev.Text = m.Text
		return ev, true
	}
	return bot.Event{}, false
}

// Poll long-polls for updates and hands them to sink until ctx is done.
func (c *Client) Poll(ctx context.Context, sink Sink) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	c.logger.InfoContext(ctx, "Polling for updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			c.deliver(ctx, sink, upd)
		}
	}
}

func (c *Client) deliver(ctx context.Context, sink Sink, upd tgbotapi.Update) {
	ev, ok := ToEvent(upd)
	if !ok {
		c.logger.DebugContext(ctx, "Ignoring update", log.FieldUpdateID, upd.UpdateID)
		return
	}
	if err := sink.Dispatch(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "Dropping update",
			log.FieldUpdateID, upd.UpdateID, log.FieldChatID, ev.ChatID, log.FieldError, err)
	}
}

// WebhookHandler accepts updates pushed by Telegram. It answers 200 once
// the body parses so Telegram does not redeliver handled updates. A
// non-empty secret must match the secret token header.
func (c *Client) WebhookHandler(sink Sink, secret string) http.Handler {
	return WebhookHandler(sink, secret, c.logger)
}

// WebhookHandler is the client-independent form of Client.WebhookHandler.
func WebhookHandler(sink Sink, secret string, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if secret != "" && r.Header.Get(secretHeader) != secret {
			logger.WarnContext(r.Context(), "Webhook secret mismatch", log.FieldPath, r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		update, err := decodeUpdate(w, r)
		if err != nil {
			logger.WarnContext(r.Context(), "Malformed webhook body", log.FieldError, err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		if ev, ok := ToEvent(*update); ok {
			// The request context ends with the response; the dispatcher
			// only needs it while queueing.
			if err := sink.Dispatch(r.Context(), ev); err != nil {
				logger.WarnContext(r.Context(), "Dropping update",
					log.FieldUpdateID, update.UpdateID, log.FieldError, err)
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func decodeUpdate(w http.ResponseWriter, r *http.Request) (*tgbotapi.Update, error) {
	defer r.Body.Close()
	var u tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return &u, nil
}
