// Package bot is the conversation state machine. It turns chat events into
// draft edits, ledger writes and rendered screens.
package bot

import (
	"context"
	"errors"
	"time"

	"finbot/internal/core"
	"finbot/internal/draft"
	"finbot/internal/editor"
	"finbot/internal/ledger"
	"finbot/internal/log"
	"finbot/internal/menu"
)

// ErrNoSpreadsheet is returned by a LedgerProvider when a chat has no
// spreadsheet and no default is configured.
var ErrNoSpreadsheet = errors.New("no spreadsheet configured")

// MessageRef identifies a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Transport delivers screens to a chat.
type Transport interface {
	Send(ctx context.Context, chatID int64, v menu.View) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, v menu.View) error
	// Notify answers a button press, optionally with a short text.
	Notify(ctx context.Context, callbackID, text string) error
}

// Ledger is the spreadsheet of one chat.
type Ledger interface {
	Append(ctx context.Context, row core.Row) error
	AppendTransfer(ctx context.Context, t core.Transfer) error
	Update(ctx context.Context, key ledger.Key, row core.Row) error
	Remove(ctx context.Context, key ledger.Key) (core.Row, error)
	Recent(ctx context.Context, n int) ([]core.Row, error)
	Counterparties(ctx context.Context) ([]string, error)
	Classifications(ctx context.Context, limit int) ([]string, error)
	Balances(ctx context.Context) (core.Overview, error)
	Classify(ctx context.Context, p core.Period) (core.Overview, error)
	Plans(ctx context.Context, year, month int) ([]core.Row, error)
	AppendPlan(ctx context.Context, row core.Row) error
	CopyPlans(ctx context.Context) (int, error)
}

// LedgerProvider resolves the ledger of a chat.
type LedgerProvider interface {
	LedgerFor(ctx context.Context, chatID int64) (Ledger, error)
	// Bind makes spreadsheetID the chat's spreadsheet.
	Bind(ctx context.Context, chatID int64, spreadsheetID string) error
}

// Extractor turns free text into a draft.
type Extractor interface {
	Extract(ctx context.Context, text string, today core.Date) (*draft.Draft, error)
}

// Event is one incoming update. Exactly one of Command, Payload and Text is
// set.
type Event struct {
	ChatID int64
	// MessageID is the message holding the pressed button.
	MessageID  int
	CallbackID string
	// Payload is the encoded callback.Action of a button press.
	Payload string
	// Command is the command name without slash, Args what follows it.
	Command string
	Args    string
	Text    string
}

// IsCallback reports whether the event is a button press.
func (e Event) IsCallback() bool { return e.CallbackID != "" }

// Options configures a Bot. Zero values select defaults.
type Options struct {
	Renderer *menu.Renderer
	// Extractor is optional; without it free text is not interpreted.
	Extractor Extractor
	Logger    *log.Logger
	// RecentLimit is the size of the recent operations window.
	RecentLimit int
	// ClassificationLimit caps the classifications offered as buttons.
	ClassificationLimit int
	Now                 func() time.Time
}

// Bot handles events for every chat.
type Bot struct {
	transport Transport
	ledgers   LedgerProvider
	extractor Extractor
	render    *menu.Renderer
	editors   *editor.Set
	sessions  *registry
	logger    *log.Logger
	opts      Options
}

func New(transport Transport, ledgers LedgerProvider, opts Options) *Bot {
	if opts.Renderer == nil {
		opts.Renderer = menu.New(".")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	if opts.ClassificationLimit <= 0 {
		opts.ClassificationLimit = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bot{
		transport: transport,
		ledgers:   ledgers,
		extractor: opts.Extractor,
		render:    opts.Renderer,
		editors:   editor.NewSet(opts.Renderer),
		sessions:  newRegistry(),
		logger:    opts.Logger.WithComponent(log.ComponentBot),
		opts:      opts,
	}
}

// Session returns the session of a chat, creating it if needed.
func (b *Bot) Session(chatID int64) *Session { return b.sessions.get(chatID) }

// Handle processes one event to completion. Events of the same chat are
// handled one at a time.
func (b *Bot) Handle(ctx context.Context, ev Event) error {
	ctx, logger := log.WithTrace(ctx, b.logger)
	s := b.sessions.get(ev.ChatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &turn{
		b:      b,
		s:      s,
		ev:     ev,
		logger: logger.With(log.FieldChatID, ev.ChatID),
	}
	err := t.dispatch(ctx)
	if ev.IsCallback() {
		if nerr := b.transport.Notify(ctx, ev.CallbackID, ""); nerr != nil {
			t.logger.WarnContext(ctx, "Failed to answer callback", log.FieldError, nerr)
		}
	}
	if err != nil {
		t.logger.ErrorContext(ctx, "Event handling failed",
			log.FieldState, s.state.String(), log.FieldError, err)
		return err
	}
	return nil
}
