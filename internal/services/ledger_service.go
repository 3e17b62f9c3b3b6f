package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finbot/internal/bot"
	"finbot/internal/ledger"
	"finbot/internal/log"
	ports "finbot/internal/sheets"
	"finbot/internal/storage"
)

// ErrNoRegistry is returned by Bind when no user registry is configured.
var ErrNoRegistry = errors.New("user registry not configured")

// Registry stores which spreadsheet each chat uses.
type Registry interface {
	SpreadsheetFor(ctx context.Context, chatID int64) (string, error)
	BindSpreadsheet(ctx context.Context, chatID int64, spreadsheetID string) error
}

// Backend opens spreadsheets and prepares their sheets.
type Backend interface {
	ports.Opener
	ports.Initializer
}

// LedgerService resolves chats to ledgers: the chat's bound spreadsheet,
// else the default one.
type LedgerService struct {
	registry  Registry
	backend   Backend
	defaultID string
	opts      ledger.Options
	logger    *log.Logger
}

var _ bot.LedgerProvider = (*LedgerService)(nil)

// NewLedgerService wires the ledger options shared by every chat. registry
// may be nil, in which case every chat uses defaultSpreadsheetID.
func NewLedgerService(registry Registry, backend Backend, defaultSpreadsheetID string, opts ledger.Options) *LedgerService {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		registry:  registry,
		backend:   backend,
		defaultID: strings.TrimSpace(defaultSpreadsheetID),
		opts:      opts,
		logger:    logger.WithComponent(log.ComponentBackend),
	}
}

// SpreadsheetFor returns the spreadsheet a chat writes to.
func (s *LedgerService) SpreadsheetFor(ctx context.Context, chatID int64) (string, error) {
	if s.registry != nil {
		id, err := s.registry.SpreadsheetFor(ctx, chatID)
		switch {
		case err == nil:
			return id, nil
		case !errors.Is(err, storage.ErrUserNotFound):
			return "", fmt.Errorf("resolve spreadsheet of chat %d: %w", chatID, err)
		}
	}
	if s.defaultID == "" {
		return "", bot.ErrNoSpreadsheet
	}
	return s.defaultID, nil
}

func (s *LedgerService) LedgerFor(ctx context.Context, chatID int64) (bot.Ledger, error) {
	id, err := s.SpreadsheetFor(ctx, chatID)
	if err != nil {
		return nil, err
	}
	wb, err := s.backend.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", id, err)
	}
	return ledger.New(chatID, id, wb, s.opts), nil
}

// Bind prepares the spreadsheet's sheets before recording it, so a chat is
// never bound to a spreadsheet the bot cannot write.
func (s *LedgerService) Bind(ctx context.Context, chatID int64, spreadsheetID string) error {
	if s.registry == nil {
		return ErrNoRegistry
	}
	if err := s.backend.EnsureSheets(ctx, spreadsheetID); err != nil {
		return fmt.Errorf("prepare spreadsheet %s: %w", spreadsheetID, err)
	}
	if err := s.registry.BindSpreadsheet(ctx, chatID, spreadsheetID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Chat bound to spreadsheet",
		log.FieldChatID, chatID, log.FieldSpreadsheetID, spreadsheetID)
	return nil
}
