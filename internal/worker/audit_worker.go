package worker

import (
	"context"
	"fmt"

	"finbot/internal/amqp"
	"finbot/internal/log"
	"finbot/internal/storage"
)

// EventStore persists audited ledger writes.
type EventStore interface {
	RecordLedgerEvent(ctx context.Context, e storage.LedgerEvent) (bool, error)
}

// EventSource delivers ledger events to a handler until ctx is done.
type EventSource interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error
}

// AuditWorker copies ledger events from the broker into the audit log.
type AuditWorker struct {
	store  EventStore
	logger *log.Logger
}

func NewAuditWorker(store EventStore, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &AuditWorker{store: store, logger: logger.WithComponent(log.ComponentWorker)}
}

// Run consumes events until ctx is done.
func (w *AuditWorker) Run(ctx context.Context, src EventSource) error {
	w.logger.InfoContext(ctx, "Audit worker started")
	err := src.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Audit worker stopped")
		return nil
	}
	return err
}

// HandleLedgerEvent stores one event. Redelivered events are acknowledged
// without a second row.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	logger := w.logger.With(
		log.FieldEventID, msg.ID.String(),
		log.FieldChatID, msg.ChatID,
		log.FieldSpreadsheetID, msg.SpreadsheetID,
		log.FieldAction, msg.Action)

	inserted, err := w.store.RecordLedgerEvent(ctx, storage.LedgerEvent{
		ID:            msg.ID.String(),
		ChatID:        msg.ChatID,
		SpreadsheetID: msg.SpreadsheetID,
		Sheet:         msg.Sheet,
		Action:        msg.Action,
		Values:        msg.Values,
		Previous:      msg.Previous,
		OccurredAt:    msg.Timestamp,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record ledger event", log.FieldError, err)
		return fmt.Errorf("record ledger event %s: %w", msg.ID, err)
	}
	if !inserted {
		logger.DebugContext(ctx, "Duplicate ledger event ignored")
		return nil
	}
	logger.InfoContext(ctx, "Ledger event recorded", log.FieldSheet, msg.Sheet)
	return nil
}
