package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger event actions.
const (
	ActionAppend = "append"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// LedgerEventMessage describes one acknowledged write to a user spreadsheet.
// Values holds the written row; Previous holds the replaced or removed row.
type LedgerEventMessage struct {
	ID            uuid.UUID `json:"id"`
	ChatID        int64     `json:"chat_id"`
	SpreadsheetID string    `json:"spreadsheet_id"`
	Sheet         string    `json:"sheet"`
	Action        string    `json:"action"`
	Values        []string  `json:"values,omitempty"`
	Previous      []string  `json:"previous,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEventMessage creates an event with a fresh id and the current time.
func NewLedgerEventMessage(chatID int64, spreadsheetID, sheet, action string, values, previous []string) *LedgerEventMessage {
	return &LedgerEventMessage{
		ID:            uuid.New(),
		ChatID:        chatID,
		SpreadsheetID: spreadsheetID,
		Sheet:         sheet,
		Action:        action,
		Values:        values,
		Previous:      previous,
		Timestamp:     time.Now().UTC(),
	}
}

// Validate rejects events the audit worker cannot store.
func (m *LedgerEventMessage) Validate() error {
	if m.ID == uuid.Nil {
		return errors.New("missing event id")
	}
	switch m.Action {
	case ActionAppend, ActionUpdate, ActionRemove:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if m.SpreadsheetID == "" {
		return errors.New("missing spreadsheet id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and validates a message.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
