package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// TransactionEventMessage is published after a transaction mutation commits.
// For created/updated events the worker re-reads the row by ID, so only
// identifiers travel. Deleted rows are gone by the time the worker runs, so
// delete events carry the snapshot needed to write a reversal entry.
type TransactionEventMessage struct {
	EventID   string    `json:"event_id"`
	Event     string    `json:"event"`
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// Snapshot fields, set for deleted events only.
	Title        string `json:"title,omitempty"`
	AmountCents  int64  `json:"amount_cents,omitempty"`
	Type         string `json:"type,omitempty"`
	Category     string `json:"category,omitempty"`
	Date         string `json:"date,omitempty"`
	WasCompleted bool   `json:"was_completed,omitempty"`
}

// NewTransactionEventMessage builds the wire message for a lifecycle event.
func NewTransactionEventMessage(event string, t core.Transaction) *TransactionEventMessage {
	msg := &TransactionEventMessage{
		EventID:   uuid.NewString(),
		Event:     event,
		ID:        t.ID,
		UserID:    t.UserID,
		Version:   t.Version,
		Timestamp: time.Now().UTC(),
	}
	if event == services.EventDeleted {
		msg.Title = t.Title
		msg.AmountCents = t.Amount.Cents
		msg.Type = string(t.Type)
		msg.Category = string(t.Category)
		msg.Date = t.Date.String()
		msg.WasCompleted = t.IsCompleted
	}
	return msg
}

// ToJSON converts the message to JSON bytes.
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventMessageFromJSON creates a message from JSON bytes.
func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
