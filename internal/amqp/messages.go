package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Actions carried by an expense event. The worker fetches the current row
// from the database, so upsert covers both create and update.
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// ExpenseEventMessage tells the mirror worker that an expense changed.
// It carries only the ID and action; the worker loads the rest itself.
type ExpenseEventMessage struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEventMessage(id int64, action string) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		ID:        id,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Action != ActionUpsert && msg.Action != ActionDelete {
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	return &msg, nil
}
