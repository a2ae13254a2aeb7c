package amqp

import (
	"encoding/json"
	"time"
)

// Entities and operations carried by change events.
const (
	EntityExpense  = "expense"
	EntityBudget   = "budget"
	EntityCategory = "category"

	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// ChangeEvent announces that one row of a user's ledger changed. It carries
// only identifiers; consumers fetch current state from the database, so a
// stale or replayed event converges to the same result.
type ChangeEvent struct {
	Entity    string    `json:"entity"`
	Op        string    `json:"op"`
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Month     string    `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeEvent(entity, op string, id, userID int64, month string) *ChangeEvent {
	return &ChangeEvent{
		Entity:    entity,
		Op:        op,
		ID:        id,
		UserID:    userID,
		Month:     month,
		Timestamp: time.Now(),
	}
}

func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
