package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Resources a refresh signal can refer to.
const (
	ResourceWallets      = "wallets"
	ResourceTransactions = "transactions"
	ResourceAll          = "all"
)

// Actions that caused a refresh signal.
const (
	ActionCreated = "created"
	ActionRefresh = "refresh"
)

var ErrEmptyResource = errors.New("refresh signal without resource")

// RefreshSignal tells other processes that the user's data changed remotely.
// It carries no data: receivers refetch through the API.
type RefreshSignal struct {
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	UserID    int64     `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRefreshSignal creates a signal stamped with the current time.
func NewRefreshSignal(resource, action string, userID int64) *RefreshSignal {
	return &RefreshSignal{
		Resource:  resource,
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the signal to JSON bytes
func (m *RefreshSignal) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshSignalFromJSON decodes and checks a signal.
func RefreshSignalFromJSON(data []byte) (*RefreshSignal, error) {
	var msg RefreshSignal
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Resource == "" {
		return nil, ErrEmptyResource
	}
	return &msg, nil
}
