package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reload reasons carried on MetricsReloadMessage.
const (
	ReasonTransactionAdded   = "transaction_added"
	ReasonTransactionDeleted = "transaction_deleted"
	ReasonManual             = "manual"
	ReasonStartup            = "startup"
)

// MetricsReloadMessage asks a worker to rebuild an owner's monthly summaries.
// Only the owner travels; the worker reads transactions from storage.
type MetricsReloadMessage struct {
	OwnerID   string    `json:"owner_id"`
	Reason    string    `json:"reason"`
	Force     bool      `json:"force"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMetricsReloadMessage(ownerID, reason string, force bool) *MetricsReloadMessage {
	return &MetricsReloadMessage{
		OwnerID:   ownerID,
		Reason:    reason,
		Force:     force,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MetricsReloadMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MetricsReloadMessageFromJSON decodes and validates a message body.
func MetricsReloadMessageFromJSON(data []byte) (*MetricsReloadMessage, error) {
	var msg MetricsReloadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.OwnerID) == "" {
		return nil, fmt.Errorf("reload message without owner_id")
	}
	return &msg, nil
}
