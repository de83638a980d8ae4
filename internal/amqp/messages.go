package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncKind says what happened to a challenge.
type SyncKind string

const (
	KindUpsert SyncKind = "upsert"
	KindDelete SyncKind = "delete"
)

// ChallengeSyncMessage is a lightweight notice that a challenge changed.
// It carries only the code and version; the worker loads the full state
// from the local store.
type ChallengeSyncMessage struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Version   int64     `json:"version"`
	Kind      SyncKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChallengeSyncMessage creates a message with a fresh id.
func NewChallengeSyncMessage(code string, version int64, kind SyncKind) *ChallengeSyncMessage {
	return &ChallengeSyncMessage{
		ID:        uuid.New(),
		Code:      code,
		Version:   version,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChallengeSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChallengeSyncMessageFromJSON decodes and checks a message.
func ChallengeSyncMessageFromJSON(data []byte) (*ChallengeSyncMessage, error) {
	var msg ChallengeSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Code == "" {
		return nil, fmt.Errorf("sync message %s: missing code", msg.ID)
	}
	switch msg.Kind {
	case KindUpsert, KindDelete:
	case "":
		msg.Kind = KindUpsert
	default:
		return nil, fmt.Errorf("sync message %s: unknown kind %q", msg.ID, msg.Kind)
	}
	return &msg, nil
}
