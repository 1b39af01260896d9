package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Sender identifies who authored a message. Values match the backend's senderType.
type Sender string

const (
	SenderUser      Sender = "USER"
	SenderAssistant Sender = "AI"
)

// Valid reports whether s is a known sender
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Message is a single chat message as held by the client
type Message struct {
	ID        ID        `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
	// Streaming is true only for the in-flight assistant reply
	Streaming bool `json:"streaming"`
}

// StoredMessage is the backend representation of a persisted message
type StoredMessage struct {
	ID         ID        `json:"id"`
	Content    string    `json:"content"`
	SenderType Sender    `json:"senderType"`
	CreatedAt  Timestamp `json:"createdAt"`
}

// ToMessage converts a persisted message into its client form
func (m StoredMessage) ToMessage() Message {
	return Message{
		ID:        m.ID,
		Text:      m.Content,
		Sender:    m.SenderType,
		CreatedAt: m.CreatedAt.Time,
	}
}

// MessageCreate represents message save data
type MessageCreate struct {
	UserID     ID     `json:"userId" validate:"required"`
	Content    string `json:"content"`
	SenderType Sender `json:"senderType" validate:"required,oneof=USER AI"`
}

// MessageRepository defines the interface for message storage on the backend side
type MessageRepository interface {
	Create(ctx context.Context, conversationID ID, input MessageCreate) (*StoredMessage, error)
	ListByConversation(ctx context.Context, conversationID ID) ([]StoredMessage, error)
}

// localDateTime is the zone-less layout produced by the original backend
const localDateTime = "2006-01-02T15:04:05.999999999"

// Timestamp decodes RFC 3339 as well as zone-less local date-times.
type Timestamp struct {
	time.Time
}

// MarshalJSON encodes the timestamp as RFC 3339
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339, zone-less local date-times and null
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		t.Time = time.Time{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, *s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localDateTime, *s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", *s, err)
	}
	t.Time = parsed
	return nil
}
