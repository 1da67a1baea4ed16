// Package model defines the core domain types for the tkr-agent-chat
// storage layer.
//
// Types use strong typing (UUIDs as validated strings, time.Time, enums)
// and avoid interface{} wherever possible. All timestamps are UTC.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentCard is the identity record for an assistant persona.
// The ID is immutable once created; cards are seeded at startup or
// registered explicitly, read frequently, and rarely updated.
type AgentCard struct {
	ID           string   `json:"id" cbor:"id"`
	Name         string   `json:"name" cbor:"name"`
	Description  string   `json:"description" cbor:"description"`
	Color        string   `json:"color" cbor:"color"`
	IconPath     string   `json:"icon_path" cbor:"icon_path"`
	Capabilities []string `json:"capabilities" cbor:"capabilities"`
}

// Equal reports whether two cards carry identical content. Used by the
// upsert-or-skip path during seeding to decide whether a write is needed.
func (c AgentCard) Equal(other AgentCard) bool {
	if c.ID != other.ID || c.Name != other.Name || c.Description != other.Description ||
		c.Color != other.Color || c.IconPath != other.IconPath {
		return false
	}
	if len(c.Capabilities) != len(other.Capabilities) {
		return false
	}
	for i := range c.Capabilities {
		if c.Capabilities[i] != other.Capabilities[i] {
			return false
		}
	}
	return true
}

// ChatSession is a single conversation thread. A session exclusively owns
// its messages: deleting the session cascades to every message in it.
type ChatSession struct {
	ID        string    `json:"id" cbor:"id"`
	Title     string    `json:"title" cbor:"title"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
	AgentID   string    `json:"agent_id,omitempty" cbor:"agent_id,omitempty"`
}

// MessageType classifies who produced a message turn.
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeAgent  MessageType = "agent"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeUser, MessageTypeAgent, MessageTypeSystem:
		return true
	}
	return false
}

// MessagePart is one typed content fragment of a message.
type MessagePart struct {
	Type    string `json:"type" cbor:"type"`
	Content string `json:"content" cbor:"content"`
}

// Message is a single turn in a session. The message UUID is the canonical
// lookup key; there is deliberately no surrogate numeric id, so "get by id"
// and "get by uuid" can never diverge.
type Message struct {
	UUID      string        `json:"message_uuid" cbor:"message_uuid"`
	SessionID string        `json:"session_id" cbor:"session_id"`
	Type      MessageType   `json:"type" cbor:"type"`
	Content   string        `json:"content" cbor:"content"`
	CreatedAt time.Time     `json:"created_at" cbor:"created_at"`
	Parts     []MessagePart `json:"parts,omitempty" cbor:"parts,omitempty"`
}

// NewSessionID returns a fresh UUID string suitable for a ChatSession.
func NewSessionID() string {
	return uuid.NewString()
}

// NewMessageUUID returns a fresh UUID string suitable for a Message.
func NewMessageUUID() string {
	return uuid.NewString()
}

// ValidateID checks that id is non-empty and contains no byte that would
// collide with the key-encoding separator used by the key-value backend.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("model: %s id must not be empty", kind)
	}
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return fmt.Errorf("model: %s id %q must not contain ':'", kind, id)
		}
	}
	return nil
}
