// Package store defines the persistent domain records of the contact core and
// the storage interfaces the resolver, linker, and compactor operate through.
// Postgres implementations live alongside in-memory ones used by tests.
package store

import (
	"encoding/json"
	"time"
)

// Direction of a chat message relative to the assistant owner.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// LinkSuggestion lifecycle states. Accepted, rejected, and deferred are
// terminal: the linker never reconsiders them.
const (
	SuggestionPending  = "pending"
	SuggestionAccepted = "accepted"
	SuggestionRejected = "rejected"
	SuggestionDeferred = "deferred"
)

// ContactLink states. Ignored links are self-referential and suppress the
// same mention for their source contact.
const (
	LinkStatusLinked  = "linked"
	LinkStatusIgnored = "ignored"
)

// Contact is a canonical person record. Profile is an opaque blob produced by
// the external analysis pipeline; this core only reads or copies it.
type Contact struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Phones           []string        `json:"phones"`
	Emails           []string        `json:"emails"`
	Company          string          `json:"company,omitempty"`
	Role             string          `json:"role,omitempty"`
	Categories       []string        `json:"categories,omitempty"`
	Favorite         bool            `json:"favorite"`
	Notes            string          `json:"notes,omitempty"`
	Profile          json.RawMessage `json:"profile,omitempty"`
	RawSource        json.RawMessage `json:"raw_source,omitempty"`
	MessageCount     int             `json:"message_count"`
	InteractionCount int             `json:"interaction_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasProfile reports whether the contact carries a non-empty profile blob.
func (c Contact) HasProfile() bool {
	trimmed := string(c.Profile)
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}

// Message is a chat-log entry. ContactID stays empty until the chat name is
// resolved; it is the only field mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contact_id,omitempty"`
	ChatName  string    `json:"chat_name"`
	ChatKey   string    `json:"chat_key"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Direction string    `json:"direction"`
	SentAt    time.Time `json:"sent_at"`
}

// LinkSuggestion is a proposed association between a mentioned name and a
// contact, awaiting a user decision.
type LinkSuggestion struct {
	ID              string    `json:"id"`
	MentionedName   string    `json:"mentioned_name"`
	Source          string    `json:"source"`
	TargetContactID string    `json:"target_contact_id,omitempty"`
	Confidence      float64   `json:"confidence"`
	Reason          string    `json:"reason,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Terminal reports whether the suggestion reached a final state.
func (s LinkSuggestion) Terminal() bool {
	switch s.Status {
	case SuggestionAccepted, SuggestionRejected, SuggestionDeferred:
		return true
	}
	return false
}

// ContactLink is an append-only audit record of a decided mention: either
// linked to a target contact or explicitly ignored (self-referential).
type ContactLink struct {
	ID              string    `json:"id"`
	SourceContactID string    `json:"source_contact_id"`
	TargetContactID string    `json:"target_contact_id"`
	MentionedName   string    `json:"mentioned_name"`
	Context         string    `json:"context,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
