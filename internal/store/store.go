package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by all implementations.
var (
	ErrContactNotFound    = errors.New("contact not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrHasMessages        = errors.New("contact still has messages assigned")
	ErrMentionExists      = errors.New("mention decision already recorded")
)

// ContactStore persists canonical contact records.
type ContactStore interface {
	Create(ctx context.Context, contact Contact) (Contact, error)
	Update(ctx context.Context, contact Contact) (Contact, error)
	// Delete removes a contact. Implementations return ErrHasMessages when
	// messages still reference the contact.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Contact, error)
	List(ctx context.Context, limit, offset int) ([]Contact, error)
	// ListAll pages through the full contact set.
	ListAll(ctx context.Context) ([]Contact, error)
	Search(ctx context.Context, query string, limit, offset int) ([]Contact, error)
}

// MessageStore persists chat messages and supports the bulk reassignment the
// linker and compactor rely on.
type MessageStore interface {
	// BulkInsert writes one chunk of messages. Chunking is the caller's
	// concern; a chunk either commits fully or not at all.
	BulkInsert(ctx context.Context, messages []Message) error
	// HasChat reports whether any message with the given normalized chat key
	// was already imported.
	HasChat(ctx context.Context, chatKey string) (bool, error)
	// AssignByChatKey sets contact_id on all unassigned messages with the
	// given chat key and returns the number of rows touched.
	AssignByChatKey(ctx context.Context, chatKey, contactID string) (int, error)
	// ReassignContact moves every message from one contact to another and
	// returns the number of rows touched.
	ReassignContact(ctx context.Context, fromContactID, toContactID string) (int, error)
	// CountByContact counts messages for a contact, optionally filtered by
	// direction ("" counts all).
	CountByContact(ctx context.Context, contactID, direction string) (int, error)
	ListByContact(ctx context.Context, contactID string, limit, offset int) ([]Message, error)
}

// SuggestionStore persists link suggestions awaiting user decisions.
type SuggestionStore interface {
	Insert(ctx context.Context, suggestion LinkSuggestion) (LinkSuggestion, error)
	GetByID(ctx context.Context, id string) (LinkSuggestion, error)
	ListPending(ctx context.Context) ([]LinkSuggestion, error)
	// UpdateStatus moves a suggestion to a new status.
	UpdateStatus(ctx context.Context, id, status string) (LinkSuggestion, error)
	// SetCandidate records the linker's computed target, reason, and
	// confidence without changing the status.
	SetCandidate(ctx context.Context, id, targetContactID, reason string, confidence float64) (LinkSuggestion, error)
}

// LinkStore persists the append-only link/ignore audit trail.
type LinkStore interface {
	// Insert records a decided mention. At most one decision may exist per
	// (source contact, normalized mentioned name); implementations return
	// ErrMentionExists on a duplicate.
	Insert(ctx context.Context, link ContactLink) (ContactLink, error)
	ListBySource(ctx context.Context, sourceContactID string) ([]ContactLink, error)
	ListByTarget(ctx context.Context, targetContactID string) ([]ContactLink, error)
	// HasDecision reports whether the mention was already linked or ignored
	// for the given source contact.
	HasDecision(ctx context.Context, sourceContactID, mentionedName string) (bool, error)
}
