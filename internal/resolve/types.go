package resolve

import (
	"encoding/json"
	"time"
)

// AddressBookCandidate is one already-parsed address-book entry.
type AddressBookCandidate struct {
	Name       string          `json:"name"`
	Phones     []string        `json:"phones,omitempty"`
	Emails     []string        `json:"emails,omitempty"`
	Company    string          `json:"company,omitempty"`
	Role       string          `json:"role,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Categories []string        `json:"categories,omitempty"`
	RawSource  json.RawMessage `json:"raw_source,omitempty"`
}

// ChatMessageCandidate is one already-parsed chat-log message.
type ChatMessageCandidate struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Direction string    `json:"direction"`
	SentAt    time.Time `json:"sent_at"`
}

// ChatCandidate is one chat file: a name plus its parsed messages.
type ChatCandidate struct {
	ChatName string                 `json:"chat_name"`
	Source   string                 `json:"source,omitempty"`
	Messages []ChatMessageCandidate `json:"messages"`
}

// AddressBookSummary tallies one address-book import batch. Total is the sum
// of the four outcome counters.
type AddressBookSummary struct {
	New       int `json:"new"`
	Enriched  int `json:"enriched"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// Total returns the number of processed records.
func (s AddressBookSummary) Total() int {
	return s.New + s.Enriched + s.Duplicate + s.Failed
}

// ChatSummary tallies one chat import batch.
type ChatSummary struct {
	Linked    int `json:"linked"`
	Suggested int `json:"suggested"`
	Skipped   int `json:"skipped"`
	Messages  int `json:"messages"`
	Failed    int `json:"failed"`
}
