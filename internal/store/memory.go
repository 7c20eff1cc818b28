package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/everkeep/everkeep/internal/normalize"
)

// In-memory store implementations. They back unit tests and small
// single-process deployments; behavior mirrors the Postgres stores, including
// the delete guard on referenced contacts.

// MemoryContactStore is an in-memory ContactStore.
type MemoryContactStore struct {
	mu       sync.RWMutex
	contacts map[string]Contact
	order    []string

	// messages lets Delete enforce the reference invariant in tests.
	messages *MemoryMessageStore
}

var _ ContactStore = (*MemoryContactStore)(nil)

// NewMemoryContactStore creates an empty in-memory contact store. The message
// store is optional; when set, Delete refuses contacts with assigned
// messages.
func NewMemoryContactStore(messages *MemoryMessageStore) *MemoryContactStore {
	return &MemoryContactStore{
		contacts: map[string]Contact{},
		messages: messages,
	}
}

func (s *MemoryContactStore) Create(_ context.Context, contact Contact) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact.ID = uuid.NewString()
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	s.contacts[contact.ID] = contact
	s.order = append(s.order, contact.ID)
	return contact, nil
}

func (s *MemoryContactStore) Update(_ context.Context, contact Contact) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contacts[contact.ID]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	contact.CreatedAt = existing.CreatedAt
	contact.UpdatedAt = time.Now().UTC()
	s.contacts[contact.ID] = contact
	return contact, nil
}

func (s *MemoryContactStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return ErrContactNotFound
	}
	if s.messages != nil {
		count, _ := s.messages.CountByContact(context.Background(), id, "")
		if count > 0 {
			return ErrHasMessages
		}
	}
	delete(s.contacts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryContactStore) GetByID(_ context.Context, id string) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contact, ok := s.contacts[id]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	return contact, nil
}

func (s *MemoryContactStore) List(_ context.Context, limit, offset int) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.order) {
		offset = len(s.order)
	}
	end := offset + limit
	if end > len(s.order) {
		end = len(s.order)
	}
	items := make([]Contact, 0, end-offset)
	for _, id := range s.order[offset:end] {
		items = append(items, s.contacts[id])
	}
	return items, nil
}

func (s *MemoryContactStore) ListAll(_ context.Context) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Contact, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.contacts[id])
	}
	return items, nil
}

func (s *MemoryContactStore) Search(ctx context.Context, query string, limit, offset int) ([]Contact, error) {
	if query == "" {
		return s.List(ctx, limit, offset)
	}
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	matched := []Contact{}
	for _, contact := range all {
		if contactMatches(contact, needle) {
			matched = append(matched, contact)
		}
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	if limit <= 0 {
		limit = 100
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func contactMatches(contact Contact, needle string) bool {
	if strings.Contains(strings.ToLower(contact.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(contact.Company), needle) {
		return true
	}
	for _, email := range contact.Emails {
		if strings.Contains(strings.ToLower(email), needle) {
			return true
		}
	}
	return false
}

// MemoryMessageStore is an in-memory MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []Message
}

var _ MessageStore = (*MemoryMessageStore)(nil)

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{}
}

func (s *MemoryMessageStore) BulkInsert(_ context.Context, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		m.ID = uuid.NewString()
		if m.ChatKey == "" {
			m.ChatKey = normalize.Name(m.ChatName)
		}
		s.messages = append(s.messages, m)
	}
	return nil
}

func (s *MemoryMessageStore) HasChat(_ context.Context, chatKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ChatKey == chatKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryMessageStore) AssignByChatKey(_ context.Context, chatKey, contactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := 0
	for i := range s.messages {
		if s.messages[i].ChatKey == chatKey && s.messages[i].ContactID == "" {
			s.messages[i].ContactID = contactID
			touched++
		}
	}
	return touched, nil
}

func (s *MemoryMessageStore) ReassignContact(_ context.Context, fromContactID, toContactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := 0
	for i := range s.messages {
		if s.messages[i].ContactID == fromContactID {
			s.messages[i].ContactID = toContactID
			touched++
		}
	}
	return touched, nil
}

func (s *MemoryMessageStore) CountByContact(_ context.Context, contactID, direction string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.messages {
		if m.ContactID != contactID {
			continue
		}
		if direction != "" && m.Direction != direction {
			continue
		}
		count++
	}
	return count, nil
}

func (s *MemoryMessageStore) ListByContact(_ context.Context, contactID string, limit, offset int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := []Message{}
	for _, m := range s.messages {
		if m.ContactID == contactID {
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].SentAt.Before(matched[j].SentAt)
	})
	if limit <= 0 {
		limit = 100
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// MemorySuggestionStore is an in-memory SuggestionStore.
type MemorySuggestionStore struct {
	mu          sync.RWMutex
	suggestions map[string]LinkSuggestion
	order       []string
}

var _ SuggestionStore = (*MemorySuggestionStore)(nil)

// NewMemorySuggestionStore creates an empty in-memory suggestion store.
func NewMemorySuggestionStore() *MemorySuggestionStore {
	return &MemorySuggestionStore{suggestions: map[string]LinkSuggestion{}}
}

func (s *MemorySuggestionStore) Insert(_ context.Context, suggestion LinkSuggestion) (LinkSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	suggestion.ID = uuid.NewString()
	if suggestion.Status == "" {
		suggestion.Status = SuggestionPending
	}
	now := time.Now().UTC()
	suggestion.CreatedAt = now
	suggestion.UpdatedAt = now
	s.suggestions[suggestion.ID] = suggestion
	s.order = append(s.order, suggestion.ID)
	return suggestion, nil
}

func (s *MemorySuggestionStore) GetByID(_ context.Context, id string) (LinkSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	suggestion, ok := s.suggestions[id]
	if !ok {
		return LinkSuggestion{}, ErrSuggestionNotFound
	}
	return suggestion, nil
}

func (s *MemorySuggestionStore) ListPending(_ context.Context) ([]LinkSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := []LinkSuggestion{}
	for _, id := range s.order {
		if suggestion := s.suggestions[id]; suggestion.Status == SuggestionPending {
			items = append(items, suggestion)
		}
	}
	return items, nil
}

func (s *MemorySuggestionStore) UpdateStatus(_ context.Context, id, status string) (LinkSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	suggestion, ok := s.suggestions[id]
	if !ok {
		return LinkSuggestion{}, ErrSuggestionNotFound
	}
	suggestion.Status = status
	suggestion.UpdatedAt = time.Now().UTC()
	s.suggestions[id] = suggestion
	return suggestion, nil
}

func (s *MemorySuggestionStore) SetCandidate(_ context.Context, id, targetContactID, reason string, confidence float64) (LinkSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	suggestion, ok := s.suggestions[id]
	if !ok {
		return LinkSuggestion{}, ErrSuggestionNotFound
	}
	suggestion.TargetContactID = targetContactID
	suggestion.Reason = reason
	suggestion.Confidence = confidence
	suggestion.UpdatedAt = time.Now().UTC()
	s.suggestions[id] = suggestion
	return suggestion, nil
}

// MemoryLinkStore is an in-memory LinkStore.
type MemoryLinkStore struct {
	mu    sync.RWMutex
	links []ContactLink
}

var _ LinkStore = (*MemoryLinkStore)(nil)

// NewMemoryLinkStore creates an empty in-memory link store.
func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{}
}

func (s *MemoryLinkStore) Insert(_ context.Context, link ContactLink) (ContactLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize.Name(link.MentionedName)
	for _, existing := range s.links {
		if existing.SourceContactID == link.SourceContactID && normalize.Name(existing.MentionedName) == key {
			return ContactLink{}, ErrMentionExists
		}
	}
	link.ID = uuid.NewString()
	link.CreatedAt = time.Now().UTC()
	s.links = append(s.links, link)
	return link, nil
}

func (s *MemoryLinkStore) ListBySource(_ context.Context, sourceContactID string) ([]ContactLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := []ContactLink{}
	for _, link := range s.links {
		if link.SourceContactID == sourceContactID {
			items = append(items, link)
		}
	}
	return items, nil
}

func (s *MemoryLinkStore) ListByTarget(_ context.Context, targetContactID string) ([]ContactLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := []ContactLink{}
	for _, link := range s.links {
		if link.TargetContactID == targetContactID {
			items = append(items, link)
		}
	}
	return items, nil
}

func (s *MemoryLinkStore) HasDecision(_ context.Context, sourceContactID, mentionedName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := normalize.Name(mentionedName)
	for _, link := range s.links {
		if link.SourceContactID == sourceContactID && normalize.Name(link.MentionedName) == key {
			return true, nil
		}
	}
	return false, nil
}
