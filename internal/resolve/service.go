package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/everkeep/everkeep/internal/normalize"
	"github.com/everkeep/everkeep/internal/store"
)

// DefaultChunkSize bounds a single message insert payload.
const DefaultChunkSize = 500

// DefaultSuggestionConfidence is assigned to suggestions created for chats
// whose name could not be auto-resolved.
const DefaultSuggestionConfidence = 0.25

// Service is the import-merge resolver.
type Service struct {
	contacts    store.ContactStore
	messages    store.MessageStore
	suggestions store.SuggestionStore
	chunkSize   int
	logger      *slog.Logger
}

// NewService creates a resolver. chunkSize <= 0 falls back to
// DefaultChunkSize.
func NewService(log *slog.Logger, contacts store.ContactStore, messages store.MessageStore, suggestions store.SuggestionStore, chunkSize int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{
		contacts:    contacts,
		messages:    messages,
		suggestions: suggestions,
		chunkSize:   chunkSize,
		logger:      log.With(slog.String("service", "resolve")),
	}
}

// ImportAddressBook resolves a batch of address-book candidates against the
// current contact set. A failure on one record is logged and counted; the
// rest of the batch continues. Cancellation between records returns the
// partial summary.
func (s *Service) ImportAddressBook(ctx context.Context, candidates []AddressBookCandidate) (AddressBookSummary, error) {
	summary := AddressBookSummary{}
	existing, err := s.contacts.ListAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("load contacts: %w", err)
	}
	idx := NewIndex(existing)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, err := s.resolveCandidate(ctx, idx, candidate)
		if err != nil {
			summary.Failed++
			s.logger.Warn("address-book record failed",
				slog.String("name", candidate.Name),
				slog.Any("error", err),
			)
			continue
		}
		switch outcome {
		case outcomeNew:
			summary.New++
		case outcomeEnriched:
			summary.Enriched++
		case outcomeDuplicate:
			summary.Duplicate++
		}
	}
	s.logger.Info("address-book import done",
		slog.Int("new", summary.New),
		slog.Int("enriched", summary.Enriched),
		slog.Int("duplicate", summary.Duplicate),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeEnriched
	outcomeDuplicate
)

func (s *Service) resolveCandidate(ctx context.Context, idx *Index, candidate AddressBookCandidate) (outcome, error) {
	name := strings.TrimSpace(candidate.Name)
	if name == "" && !hasIdentifier(candidate) {
		return 0, fmt.Errorf("record has neither name nor identifiers")
	}

	matched, ok := idx.Match(candidate.Phones, candidate.Emails)
	if !ok {
		created, err := s.contacts.Create(ctx, store.Contact{
			Name:       name,
			Phones:     candidate.Phones,
			Emails:     candidate.Emails,
			Company:    candidate.Company,
			Role:       candidate.Role,
			Notes:      candidate.Notes,
			Categories: candidate.Categories,
			RawSource:  candidate.RawSource,
		})
		if err != nil {
			return 0, err
		}
		// Register immediately: later records in this batch must see it.
		idx.Add(&created)
		return outcomeNew, nil
	}

	changed := enrich(matched, candidate)
	if len(candidate.RawSource) > 0 {
		// Raw source is a cache of the latest external state:
		// last-writer-wins, refreshed even for duplicates.
		matched.RawSource = candidate.RawSource
	}
	idx.Add(matched)
	if _, err := s.contacts.Update(ctx, *matched); err != nil {
		return 0, err
	}
	if changed {
		return outcomeEnriched, nil
	}
	return outcomeDuplicate, nil
}

// enrich unions new identifiers into the matched contact and fills unset
// scalar fields. It reports whether anything other than the raw-source blob
// changed. The matched contact is mutated in place so the session index
// exposes the new identifiers to subsequent records.
func enrich(contact *store.Contact, candidate AddressBookCandidate) bool {
	changed := false
	for _, phone := range candidate.Phones {
		if normalize.Phone(phone) == "" {
			continue
		}
		if !containsNormalized(contact.Phones, phone, normalize.PhoneKey) {
			contact.Phones = append(contact.Phones, phone)
			changed = true
		}
	}
	for _, email := range candidate.Emails {
		if normalize.Email(email) == "" {
			continue
		}
		if !containsNormalized(contact.Emails, email, normalize.Email) {
			contact.Emails = append(contact.Emails, email)
			changed = true
		}
	}
	if contact.Company == "" && candidate.Company != "" {
		contact.Company = candidate.Company
		changed = true
	}
	if contact.Role == "" && candidate.Role != "" {
		contact.Role = candidate.Role
		changed = true
	}
	if contact.Notes == "" && candidate.Notes != "" {
		contact.Notes = candidate.Notes
		changed = true
	}
	return changed
}

func containsNormalized(existing []string, value string, norm func(string) string) bool {
	key := norm(value)
	for _, item := range existing {
		if norm(item) == key {
			return true
		}
	}
	return false
}

func hasIdentifier(candidate AddressBookCandidate) bool {
	for _, phone := range candidate.Phones {
		if normalize.Phone(phone) != "" {
			return true
		}
	}
	for _, email := range candidate.Emails {
		if normalize.Email(email) != "" {
			return true
		}
	}
	return false
}

// ImportChats resolves a batch of chat candidates. Re-importing a chat whose
// normalized name already exists is a no-op for that chat. Message inserts
// are chunk-atomic: a failed chunk never disturbs already-committed chunks.
func (s *Service) ImportChats(ctx context.Context, chats []ChatCandidate) (ChatSummary, error) {
	summary := ChatSummary{}
	existing, err := s.contacts.ListAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("load contacts: %w", err)
	}
	idx := NewIndex(existing)

	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		inserted, outcome, err := s.importChat(ctx, idx, chat)
		summary.Messages += inserted
		if err != nil {
			summary.Failed++
			s.logger.Warn("chat import failed",
				slog.String("chat", chat.ChatName),
				slog.Any("error", err),
			)
			continue
		}
		switch outcome {
		case chatLinked:
			summary.Linked++
		case chatSuggested:
			summary.Suggested++
		case chatSkipped:
			summary.Skipped++
		}
	}
	s.logger.Info("chat import done",
		slog.Int("linked", summary.Linked),
		slog.Int("suggested", summary.Suggested),
		slog.Int("skipped", summary.Skipped),
		slog.Int("messages", summary.Messages),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}

type chatOutcome int

const (
	chatLinked chatOutcome = iota
	chatSuggested
	chatSkipped
)

func (s *Service) importChat(ctx context.Context, idx *Index, chat ChatCandidate) (int, chatOutcome, error) {
	chatKey := normalize.Name(chat.ChatName)
	if chatKey == "" {
		return 0, 0, fmt.Errorf("chat has no usable name")
	}
	already, err := s.messages.HasChat(ctx, chatKey)
	if err != nil {
		return 0, 0, err
	}
	if already {
		return 0, chatSkipped, nil
	}

	var contact *store.Contact
	if group := idx.ByName(chat.ChatName); len(group) > 0 {
		contact = group[0]
	}

	contactID := ""
	if contact != nil {
		contactID = contact.ID
	}
	messages := make([]store.Message, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		direction := m.Direction
		if direction != store.DirectionOutgoing {
			direction = store.DirectionIncoming
		}
		messages = append(messages, store.Message{
			ContactID: contactID,
			ChatName:  chat.ChatName,
			ChatKey:   chatKey,
			Sender:    m.Sender,
			Content:   m.Content,
			Direction: direction,
			SentAt:    m.SentAt,
		})
	}

	inserted, err := s.insertChunked(ctx, messages)
	if err != nil {
		return inserted, 0, err
	}

	if contact == nil {
		source := chat.Source
		if source == "" {
			source = "chat_import"
		}
		_, err := s.suggestions.Insert(ctx, store.LinkSuggestion{
			MentionedName: chat.ChatName,
			Source:        source,
			Confidence:    DefaultSuggestionConfidence,
			Status:        store.SuggestionPending,
		})
		if err != nil {
			return inserted, 0, err
		}
		return inserted, chatSuggested, nil
	}

	if err := s.RefreshCounters(ctx, contact); err != nil {
		return inserted, 0, err
	}
	return inserted, chatLinked, nil
}

// insertChunked writes messages in fixed-size chunks. On a chunk failure it
// returns the rows already committed with the error.
func (s *Service) insertChunked(ctx context.Context, messages []store.Message) (int, error) {
	inserted := 0
	for start := 0; start < len(messages); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(messages) {
			end = len(messages)
		}
		if err := s.messages.BulkInsert(ctx, messages[start:end]); err != nil {
			return inserted, fmt.Errorf("insert chunk at %d: %w", start, err)
		}
		inserted += end - start
	}
	return inserted, nil
}

// RefreshCounters recomputes the contact's counters from the message store:
// message count from incoming messages only, interaction count from all.
// The in-memory contact is updated in place.
func (s *Service) RefreshCounters(ctx context.Context, contact *store.Contact) error {
	incoming, err := s.messages.CountByContact(ctx, contact.ID, store.DirectionIncoming)
	if err != nil {
		return err
	}
	total, err := s.messages.CountByContact(ctx, contact.ID, "")
	if err != nil {
		return err
	}
	contact.MessageCount = incoming
	contact.InteractionCount = total
	if _, err := s.contacts.Update(ctx, *contact); err != nil {
		return err
	}
	return nil
}
