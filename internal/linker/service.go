// Package linker turns pending name mentions into confidence-scored link
// suggestions and applies user decisions (accept, reject, defer, ignore,
// link). Matching is deterministic first-hit, not best-match: exact
// normalized equality first, then substring containment in either direction
// over the contact list in list order.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/everkeep/everkeep/internal/normalize"
	"github.com/everkeep/everkeep/internal/store"
)

// Match reasons reported on suggestions.
const (
	ReasonExactName   = "exact_name"
	ReasonPartialName = "partial_name"
)

// Confidence assigned per match reason.
const (
	ExactConfidence   = 0.9
	PartialConfidence = 0.6
)

// Sentinel errors.
var (
	ErrSuggestionResolved = errors.New("suggestion already in a terminal state")
	ErrMentionDecided     = errors.New("mention already linked or ignored for this contact")
)

// Service is the mention linker.
type Service struct {
	contacts    store.ContactStore
	messages    store.MessageStore
	suggestions store.SuggestionStore
	links       store.LinkStore
	logger      *slog.Logger
}

// NewService creates a linker.
func NewService(log *slog.Logger, contacts store.ContactStore, messages store.MessageStore, suggestions store.SuggestionStore, links store.LinkStore) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		contacts:    contacts,
		messages:    messages,
		suggestions: suggestions,
		links:       links,
		logger:      log.With(slog.String("service", "linker")),
	}
}

// Review runs a linking pass over all pending suggestions: each one lacking
// a pre-assigned target gets the first matching contact recorded as its
// candidate, with reason and confidence. Unmatched suggestions stay pending
// and are still returned for manual action.
func (s *Service) Review(ctx context.Context) ([]store.LinkSuggestion, error) {
	pending, err := s.suggestions.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return pending, nil
	}
	contacts, err := s.contacts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}

	reviewed := make([]store.LinkSuggestion, 0, len(pending))
	for _, suggestion := range pending {
		if suggestion.TargetContactID != "" {
			reviewed = append(reviewed, suggestion)
			continue
		}
		target, reason, confidence, ok := matchContact(contacts, suggestion.MentionedName)
		if !ok {
			reviewed = append(reviewed, suggestion)
			continue
		}
		updated, err := s.suggestions.SetCandidate(ctx, suggestion.ID, target.ID, reason, confidence)
		if err != nil {
			s.logger.Warn("annotate suggestion failed",
				slog.String("suggestion_id", suggestion.ID),
				slog.Any("error", err),
			)
			reviewed = append(reviewed, suggestion)
			continue
		}
		reviewed = append(reviewed, updated)
	}
	return reviewed, nil
}

// matchContact finds the first contact the mentioned name resolves to.
// Exact normalized equality is tried over the whole list before substring
// containment; both passes stop at the first hit.
func matchContact(contacts []store.Contact, mentioned string) (store.Contact, string, float64, bool) {
	key := normalize.Name(mentioned)
	if key == "" {
		return store.Contact{}, "", 0, false
	}
	for _, contact := range contacts {
		if normalize.Name(contact.Name) == key {
			return contact, ReasonExactName, ExactConfidence, true
		}
	}
	for _, contact := range contacts {
		name := normalize.Name(contact.Name)
		if name == "" {
			continue
		}
		if strings.Contains(key, name) || strings.Contains(name, key) {
			return contact, ReasonPartialName, PartialConfidence, true
		}
	}
	return store.Contact{}, "", 0, false
}

// Accept marks the suggestion accepted, records an alias link tying the
// mentioned name to the contact, and retroactively assigns every
// still-unresolved message with that chat name. An empty contactID falls
// back to the annotated candidate. Re-accepting an accepted
// suggestion is a no-op.
func (s *Service) Accept(ctx context.Context, suggestionID, contactID string) (store.LinkSuggestion, error) {
	suggestion, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return store.LinkSuggestion{}, err
	}
	if suggestion.Status == store.SuggestionAccepted {
		return suggestion, nil
	}
	if suggestion.Terminal() {
		return store.LinkSuggestion{}, ErrSuggestionResolved
	}
	if contactID == "" {
		contactID = suggestion.TargetContactID
	}
	if contactID == "" {
		return store.LinkSuggestion{}, errors.New("suggestion has no candidate; a contact id is required")
	}
	contact, err := s.contacts.GetByID(ctx, contactID)
	if err != nil {
		return store.LinkSuggestion{}, err
	}

	if _, err := s.links.Insert(ctx, store.ContactLink{
		SourceContactID: contact.ID,
		TargetContactID: contact.ID,
		MentionedName:   suggestion.MentionedName,
		Context:         suggestion.Source,
		Status:          store.LinkStatusLinked,
	}); err != nil && !errors.Is(err, store.ErrMentionExists) {
		// An alias recorded by an earlier accept is not an error.
		return store.LinkSuggestion{}, fmt.Errorf("record alias: %w", err)
	}

	assigned, err := s.messages.AssignByChatKey(ctx, normalize.Name(suggestion.MentionedName), contact.ID)
	if err != nil {
		return store.LinkSuggestion{}, fmt.Errorf("assign messages: %w", err)
	}
	if assigned > 0 {
		if err := s.refreshCounters(ctx, contact); err != nil {
			return store.LinkSuggestion{}, err
		}
	}

	accepted, err := s.suggestions.UpdateStatus(ctx, suggestion.ID, store.SuggestionAccepted)
	if err != nil {
		return store.LinkSuggestion{}, err
	}
	if accepted.TargetContactID != contact.ID {
		accepted, err = s.suggestions.SetCandidate(ctx, suggestion.ID, contact.ID, accepted.Reason, accepted.Confidence)
		if err != nil {
			return store.LinkSuggestion{}, err
		}
	}
	s.logger.Info("suggestion accepted",
		slog.String("suggestion_id", suggestion.ID),
		slog.String("contact_id", contact.ID),
		slog.Int("messages_assigned", assigned),
	)
	return accepted, nil
}

// Reject marks the suggestion rejected. Idempotent.
func (s *Service) Reject(ctx context.Context, suggestionID string) (store.LinkSuggestion, error) {
	return s.finish(ctx, suggestionID, store.SuggestionRejected)
}

// Defer marks the suggestion deferred: hidden from the active queue but kept
// for later reconsideration. Idempotent.
func (s *Service) Defer(ctx context.Context, suggestionID string) (store.LinkSuggestion, error) {
	return s.finish(ctx, suggestionID, store.SuggestionDeferred)
}

func (s *Service) finish(ctx context.Context, suggestionID, status string) (store.LinkSuggestion, error) {
	suggestion, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return store.LinkSuggestion{}, err
	}
	if suggestion.Status == status {
		return suggestion, nil
	}
	if suggestion.Terminal() {
		return store.LinkSuggestion{}, ErrSuggestionResolved
	}
	return s.suggestions.UpdateStatus(ctx, suggestionID, status)
}

// Ignore records a self-referential ignored link so the mention is never
// re-surfaced for the source contact's profile.
func (s *Service) Ignore(ctx context.Context, sourceContactID, mentionedName string) (store.ContactLink, error) {
	decided, err := s.links.HasDecision(ctx, sourceContactID, mentionedName)
	if err != nil {
		return store.ContactLink{}, err
	}
	if decided {
		return store.ContactLink{}, ErrMentionDecided
	}
	link, err := s.links.Insert(ctx, store.ContactLink{
		SourceContactID: sourceContactID,
		TargetContactID: sourceContactID,
		MentionedName:   mentionedName,
		Status:          store.LinkStatusIgnored,
	})
	if errors.Is(err, store.ErrMentionExists) {
		return store.ContactLink{}, ErrMentionDecided
	}
	return link, err
}

// Link records a decided mention-to-contact mapping in the context of the
// source contact's narrative profile.
func (s *Service) Link(ctx context.Context, sourceContactID, targetContactID, mentionedName, linkContext string) (store.ContactLink, error) {
	if _, err := s.contacts.GetByID(ctx, targetContactID); err != nil {
		return store.ContactLink{}, err
	}
	decided, err := s.links.HasDecision(ctx, sourceContactID, mentionedName)
	if err != nil {
		return store.ContactLink{}, err
	}
	if decided {
		return store.ContactLink{}, ErrMentionDecided
	}
	link, err := s.links.Insert(ctx, store.ContactLink{
		SourceContactID: sourceContactID,
		TargetContactID: targetContactID,
		MentionedName:   mentionedName,
		Context:         linkContext,
		Status:          store.LinkStatusLinked,
	})
	if errors.Is(err, store.ErrMentionExists) {
		return store.ContactLink{}, ErrMentionDecided
	}
	return link, err
}

// MentionCandidate pairs a mentioned name from a narrative profile with the
// first contact it matches, if any.
type MentionCandidate struct {
	MentionedName string        `json:"mentioned_name"`
	Contact       store.Contact `json:"contact,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Confidence    float64       `json:"confidence,omitempty"`
	Matched       bool          `json:"matched"`
}

// MentionCandidates computes match candidates for mentioned names surfaced
// by the analysis producer for one source contact, skipping mentions already
// linked or ignored.
func (s *Service) MentionCandidates(ctx context.Context, sourceContactID string, names []string) ([]MentionCandidate, error) {
	contacts, err := s.contacts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	candidates := []MentionCandidate{}
	for _, name := range names {
		if normalize.Name(name) == "" {
			continue
		}
		decided, err := s.links.HasDecision(ctx, sourceContactID, name)
		if err != nil {
			return nil, err
		}
		if decided {
			continue
		}
		candidate := MentionCandidate{MentionedName: name}
		if contact, reason, confidence, ok := matchContact(contacts, name); ok && contact.ID != sourceContactID {
			candidate.Contact = contact
			candidate.Reason = reason
			candidate.Confidence = confidence
			candidate.Matched = true
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (s *Service) refreshCounters(ctx context.Context, contact store.Contact) error {
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
	_, err = s.contacts.Update(ctx, contact)
	return err
}
