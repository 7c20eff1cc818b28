package linker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/everkeep/everkeep/internal/store"
)

type fixture struct {
	svc         *Service
	contacts    *store.MemoryContactStore
	messages    *store.MemoryMessageStore
	suggestions *store.MemorySuggestionStore
	links       *store.MemoryLinkStore
}

func newFixture() *fixture {
	messages := store.NewMemoryMessageStore()
	contacts := store.NewMemoryContactStore(messages)
	suggestions := store.NewMemorySuggestionStore()
	links := store.NewMemoryLinkStore()
	return &fixture{
		svc:         NewService(nil, contacts, messages, suggestions, links),
		contacts:    contacts,
		messages:    messages,
		suggestions: suggestions,
		links:       links,
	}
}

func (f *fixture) addContact(t *testing.T, name string) store.Contact {
	t.Helper()
	contact, err := f.contacts.Create(context.Background(), store.Contact{Name: name})
	if err != nil {
		t.Fatal(err)
	}
	return contact
}

func (f *fixture) addPending(t *testing.T, mentioned string) store.LinkSuggestion {
	t.Helper()
	suggestion, err := f.suggestions.Insert(context.Background(), store.LinkSuggestion{
		MentionedName: mentioned,
		Source:        "chat_import",
		Confidence:    0.25,
	})
	if err != nil {
		t.Fatal(err)
	}
	return suggestion
}

func TestReviewExactName(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	contact := f.addContact(t, "Jane Doe")
	f.addPending(t, "JANE  DOE")

	reviewed, err := f.svc.Review(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviewed) != 1 {
		t.Fatalf("reviewed = %d", len(reviewed))
	}
	got := reviewed[0]
	if got.TargetContactID != contact.ID {
		t.Errorf("target = %q, want %q", got.TargetContactID, contact.ID)
	}
	if got.Reason != ReasonExactName || got.Confidence != ExactConfidence {
		t.Errorf("reason=%q confidence=%v", got.Reason, got.Confidence)
	}
	if got.Status != store.SuggestionPending {
		t.Errorf("review must not change status, got %q", got.Status)
	}
}

func TestReviewPartialNameFirstHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.addContact(t, "Ana Garcia")
	f.addContact(t, "Ana Martin")
	f.addPending(t, "Ana")

	reviewed, err := f.svc.Review(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := reviewed[0]
	// Two contacts share the substring; the first in list order wins.
	if got.TargetContactID != first.ID {
		t.Errorf("target = %q, want first contact %q", got.TargetContactID, first.ID)
	}
	if got.Reason != ReasonPartialName {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestReviewExactBeatsEarlierPartial(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addContact(t, "Jane")
	exact := f.addContact(t, "Jane Doe")
	f.addPending(t, "jane doe")

	reviewed, err := f.svc.Review(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reviewed[0].TargetContactID != exact.ID {
		t.Errorf("exact match must win over earlier partial, got %q", reviewed[0].TargetContactID)
	}
	if reviewed[0].Reason != ReasonExactName {
		t.Errorf("reason = %q", reviewed[0].Reason)
	}
}

func TestReviewUnmatchedStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addContact(t, "Jane Doe")
	f.addPending(t, "Zzyzx")

	reviewed, err := f.svc.Review(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviewed) != 1 {
		t.Fatalf("unmatched suggestion must still be surfaced")
	}
	if reviewed[0].TargetContactID != "" || reviewed[0].Reason != "" {
		t.Errorf("unexpected annotation: %+v", reviewed[0])
	}
}

func TestAcceptAssignsMessagesAndRecordsAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	contact := f.addContact(t, "Jane Doe")
	suggestion := f.addPending(t, "J. Doe")

	// Unresolved messages stored under the mentioned chat name.
	err := f.messages.BulkInsert(ctx, []store.Message{
		{ChatName: "J. Doe", Direction: store.DirectionIncoming, SentAt: time.Now()},
		{ChatName: "J. Doe", Direction: store.DirectionOutgoing, SentAt: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}

	accepted, err := f.svc.Accept(ctx, suggestion.ID, contact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if accepted.Status != store.SuggestionAccepted {
		t.Errorf("status = %q", accepted.Status)
	}
	count, _ := f.messages.CountByContact(ctx, contact.ID, "")
	if count != 2 {
		t.Errorf("assigned messages = %d, want 2", count)
	}
	updated, _ := f.contacts.GetByID(ctx, contact.ID)
	if updated.MessageCount != 1 || updated.InteractionCount != 2 {
		t.Errorf("counters = %d/%d", updated.MessageCount, updated.InteractionCount)
	}
	aliases, _ := f.links.ListBySource(ctx, contact.ID)
	if len(aliases) != 1 || aliases[0].Status != store.LinkStatusLinked {
		t.Errorf("alias links = %+v", aliases)
	}
	if aliases[0].MentionedName != "J. Doe" {
		t.Errorf("alias name = %q", aliases[0].MentionedName)
	}
}

func TestAcceptIdempotentAndTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	contact := f.addContact(t, "Jane Doe")
	suggestion := f.addPending(t, "Jane Doe")

	if _, err := f.svc.Accept(ctx, suggestion.ID, contact.ID); err != nil {
		t.Fatal(err)
	}
	// Re-accept: no-op, no duplicate alias.
	if _, err := f.svc.Accept(ctx, suggestion.ID, contact.ID); err != nil {
		t.Fatal(err)
	}
	aliases, _ := f.links.ListBySource(ctx, contact.ID)
	if len(aliases) != 1 {
		t.Errorf("aliases = %d, want 1", len(aliases))
	}
	// A terminal suggestion cannot be rejected afterwards.
	if _, err := f.svc.Reject(ctx, suggestion.ID); !errors.Is(err, ErrSuggestionResolved) {
		t.Errorf("expected ErrSuggestionResolved, got %v", err)
	}
}

func TestTerminalSuggestionsExcludedFromReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addContact(t, "Jane Doe")
	rejected := f.addPending(t, "Jane Doe")
	deferred := f.addPending(t, "Jane Doe")
	f.addPending(t, "Jane Doe")

	if _, err := f.svc.Reject(ctx, rejected.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Defer(ctx, deferred.ID); err != nil {
		t.Fatal(err)
	}

	reviewed, err := f.svc.Review(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviewed) != 1 {
		t.Errorf("terminal suggestions must not be reviewed, got %d", len(reviewed))
	}
}

func TestIgnoreSuppressesMention(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	source := f.addContact(t, "Jane Doe")
	f.addContact(t, "Carlos Ruiz")

	link, err := f.svc.Ignore(ctx, source.ID, "Carlos Ruiz")
	if err != nil {
		t.Fatal(err)
	}
	if link.Status != store.LinkStatusIgnored || link.TargetContactID != source.ID {
		t.Errorf("ignore link = %+v", link)
	}
	if _, err := f.svc.Ignore(ctx, source.ID, "carlos ruiz"); !errors.Is(err, ErrMentionDecided) {
		t.Errorf("expected ErrMentionDecided, got %v", err)
	}

	candidates, err := f.svc.MentionCandidates(ctx, source.ID, []string{"Carlos Ruiz", "Unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].MentionedName != "Unknown" {
		t.Errorf("ignored mention must not resurface: %+v", candidates)
	}
}

func TestLinkRecordsDecision(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	source := f.addContact(t, "Jane Doe")
	target := f.addContact(t, "Carlos Ruiz")

	link, err := f.svc.Link(ctx, source.ID, target.ID, "Carlos", "mentioned as a coworker")
	if err != nil {
		t.Fatal(err)
	}
	if link.Status != store.LinkStatusLinked || link.TargetContactID != target.ID {
		t.Errorf("link = %+v", link)
	}
	byTarget, _ := f.links.ListByTarget(ctx, target.ID)
	if len(byTarget) != 1 {
		t.Errorf("ListByTarget = %d", len(byTarget))
	}
}

func TestMentionCandidatesMatching(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	source := f.addContact(t, "Owner")
	carlos := f.addContact(t, "Carlos Ruiz")

	candidates, err := f.svc.MentionCandidates(ctx, source.ID, []string{"carlos ruiz", "Carlos", "Nobody", " "})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(candidates))
	}
	if !candidates[0].Matched || candidates[0].Reason != ReasonExactName || candidates[0].Contact.ID != carlos.ID {
		t.Errorf("exact candidate = %+v", candidates[0])
	}
	if !candidates[1].Matched || candidates[1].Reason != ReasonPartialName {
		t.Errorf("partial candidate = %+v", candidates[1])
	}
	if candidates[2].Matched {
		t.Errorf("unmatched candidate = %+v", candidates[2])
	}
}

// staleDecisionLinks never reports a prior decision, so inserts hit the
// store's per-mention uniqueness guard directly.
type staleDecisionLinks struct {
	*store.MemoryLinkStore
}

func (s staleDecisionLinks) HasDecision(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestDuplicateMentionDecisionRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.svc = NewService(nil, f.contacts, f.messages, f.suggestions, staleDecisionLinks{f.links})
	source := f.addContact(t, "Jane Doe")
	target := f.addContact(t, "Bob Ray")

	if _, err := f.svc.Link(ctx, source.ID, target.ID, "Bobby", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Link(ctx, source.ID, target.ID, "BOBBY", "seen again"); !errors.Is(err, ErrMentionDecided) {
		t.Fatalf("second link err = %v, want ErrMentionDecided", err)
	}
	if _, err := f.svc.Ignore(ctx, source.ID, "bobby"); !errors.Is(err, ErrMentionDecided) {
		t.Fatalf("ignore err = %v, want ErrMentionDecided", err)
	}
	if _, err := f.links.Insert(ctx, store.ContactLink{
		SourceContactID: source.ID,
		TargetContactID: source.ID,
		MentionedName:   "Bobby",
		Status:          store.LinkStatusIgnored,
	}); !errors.Is(err, store.ErrMentionExists) {
		t.Fatalf("store insert err = %v, want store.ErrMentionExists", err)
	}
}
