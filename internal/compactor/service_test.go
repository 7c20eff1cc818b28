package compactor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/everkeep/everkeep/internal/normalize"
	"github.com/everkeep/everkeep/internal/store"
)

type fixture struct {
	svc      *Service
	contacts *store.MemoryContactStore
	messages *store.MemoryMessageStore
}

func newFixture() *fixture {
	messages := store.NewMemoryMessageStore()
	contacts := store.NewMemoryContactStore(messages)
	return &fixture{
		svc:      NewService(nil, contacts, messages, 1),
		contacts: contacts,
		messages: messages,
	}
}

func (f *fixture) addContact(t *testing.T, contact store.Contact) store.Contact {
	t.Helper()
	created, err := f.contacts.Create(context.Background(), contact)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func (f *fixture) addMessages(t *testing.T, contactID string, n int) {
	t.Helper()
	msgs := make([]store.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, store.Message{
			ContactID: contactID,
			ChatName:  "chat",
			Direction: store.DirectionIncoming,
			SentAt:    time.Now(),
		})
	}
	if err := f.messages.BulkInsert(context.Background(), msgs); err != nil {
		t.Fatal(err)
	}
}

func TestRunMergesDuplicateGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// Two contacts named "Carlos Ruiz": one with 50 messages, one with 2
	// and the favorite flag. After compaction one remains with 52 messages
	// and favorite set.
	big := f.addContact(t, store.Contact{Name: "Carlos Ruiz"})
	small := f.addContact(t, store.Contact{Name: "carlos  ruiz", Favorite: true})
	f.addMessages(t, big.ID, 50)
	f.addMessages(t, small.ID, 2)
	for _, c := range []store.Contact{big, small} {
		count, _ := f.messages.CountByContact(ctx, c.ID, store.DirectionIncoming)
		c.MessageCount = count
		if _, err := f.contacts.Update(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := f.svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GroupsMerged != 1 || summary.ContactsDeleted != 1 || summary.FailedGroups != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	all, _ := f.contacts.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("contacts remaining = %d", len(all))
	}
	merged := all[0]
	if merged.ID != big.ID {
		t.Errorf("winner should be the high-volume contact")
	}
	if merged.MessageCount != 52 {
		t.Errorf("message count = %d, want 52", merged.MessageCount)
	}
	if !merged.Favorite {
		t.Error("favorite flag must survive the merge")
	}
	// No message may reference the deleted id.
	orphaned, _ := f.messages.CountByContact(ctx, small.ID, "")
	if orphaned != 0 {
		t.Errorf("messages still reference deleted contact: %d", orphaned)
	}
}

func TestRunNoDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addContact(t, store.Contact{Name: "Jane Doe"})
	f.addContact(t, store.Contact{Name: "Carlos Ruiz"})

	summary, err := f.svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GroupsMerged != 0 || summary.ContactsDeleted != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := f.contacts.ListAll(ctx)
	if len(all) != 2 {
		t.Errorf("contacts = %d", len(all))
	}
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addContact(t, store.Contact{Name: "Jane Doe"})
	f.addContact(t, store.Contact{Name: "jane doe"})

	if _, err := f.svc.Run(ctx); err != nil {
		t.Fatal(err)
	}
	summary, err := f.svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GroupsMerged != 0 {
		t.Fatalf("second run must find nothing: %+v", summary)
	}
}

func TestWinnerScoring(t *testing.T) {
	f := newFixture()
	favorite := f.addContact(t, store.Contact{Name: "X", Favorite: true})
	profiled := f.addContact(t, store.Contact{Name: "X", Profile: json.RawMessage(`{"summary":"friend"}`)})
	chatty := f.addContact(t, store.Contact{Name: "X", MessageCount: 3})

	group := []store.Contact{favorite, profiled, chatty}
	winner, losers := pickWinner(group)
	if winner.ID != chatty.ID {
		t.Errorf("message count must dominate, winner = %q", winner.Name)
	}
	if len(losers) != 2 {
		t.Errorf("losers = %d", len(losers))
	}

	// Without messages, profile beats favorite.
	winner, _ = pickWinner([]store.Contact{favorite, profiled})
	if winner.ID != profiled.ID {
		t.Error("profile must outrank favorite")
	}
}

func TestMergeMetadataFallbacks(t *testing.T) {
	winner := store.Contact{ID: "w", Name: "X", Phones: []string{"600111222"}}
	losers := []store.Contact{
		{ID: "l1", Name: "X", Favorite: true, Categories: []string{"family"}, Phones: []string{"+34 600 111 222", "699000000"}},
		{ID: "l2", Name: "X", Profile: json.RawMessage(`{"summary":"x"}`), Emails: []string{"x@example.com"}},
	}
	mergeMetadata(&winner, losers)
	if !winner.Favorite {
		t.Error("favorite not merged")
	}
	if len(winner.Categories) != 1 || winner.Categories[0] != "family" {
		t.Errorf("categories = %v", winner.Categories)
	}
	if !winner.HasProfile() {
		t.Error("profile not taken from loser")
	}
	// "+34 600 111 222" duplicates the winner's number; "699000000" is new.
	if len(winner.Phones) != 2 {
		t.Errorf("phones = %v", winner.Phones)
	}
	if len(winner.Emails) != 1 {
		t.Errorf("emails = %v", winner.Emails)
	}
}

func TestRequireSharedIdentifierGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.svc.RequireSharedIdentifier = true

	// Same display name, disjoint identifiers: must not merge.
	f.addContact(t, store.Contact{Name: "John Smith", Phones: []string{"600111222"}})
	f.addContact(t, store.Contact{Name: "John Smith", Phones: []string{"699888777"}})
	// Same name, shared number: merges.
	f.addContact(t, store.Contact{Name: "Ana", Phones: []string{"611000111"}})
	f.addContact(t, store.Contact{Name: "ana", Phones: []string{"+34 611 000 111"}})

	summary, err := f.svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GroupsMerged != 1 || summary.ContactsDeleted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := f.contacts.ListAll(ctx)
	smiths := 0
	for _, c := range all {
		if c.Name == "John Smith" {
			smiths++
		}
	}
	if smiths != 2 {
		t.Errorf("distinct John Smiths merged: %d remain", smiths)
	}
}

func TestGateRetainedContactContributesNoMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.svc.RequireSharedIdentifier = true

	// Mixed group: one loser shares the winner's number, one does not.
	winner := f.addContact(t, store.Contact{Name: "John Smith", Phones: []string{"600111222"}, MessageCount: 3})
	f.addMessages(t, winner.ID, 3)
	f.addContact(t, store.Contact{Name: "john smith", Phones: []string{"+34 600 111 222"}, Categories: []string{"work"}})
	retained := f.addContact(t, store.Contact{
		Name:     "JOHN SMITH",
		Phones:   []string{"699888777"},
		Emails:   []string{"other.john@example.com"},
		Favorite: true,
		Profile:  json.RawMessage(`{"summary":"someone else"}`),
	})

	summary, err := f.svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.GroupsMerged != 1 || summary.ContactsDeleted != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	merged, err := f.contacts.GetByID(ctx, winner.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The mergeable loser's metadata is absorbed.
	if len(merged.Categories) != 1 || merged.Categories[0] != "work" {
		t.Errorf("categories = %v", merged.Categories)
	}
	// The retained contact stays alive and contributes nothing: the winner
	// must not pick up its favorite flag, profile, or identifiers.
	if merged.Favorite {
		t.Error("favorite leaked from retained contact")
	}
	if merged.HasProfile() {
		t.Error("profile leaked from retained contact")
	}
	for _, phone := range merged.Phones {
		if normalize.PhoneKey(phone) == normalize.PhoneKey("699888777") {
			t.Errorf("retained contact's number leaked into winner: %v", merged.Phones)
		}
	}
	if len(merged.Emails) != 0 {
		t.Errorf("emails = %v, want none", merged.Emails)
	}
	if _, err := f.contacts.GetByID(ctx, retained.ID); err != nil {
		t.Errorf("retained contact should survive: %v", err)
	}
}

// failingReassign wraps a message store and fails every reassignment.
type failingReassign struct {
	*store.MemoryMessageStore
}

func (s failingReassign) ReassignContact(context.Context, string, string) (int, error) {
	return 0, errors.New("store unavailable")
}

func TestGroupAtomicOnReassignFailure(t *testing.T) {
	ctx := context.Background()
	messages := store.NewMemoryMessageStore()
	contacts := store.NewMemoryContactStore(messages)
	svc := NewService(nil, contacts, failingReassign{messages}, 1)

	if _, err := contacts.Create(ctx, store.Contact{Name: "Dup", MessageCount: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := contacts.Create(ctx, store.Contact{Name: "dup"}); err != nil {
		t.Fatal(err)
	}

	summary, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// The failed group is reported, and no loser was deleted.
	if summary.FailedGroups != 1 || summary.GroupsMerged != 0 || summary.ContactsDeleted != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if len(all) != 2 {
		t.Errorf("contacts = %d, want 2 (nothing deleted)", len(all))
	}
}
