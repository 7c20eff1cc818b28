package resolve

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/everkeep/everkeep/internal/store"
)

func newTestService(chunkSize int) (*Service, *store.MemoryContactStore, *store.MemoryMessageStore, *store.MemorySuggestionStore) {
	messages := store.NewMemoryMessageStore()
	contacts := store.NewMemoryContactStore(messages)
	suggestions := store.NewMemorySuggestionStore()
	svc := NewService(nil, contacts, messages, suggestions, chunkSize)
	return svc, contacts, messages, suggestions
}

func TestImportAddressBookCreatesAndEnriches(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	summary, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "Jane Doe", Phones: []string{"600111222"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.New != 1 || summary.Total() != 1 {
		t.Fatalf("first import summary = %+v", summary)
	}

	// Same contact again with an added email: expect "enriched", both
	// identifiers on the final record.
	summary, err = svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "Jane Doe", Phones: []string{"600111222"}, Emails: []string{"jane@example.com"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Enriched != 1 || summary.New != 0 {
		t.Fatalf("second import summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(all))
	}
	if len(all[0].Phones) != 1 || len(all[0].Emails) != 1 {
		t.Errorf("final contact identifiers = %v %v", all[0].Phones, all[0].Emails)
	}
}

func TestImportAddressBookIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)
	batch := []AddressBookCandidate{
		{Name: "Jane Doe", Phones: []string{"600111222"}, Emails: []string{"jane@example.com"}},
		{Name: "Bob", Phones: []string{"+1 555 0100"}},
	}
	if _, err := svc.ImportAddressBook(ctx, batch); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.ImportAddressBook(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if summary.New != 0 || summary.Enriched != 0 || summary.Duplicate != 2 {
		t.Fatalf("re-import summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if len(all) != 2 {
		t.Errorf("expected 2 contacts, got %d", len(all))
	}
}

func TestImportAddressBookNormalizedPhoneMerge(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	if _, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "A", Phones: []string{"+34 600 111 222"}},
	}); err != nil {
		t.Fatal(err)
	}
	// Country-prefixed number matches its bare national form.
	summary, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "A", Phones: []string{"600111222"}, Emails: []string{"other@example.com"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Enriched != 1 {
		t.Fatalf("expected enrich against existing contact, got %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected single contact, got %d", len(all))
	}
}

func TestImportAddressBookPhonePrecedenceOverEmail(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	if _, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "A", Phones: []string{"600111222"}},
		{Name: "B", Emails: []string{"b@example.com"}},
	}); err != nil {
		t.Fatal(err)
	}

	// Candidate matches A by phone and B by email: A is enriched, B untouched.
	summary, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "A", Phones: []string{"600 111 222"}, Emails: []string{"b@example.com", "new@example.com"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Enriched != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	var a, b store.Contact
	for _, c := range all {
		switch c.Name {
		case "A":
			a = c
		case "B":
			b = c
		}
	}
	if len(a.Emails) != 2 {
		t.Errorf("A should absorb both emails, got %v", a.Emails)
	}
	if len(b.Phones) != 0 || len(b.Emails) != 1 {
		t.Errorf("B must stay untouched, got %+v", b)
	}
}

func TestImportAddressBookRefreshesRawSourceOnDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	if _, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "A", Phones: []string{"600111222"}, RawSource: json.RawMessage(`{"v":1}`)},
	}); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "A", Phones: []string{"600111222"}, RawSource: json.RawMessage(`{"v":2}`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Duplicate != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if string(all[0].RawSource) != `{"v":2}` {
		t.Errorf("raw source not refreshed: %s", all[0].RawSource)
	}
}

func TestImportAddressBookBatchLocalVisibility(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	// Second record must match the contact created by the first one within
	// the same batch.
	summary, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "Jane Doe", Phones: []string{"600111222"}},
		{Name: "Jane Doe", Phones: []string{"600111222"}, Emails: []string{"jane@example.com"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.New != 1 || summary.Enriched != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 contact, got %d", len(all))
	}
}

func TestImportAddressBookSkipsBadRecord(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	summary, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "", Phones: []string{"---"}},
		{Name: "Valid", Phones: []string{"600111222"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 || summary.New != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 contact, got %d", len(all))
	}
}

func chatWith(name string, n int, direction string) ChatCandidate {
	msgs := make([]ChatMessageCandidate, 0, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		msgs = append(msgs, ChatMessageCandidate{
			Sender:    name,
			Content:   "hello",
			Direction: direction,
			SentAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	return ChatCandidate{ChatName: name, Messages: msgs}
}

func TestImportChatsLinksExactName(t *testing.T) {
	ctx := context.Background()
	svc, contacts, messages, suggestions := newTestService(0)

	if _, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "Jane Doe", Phones: []string{"600111222"}},
	}); err != nil {
		t.Fatal(err)
	}

	chat := chatWith("jane doe", 3, store.DirectionIncoming)
	chat.Messages = append(chat.Messages, ChatMessageCandidate{
		Sender: "me", Content: "hi", Direction: store.DirectionOutgoing,
		SentAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	})
	summary, err := svc.ImportChats(ctx, []ChatCandidate{chat})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Linked != 1 || summary.Messages != 4 {
		t.Fatalf("summary = %+v", summary)
	}

	all, _ := contacts.ListAll(ctx)
	jane := all[0]
	// Message counter counts incoming only; interactions count everything.
	if jane.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", jane.MessageCount)
	}
	if jane.InteractionCount != 4 {
		t.Errorf("interaction count = %d, want 4", jane.InteractionCount)
	}
	count, _ := messages.CountByContact(ctx, jane.ID, "")
	if count != 4 {
		t.Errorf("stored messages = %d, want 4", count)
	}
	pending, _ := suggestions.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("no suggestion expected, got %d", len(pending))
	}
}

func TestImportChatsUnresolvedCreatesSuggestion(t *testing.T) {
	ctx := context.Background()
	svc, _, messages, suggestions := newTestService(0)

	summary, err := svc.ImportChats(ctx, []ChatCandidate{chatWith("Unknown Person", 2, store.DirectionIncoming)})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Suggested != 1 || summary.Messages != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	pending, _ := suggestions.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending suggestion, got %d", len(pending))
	}
	if pending[0].MentionedName != "Unknown Person" || pending[0].Confidence != DefaultSuggestionConfidence {
		t.Errorf("suggestion = %+v", pending[0])
	}
	count, _ := messages.CountByContact(ctx, "", "")
	if count != 2 {
		t.Errorf("unassigned messages = %d, want 2", count)
	}
}

func TestImportChatsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, messages, _ := newTestService(0)

	if _, err := svc.ImportChats(ctx, []ChatCandidate{chatWith("Someone", 5, store.DirectionIncoming)}); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.ImportChats(ctx, []ChatCandidate{chatWith("someone", 5, store.DirectionIncoming)})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 || summary.Messages != 0 {
		t.Fatalf("re-import summary = %+v", summary)
	}
	count, _ := messages.CountByContact(ctx, "", "")
	if count != 5 {
		t.Errorf("messages after re-import = %d, want 5", count)
	}
}

func TestImportChatsBatchLocalContactVisible(t *testing.T) {
	ctx := context.Background()
	svc, contacts, _, _ := newTestService(0)

	// A WhatsApp-style run: the address-book import created the contact
	// moments earlier in this process; the chat import session must see it.
	if _, err := svc.ImportAddressBook(ctx, []AddressBookCandidate{
		{Name: "Maria Lopez", Phones: []string{"611222333"}},
	}); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.ImportChats(ctx, []ChatCandidate{chatWith("Maria  Lopez", 1, store.DirectionIncoming)})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Linked != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	all, _ := contacts.ListAll(ctx)
	if all[0].MessageCount != 1 {
		t.Errorf("message count = %d", all[0].MessageCount)
	}
}

func TestImportChatsChunking(t *testing.T) {
	ctx := context.Background()
	svc, _, messages, _ := newTestService(2)

	summary, err := svc.ImportChats(ctx, []ChatCandidate{chatWith("Chunky", 5, store.DirectionIncoming)})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Messages != 5 {
		t.Fatalf("summary = %+v", summary)
	}
	has, _ := messages.HasChat(ctx, "chunky")
	if !has {
		t.Error("chat not stored")
	}
}
