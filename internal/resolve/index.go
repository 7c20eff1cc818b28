// Package resolve implements the import-merge resolver: it classifies
// incoming address-book and chat records as new, enrichment, or duplicate
// against the existing contact set.
package resolve

import (
	"github.com/everkeep/everkeep/internal/normalize"
	"github.com/everkeep/everkeep/internal/store"
)

// Index holds session-scoped identifier lookups built from the current
// contact set. Entries are first-writer-wins: a key already present is never
// overwritten. Contacts created mid-session must be added immediately so
// later records in the same batch can match them.
type Index struct {
	phones map[string]*store.Contact
	emails map[string]*store.Contact
	names  map[string][]*store.Contact
}

// NewIndex builds an index over the given contacts.
func NewIndex(contacts []store.Contact) *Index {
	idx := &Index{
		phones: map[string]*store.Contact{},
		emails: map[string]*store.Contact{},
		names:  map[string][]*store.Contact{},
	}
	for i := range contacts {
		idx.Add(&contacts[i])
	}
	return idx
}

// Add registers every identifier of the contact. Existing phone/email entries
// keep their first writer; name groups accumulate.
func (idx *Index) Add(contact *store.Contact) {
	for _, phone := range contact.Phones {
		key := normalize.PhoneKey(phone)
		if key == "" {
			continue
		}
		if _, ok := idx.phones[key]; !ok {
			idx.phones[key] = contact
		}
	}
	for _, email := range contact.Emails {
		key := normalize.Email(email)
		if key == "" {
			continue
		}
		if _, ok := idx.emails[key]; !ok {
			idx.emails[key] = contact
		}
	}
	if key := normalize.Name(contact.Name); key != "" {
		group := idx.names[key]
		for _, member := range group {
			if member == contact {
				return
			}
		}
		idx.names[key] = append(group, contact)
	}
}

// ByPhone looks up a contact by raw phone string. Numbers match on their
// trailing significant digits, so a country-prefixed number matches its bare
// national form.
func (idx *Index) ByPhone(raw string) (*store.Contact, bool) {
	key := normalize.PhoneKey(raw)
	if key == "" {
		return nil, false
	}
	contact, ok := idx.phones[key]
	return contact, ok
}

// ByEmail looks up a contact by raw email string.
func (idx *Index) ByEmail(raw string) (*store.Contact, bool) {
	key := normalize.Email(raw)
	if key == "" {
		return nil, false
	}
	contact, ok := idx.emails[key]
	return contact, ok
}

// ByName returns the contacts whose normalized name equals the given raw
// name, in registration order.
func (idx *Index) ByName(raw string) []*store.Contact {
	key := normalize.Name(raw)
	if key == "" {
		return nil
	}
	return idx.names[key]
}

// Match finds the existing contact an address-book candidate belongs to:
// the first candidate phone with a normalized hit wins; emails are consulted
// only when no phone matches. When phones and emails point at different
// contacts, the phone match is used (fixed precedence, not scored).
func (idx *Index) Match(phones, emails []string) (*store.Contact, bool) {
	for _, phone := range phones {
		if contact, ok := idx.ByPhone(phone); ok {
			return contact, true
		}
	}
	for _, email := range emails {
		if contact, ok := idx.ByEmail(email); ok {
			return contact, true
		}
	}
	return nil, false
}
