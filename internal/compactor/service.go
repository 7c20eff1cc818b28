// Package compactor implements the bulk deduplication pass: contacts sharing
// a normalized name are merged into a single winner, dependent messages are
// reassigned, and the losers deleted. The pass is idempotent and
// group-atomic: a failure inside one group never deletes that group's
// losers, and other groups proceed independently.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/everkeep/everkeep/internal/normalize"
	"github.com/everkeep/everkeep/internal/store"
)

// DefaultWorkers bounds concurrent group processing.
const DefaultWorkers = 4

// Score weights: message volume dominates, then profile presence, then the
// favorite flag.
const (
	messageWeight  = 1000
	profileWeight  = 100
	favoriteWeight = 10
)

// Summary reports one compaction run. Zero groups merged is a valid outcome.
type Summary struct {
	GroupsMerged    int `json:"groups_merged"`
	ContactsDeleted int `json:"contacts_deleted"`
	FailedGroups    int `json:"failed_groups"`
}

// Service is the deduplication compactor.
type Service struct {
	contacts store.ContactStore
	messages store.MessageStore
	workers  int

	// RequireSharedIdentifier gates merging on at least one shared phone or
	// email between loser and winner (contacts without any identifier still
	// merge). Off by default: name-only grouping matches the historical
	// behavior, at the documented risk of merging distinct people who share
	// a display name.
	RequireSharedIdentifier bool

	logger *slog.Logger
}

// NewService creates a compactor. workers <= 0 falls back to DefaultWorkers.
func NewService(log *slog.Logger, contacts store.ContactStore, messages store.MessageStore, workers int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Service{
		contacts: contacts,
		messages: messages,
		workers:  workers,
		logger:   log.With(slog.String("service", "compactor")),
	}
}

// Run executes one compaction pass over the full contact set. Groups are
// processed concurrently with bounded parallelism; operations within a group
// stay sequential (reassign, recompute, merge, delete).
func (s *Service) Run(ctx context.Context) (Summary, error) {
	all, err := s.contacts.ListAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load contacts: %w", err)
	}

	groups := groupByName(all)

	var (
		mu      sync.Mutex
		summary Summary
	)
	eg, groupCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for _, group := range groups {
		eg.Go(func() error {
			deleted, err := s.compactGroup(groupCtx, group)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.FailedGroups++
				s.logger.Warn("group compaction failed",
					slog.String("name", group[0].Name),
					slog.Any("error", err),
				)
				return nil
			}
			if deleted > 0 {
				summary.GroupsMerged++
				summary.ContactsDeleted += deleted
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return summary, err
	}
	if summary.GroupsMerged == 0 {
		s.logger.Info("no duplicates found")
	} else {
		s.logger.Info("compaction done",
			slog.Int("groups_merged", summary.GroupsMerged),
			slog.Int("contacts_deleted", summary.ContactsDeleted),
			slog.Int("failed_groups", summary.FailedGroups),
		)
	}
	return summary, nil
}

// groupByName buckets contacts by normalized name, keeping list order within
// each bucket, and drops singletons and unnamed contacts.
func groupByName(contacts []store.Contact) [][]store.Contact {
	byName := map[string][]store.Contact{}
	order := []string{}
	for _, contact := range contacts {
		key := normalize.Name(contact.Name)
		if key == "" {
			continue
		}
		if _, ok := byName[key]; !ok {
			order = append(order, key)
		}
		byName[key] = append(byName[key], contact)
	}
	groups := [][]store.Contact{}
	for _, key := range order {
		if group := byName[key]; len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// compactGroup merges one duplicate group and returns the number of deleted
// contacts. Losers are deleted only after reassignment, recount, and
// metadata merge have all committed.
func (s *Service) compactGroup(ctx context.Context, group []store.Contact) (int, error) {
	winner, losers := pickWinner(group)
	if s.RequireSharedIdentifier {
		losers = filterMergeable(winner, losers)
		if len(losers) == 0 {
			return 0, nil
		}
	}

	for _, loser := range losers {
		if _, err := s.messages.ReassignContact(ctx, loser.ID, winner.ID); err != nil {
			return 0, fmt.Errorf("reassign from %s: %w", loser.ID, err)
		}
	}

	// Self-healing recount: never trust either side's pre-merge counters.
	incoming, err := s.messages.CountByContact(ctx, winner.ID, store.DirectionIncoming)
	if err != nil {
		return 0, fmt.Errorf("recount winner: %w", err)
	}
	total, err := s.messages.CountByContact(ctx, winner.ID, "")
	if err != nil {
		return 0, fmt.Errorf("recount winner: %w", err)
	}
	winner.MessageCount = incoming
	winner.InteractionCount = total

	mergeMetadata(&winner, losers)
	if _, err := s.contacts.Update(ctx, winner); err != nil {
		return 0, fmt.Errorf("update winner: %w", err)
	}

	deleted := 0
	for _, loser := range losers {
		remaining, err := s.messages.CountByContact(ctx, loser.ID, "")
		if err != nil {
			return deleted, fmt.Errorf("verify loser %s: %w", loser.ID, err)
		}
		if remaining > 0 {
			return deleted, fmt.Errorf("loser %s still has %d messages", loser.ID, remaining)
		}
		if err := s.contacts.Delete(ctx, loser.ID); err != nil {
			return deleted, fmt.Errorf("delete loser %s: %w", loser.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// pickWinner scores every group member and splits the group into the
// highest-scoring winner and the rest.
func pickWinner(group []store.Contact) (store.Contact, []store.Contact) {
	best := 0
	for i := 1; i < len(group); i++ {
		if score(group[i]) > score(group[best]) {
			best = i
		}
	}
	losers := make([]store.Contact, 0, len(group)-1)
	for i, contact := range group {
		if i != best {
			losers = append(losers, contact)
		}
	}
	return group[best], losers
}

func score(contact store.Contact) int {
	value := contact.MessageCount * messageWeight
	if contact.HasProfile() {
		value += profileWeight
	}
	if contact.Favorite {
		value += favoriteWeight
	}
	return value
}

// mergeMetadata folds loser metadata into the winner: favorite becomes true
// if any loser is favorite; categories and profile fall back to the first
// non-empty value when the winner's own is unset; identifiers are unioned.
// Only contacts that are actually being merged may contribute; a retained
// group member must not leak its identifiers into the winner.
func mergeMetadata(winner *store.Contact, losers []store.Contact) {
	for _, member := range losers {
		if member.Favorite {
			winner.Favorite = true
		}
		if len(winner.Categories) == 0 && len(member.Categories) > 0 {
			winner.Categories = member.Categories
		}
		if !winner.HasProfile() && member.HasProfile() {
			winner.Profile = member.Profile
		}
		if winner.Company == "" && member.Company != "" {
			winner.Company = member.Company
		}
		if winner.Role == "" && member.Role != "" {
			winner.Role = member.Role
		}
		for _, phone := range member.Phones {
			if !containsKey(winner.Phones, phone, normalize.PhoneKey) {
				winner.Phones = append(winner.Phones, phone)
			}
		}
		for _, email := range member.Emails {
			if !containsKey(winner.Emails, email, normalize.Email) {
				winner.Emails = append(winner.Emails, email)
			}
		}
	}
}

// filterMergeable keeps losers sharing at least one identifier with the
// winner; losers with no identifiers at all are considered mergeable.
func filterMergeable(winner store.Contact, losers []store.Contact) []store.Contact {
	mergeable := []store.Contact{}
	for _, loser := range losers {
		if len(loser.Phones) == 0 && len(loser.Emails) == 0 {
			mergeable = append(mergeable, loser)
			continue
		}
		if sharesIdentifier(winner, loser) {
			mergeable = append(mergeable, loser)
		}
	}
	return mergeable
}

func sharesIdentifier(a, b store.Contact) bool {
	for _, phone := range a.Phones {
		if containsKey(b.Phones, phone, normalize.PhoneKey) {
			return true
		}
	}
	for _, email := range a.Emails {
		if containsKey(b.Emails, email, normalize.Email) {
			return true
		}
	}
	return false
}

func containsKey(values []string, value string, norm func(string) string) bool {
	key := norm(value)
	if key == "" {
		return false
	}
	for _, candidate := range values {
		if norm(candidate) == key {
			return true
		}
	}
	return false
}
