// Package schedule runs the periodic compaction job.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/everkeep/everkeep/internal/compactor"
)

// Compactor is the slice of the compaction service the scheduler needs.
type Compactor interface {
	Run(ctx context.Context) (compactor.Summary, error)
}

// Service owns the cron instance and the single compaction entry. An empty
// pattern disables scheduling; Trigger still works for manual runs.
type Service struct {
	cron      *cron.Cron
	parser    cron.Parser
	compactor Compactor
	pattern   string
	logger    *slog.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewService builds the scheduler. pattern uses standard cron syntax with an
// optional seconds field, or a descriptor like "@daily".
func NewService(log *slog.Logger, compactor Compactor, pattern string) *Service {
	if log == nil {
		log = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:      cron.New(cron.WithParser(parser)),
		parser:    parser,
		compactor: compactor,
		pattern:   pattern,
		logger:    log.With(slog.String("service", "schedule")),
	}
}

// Start registers the compaction entry and starts the cron loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pattern == "" {
		s.logger.Info("compaction schedule disabled")
		return nil
	}
	if _, err := s.parser.Parse(s.pattern); err != nil {
		return fmt.Errorf("invalid cron pattern %q: %w", s.pattern, err)
	}
	entryID, err := s.cron.AddFunc(s.pattern, func() {
		s.runOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("register compaction job: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true
	s.logger.Info("compaction scheduled", slog.String("pattern", s.pattern))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger runs one compaction pass immediately.
func (s *Service) Trigger(ctx context.Context) (compactor.Summary, error) {
	return s.compactor.Run(ctx)
}

func (s *Service) runOnce(ctx context.Context) {
	summary, err := s.compactor.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled compaction failed", slog.Any("error", err))
		return
	}
	s.logger.Info("scheduled compaction finished",
		slog.Int("groups_merged", summary.GroupsMerged),
		slog.Int("contacts_deleted", summary.ContactsDeleted),
		slog.Int("failed_groups", summary.FailedGroups),
	)
}
