package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/everkeep/everkeep/internal/accounts"
	"github.com/everkeep/everkeep/internal/compactor"
	"github.com/everkeep/everkeep/internal/config"
	"github.com/everkeep/everkeep/internal/linker"
	"github.com/everkeep/everkeep/internal/resolve"
	"github.com/everkeep/everkeep/internal/schedule"
	"github.com/everkeep/everkeep/internal/store"
)

// DomainModule wires the identity-resolution services on top of the stores.
var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideAccounts,
		provideResolver,
		linker.NewService,
		provideCompactor,
		provideScheduler,
	),
)

func provideAccounts(log *slog.Logger, cfg config.Config) (*accounts.Service, error) {
	return accounts.NewService(log, cfg.Admin)
}

func provideResolver(log *slog.Logger, contacts store.ContactStore, messages store.MessageStore, suggestions store.SuggestionStore, cfg config.Config) *resolve.Service {
	return resolve.NewService(log, contacts, messages, suggestions, cfg.Import.ChunkSize)
}

func provideCompactor(log *slog.Logger, contacts store.ContactStore, messages store.MessageStore, cfg config.Config) *compactor.Service {
	svc := compactor.NewService(log, contacts, messages, cfg.Compaction.Workers)
	svc.RequireSharedIdentifier = cfg.Compaction.RequireSharedIdentifier
	return svc
}

func provideScheduler(log *slog.Logger, compactorService *compactor.Service, cfg config.Config) *schedule.Service {
	return schedule.NewService(log, compactorService, cfg.Compaction.Schedule)
}
