package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/everkeep/everkeep/internal/accounts"
	"github.com/everkeep/everkeep/internal/config"
	"github.com/everkeep/everkeep/internal/handlers"
	"github.com/everkeep/everkeep/internal/schedule"
	"github.com/everkeep/everkeep/internal/server"
	"github.com/everkeep/everkeep/internal/version"
)

// ServerModule wires the HTTP handlers, the Echo server, and the compaction
// scheduler lifecycle.
var ServerModule = fx.Module(
	"server",
	fx.Provide(
		asServerHandler(handlers.NewPingHandler),
		asServerHandler(provideAuthHandler),
		asServerHandler(handlers.NewContactsHandler),
		asServerHandler(handlers.NewImportsHandler),
		asServerHandler(handlers.NewSuggestionsHandler),
		asServerHandler(handlers.NewLinksHandler),
		asServerHandler(handlers.NewCompactionHandler),
		provideServer,
	),
	fx.Invoke(
		startScheduler,
		startServer,
	),
)

func asServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideAuthHandler(log *slog.Logger, accountService *accounts.Service, cfg config.Config) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, accountService, cfg.Auth.JWTSecret, expiresIn), nil
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startScheduler(lc fx.Lifecycle, scheduler *schedule.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Everkeep %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
