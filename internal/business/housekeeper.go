package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/config"
)

// HousekeeperMain starts the house keeping jobs
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	backend, err := initSessionBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the session store: %w", err)
	}
	defer backend.close()

	return housekeep(ctx, cfg, backend)
}

func housekeep(ctx context.Context, cfg *config.Config, backend *sessionBackend) error {
	interval := cfg.Housekeeper.TriggerInterval
	if interval <= 0 {
		interval = time.Hour
	}

	c := time.Tick(interval)
	for {
		if err := sweep(ctx, backend); err != nil {
			slogctx.Error(ctx, "Error during session housekeeping", "error", err)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}

// sweep drops expired server-side sessions. Valkey expires keys itself, so
// only the live sessions are counted there.
func sweep(ctx context.Context, backend *sessionBackend) error {
	switch {
	case backend.postgres != nil:
		n, err := backend.postgres.DeleteExpired(ctx)
		if err != nil {
			return fmt.Errorf("deleting expired sessions: %w", err)
		}

		slogctx.Info(ctx, "Deleted expired sessions", "count", n)
	case backend.memory != nil:
		n := backend.memory.DeleteExpired()
		slogctx.Info(ctx, "Deleted expired sessions", "count", n, "live", backend.memory.Len())
	case backend.valkey != nil:
		sessions, err := backend.valkey.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		slogctx.Info(ctx, "Counted live sessions", "live", len(sessions))
	default:
		slogctx.Debug(ctx, "Nothing to clean up for cookie sessions")
	}

	return nil
}
