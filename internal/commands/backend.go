package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulheiniger/storm-event-leads/internal/adapter/memstore"
	"github.com/paulheiniger/storm-event-leads/internal/adapter/postgis"
	"github.com/paulheiniger/storm-event-leads/internal/config"
	"github.com/paulheiniger/storm-event-leads/internal/pipeline"
)

// backend is a spatial store that also keeps the run log.
type backend interface {
	pipeline.Store
	pipeline.RunLog
}

// openBackend connects the store selected by STORE_BACKEND. The returned
// cleanup must be called once the run is over.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store; outputs and run log are lost on exit")
		return memstore.New(), func() {}, nil
	default:
		store, err := postgis.New(ctx, cfg.DatabaseURL, cfg.Catalog.Schema, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgis: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrating schema: %w", err)
		}
		return store, store.Close, nil
	}
}
