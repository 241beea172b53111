package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/responder"
	"github.com/soyeahso/parley/internal/session"
	"github.com/soyeahso/parley/internal/store"
)

// buildCoordinator assembles the store, responder, and coordinator from
// config. The returned cleanup releases the store.
func buildCoordinator(cfg config.Config) (*session.Coordinator, func(), error) {
	if issues := config.Validate(&cfg); len(issues) > 0 {
		return nil, nil, fmt.Errorf("invalid config: %s", issues[0])
	}
	if cfg.Responder.Endpoint == "" {
		return nil, nil, fmt.Errorf("responder.endpoint is not configured (set it in %s or via PARLEY_RESPONDER_ENDPOINT)", paths.Config)
	}

	var (
		msgStore session.MessageStore
		cleanup  = func() {}
	)

	switch cfg.Storage.Driver {
	case "memory":
		msgStore = store.NewMemoryMessageStore()
	default:
		dbPath := cfg.Storage.Path
		if dbPath == "" {
			dbPath = paths.Database
		}
		db, err := store.Open(dbPath, log)
		if err != nil {
			return nil, nil, err
		}
		msgStore = store.NewSQLiteMessageStore(db)
		cleanup = func() { db.Close() }
	}

	resp := responder.NewHTTPResponder(
		cfg.Responder.Endpoint,
		cfg.Responder.APIKey,
		time.Duration(cfg.Responder.TimeoutSeconds)*time.Second,
	)

	coord := session.New(session.Config{Greeting: cfg.Session.Greeting}, msgStore, resp, log)
	return coord, cleanup, nil
}
