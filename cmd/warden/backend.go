package main

import (
	"fmt"

	"tangled.org/studyhub.social/warden/internal/config"
	"tangled.org/studyhub.social/warden/internal/database/boltstore"
	"tangled.org/studyhub.social/warden/internal/database/sqlitestore"
	"tangled.org/studyhub.social/warden/internal/filter"
	"tangled.org/studyhub.social/warden/internal/moderation"
	"tangled.org/studyhub.social/warden/internal/reputation"

	"github.com/rs/zerolog/log"
)

// backend bundles the stores of one storage engine.
type backend struct {
	moderation moderation.Store
	reputation reputation.Store
	terms      filter.TermStore
	notifier   moderation.Notifier
	close      func() error
}

func openBackend(cfg config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("SQLite store opened")
		return &backend{
			moderation: db.ModerationStore(),
			reputation: db.ReputationStore(),
			terms:      db.TermStore(),
			notifier:   db.NotificationStore(),
			close:      db.Close,
		}, nil
	case config.BackendBolt:
		store, err := boltstore.Open(boltstore.Options{Path: cfg.BoltPath})
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		log.Info().Str("path", cfg.BoltPath).Msg("BoltDB store opened")
		return &backend{
			moderation: store.ModerationStore(),
			reputation: store.ReputationStore(),
			terms:      store.TermStore(),
			notifier:   store.NotificationStore(),
			close:      store.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
