package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/tradelens/backend/internal/cache"
	"github.com/tradelens/backend/internal/client"
	"github.com/tradelens/backend/internal/config"
	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/services"
	"github.com/tradelens/backend/internal/session"
	"github.com/tradelens/backend/internal/store"
	"github.com/tradelens/backend/internal/transport"
)

// app is everything one CLI invocation needs.
type app struct {
	cfg      *config.Config
	store    store.Store
	backuper store.Backuper // nil when the engine could not be opened
	provider services.Provider
	session  *session.Controller
	closers  []func() error
}

// newApp wires the store, the fallback cache and the model, then starts the
// session. A store that cannot be reached leaves the session degraded rather
// than failing the command.
func newApp(ctx context.Context, onChange func(session.State)) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Initialize(logger.Options{Level: cfg.LogLevel, Dir: cfg.LogDir, ToFile: true})

	a := &app{cfg: cfg}
	a.openStore()

	var fallback session.FallbackCache
	if fc, err := cache.Open(cfg.CachePath); err != nil {
		logger.WithError(err, "cli").Warn("Fallback cache unavailable")
	} else {
		fallback = fc
		a.closers = append(a.closers, fc.Close)
	}

	a.provider, err = services.NewProvider(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.session = session.New(session.Options{
		Store:    a.store,
		Cache:    fallback,
		Analyzer: a.provider,
		Chatter:  a.provider,
		OnChange: onChange,
	})
	if a.session.Start(ctx) == session.ModeDegraded {
		fmt.Fprintln(os.Stderr, "warning: store unreachable, working from the local cache")
	}
	return a, nil
}

func (a *app) openStore() {
	cfg := a.cfg
	if cfg.StoreURL != "" {
		c := client.New(cfg.StoreURL, transport.New(transport.Config{
			Timeout:   cfg.StoreTimeout,
			Attempts:  cfg.StoreAttempts,
			BaseDelay: cfg.StoreRetryInterval,
		}))
		a.store, a.backuper = c, c
		return
	}

	database, err := db.Open(cfg)
	if err == nil {
		err = database.AutoMigrate()
		if err != nil {
			database.Close()
		}
	}
	if err != nil {
		logger.WithError(err, "cli").Error("Could not open store engine")
		a.store = store.Unavailable(err)
		return
	}

	s := store.NewDBStore(database)
	s.BackupDir = cfg.BackupDir
	a.store, a.backuper = s, s
	a.closers = append(a.closers, database.Close)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.WithError(err, "cli").Warn("Close failed")
		}
	}
	a.closers = nil
}

// selectFile selects id, accepting any unique prefix of a file id.
func (a *app) selectFile(ctx context.Context, id string) (string, error) {
	full, err := resolveFileID(a.session.Snapshot().Files, id)
	if err != nil {
		return "", err
	}
	return full, a.session.Select(ctx, full)
}
