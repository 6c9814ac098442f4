package cli

import (
	"context"
	"fmt"

	"github.com/relaycache/relaycache/internal/config"
	"github.com/relaycache/relaycache/internal/daemon"
	"github.com/relaycache/relaycache/internal/objdb"
	"github.com/relaycache/relaycache/internal/store"
)

// openStore opens the object database and store layer from an already
// loaded configuration, wiring the local daemon dialer to the configured Unix socket
// path when store.use_local_daemon is set.
func openStore(cfg *config.Config) (*objdb.DB, *store.Store, error) {
	db, err := objdb.Open(cfg.Store.Path, objdb.Options{CompressBlobs: cfg.Store.CompressBlobs})
	if err != nil {
		return nil, nil, fmt.Errorf("open object database: %w", err)
	}

	var dialer store.LocalDaemonDialer
	if cfg.Store.UseLocalDaemon {
		socket := cfg.Store.LocalDaemonSocket
		dialer = func(ctx context.Context) (daemon.Daemon, error) {
			return daemon.DialLocal(ctx, socket)
		}
	}

	s := store.New(db, store.Config{
		Builders: cfg.Store.Builders,
		Remotes:  cfg.Store.Remotes,
	}, dialer, newLogger())

	return db, s, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}
