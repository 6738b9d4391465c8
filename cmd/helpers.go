package cmd

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/glados/internal/config"
	"github.com/ziadkadry99/glados/internal/core"
	"github.com/ziadkadry99/glados/internal/db"
	"github.com/ziadkadry99/glados/internal/interactions"
	"github.com/ziadkadry99/glados/internal/logging"
	"github.com/ziadkadry99/glados/internal/plugins"
	"github.com/ziadkadry99/glados/plugins/example"
)

// loadConfig reads and validates the config file and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logging.Setup(level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// modules lists every plugin module compiled into this binary.
func modules() (*plugins.Registry, error) {
	reg := plugins.NewRegistry()
	if err := example.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// openDatabase opens the configured interaction datastore. It returns nil
// for driver none.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	switch cfg.Datastore.Driver {
	case config.DriverSQLite:
		return db.Open(cfg.Datastore.DSN)
	case config.DriverPostgres:
		return db.OpenPostgres(cfg.Datastore.DSN)
	default:
		return nil, nil
	}
}

// app is a configured orchestrator and the resources it holds.
type app struct {
	cfg     *config.Config
	glados  *core.Glados
	db      *db.DB
	entries []plugins.Entry
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// newApp builds the orchestrator from cfg: it opens the datastore, imports
// bots when configured, and imports plugins when withPlugins is set.
func newApp(ctx context.Context, cfg *config.Config, withPlugins bool) (*app, error) {
	mods, err := modules()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if a.db, err = openDatabase(cfg); err != nil {
		return nil, fmt.Errorf("opening %s datastore: %w", cfg.Datastore.Driver, err)
	}

	opts := core.Options{
		PluginsFolder:       cfg.PluginsFolder,
		PluginsConfigFolder: cfg.PluginsConfigFolder,
		BotsConfigFolder:    cfg.BotsConfigFolder,
		SecretKeyEnv:        cfg.SecretKeyEnv,
		APITimeout:          cfg.APITimeout,
		Modules:             mods,
	}
	if a.db != nil {
		opts.Store = interactions.NewStore(a.db)
	}
	a.glados = core.New(opts)

	if cfg.ImportBots {
		if err := a.glados.ImportBots(); err != nil {
			a.Close()
			return nil, err
		}
	}

	if withPlugins {
		a.entries, err = a.glados.ImportPlugins(ctx, cfg.TargetBot)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}
