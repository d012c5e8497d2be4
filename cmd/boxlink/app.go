package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/discovery"
	"github.com/nerrad567/boxlink/internal/infrastructure/config"
	"github.com/nerrad567/boxlink/internal/infrastructure/database"
	"github.com/nerrad567/boxlink/internal/infrastructure/logging"
	"github.com/nerrad567/boxlink/internal/store"
	"github.com/nerrad567/boxlink/internal/transport"
	"github.com/nerrad567/boxlink/migrations"
)

// app holds the components every command needs: config, logger, the
// SQLite stores, and a core wired to them.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	db        *database.DB
	settings  *store.SettingsStore
	cache     *store.SQLiteCache
	transport *transport.HTTPTransport
	discovery *discovery.MDNSProvider
	core      *boxsync.Core
}

// bootstrap loads configuration and builds the app. The caller owns the
// returned app and must Close it.
func bootstrap(ctx context.Context, gf *globalFlags) (*app, error) {
	configPath := getConfigPath(gf.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if gf.logLevel != "" {
		cfg.Logging.Level = gf.logLevel
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", configPath)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	applied, err := a.db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if applied > 0 {
		a.log.Info("database migrations applied", "count", applied, "path", a.db.Path())
	}

	a.settings = store.NewSettingsStore(a.db)
	a.cache = store.NewSQLiteCache(a.db)

	// Config values seed settings; values changed at runtime win.
	if err := a.settings.SetDefaults(ctx, settingDefaults(a.cfg)); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}

	a.transport = transport.New(transport.Config{
		BinaryMediaType:    a.cfg.Hub.BinaryMediaType,
		InsecureSkipVerify: a.cfg.Hub.InsecureSkipVerify,
	})
	a.transport.SetLogger(a.log.Component("transport"))

	deps := boxsync.Deps{
		Settings:  a.settings,
		Cache:     a.cache,
		Transport: a.transport,
		Logger:    a.log.Component("boxsync"),
		Options: boxsync.Options{
			RequestTimeout:  a.cfg.Hub.RequestTimeout,
			PollingInterval: a.cfg.Polling.Interval,
			APIVersion:      a.cfg.Hub.APIVersion,
			ServiceType:     a.cfg.Discovery.ServiceType,
			StaticOrigin:    a.cfg.Hub.Origin,
		},
	}
	if a.cfg.Discovery.Enabled {
		a.discovery = discovery.NewMDNSProvider(discovery.Config{Interface: a.cfg.Discovery.Interface})
		a.discovery.SetLogger(a.log.Component("discovery"))
		deps.Discovery = a.discovery
	}

	a.core, err = boxsync.New(deps)
	if err != nil {
		return fmt.Errorf("creating core: %w", err)
	}
	return nil
}

func settingDefaults(cfg *config.Config) map[string]string {
	return map[string]string{
		boxsync.SettingAPIVersion:      strconv.Itoa(cfg.Hub.APIVersion),
		boxsync.SettingPollingInterval: cfg.Polling.Interval.String(),
		boxsync.SettingPollingEnabled:  strconv.FormatBool(cfg.Polling.Enabled),
	}
}

// Close stops the core, waits for discovery and closes the database.
func (a *app) Close() error {
	if a.core != nil {
		a.core.Close()
	}
	if a.discovery != nil {
		a.discovery.Wait()
	}
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
