package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/boxlink/internal/api"
	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/boxlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/boxlink/internal/mirror"
)

// healthInterval is how often the daemon checks its components.
const healthInterval = 30 * time.Second

func runCmd(gf *globalFlags) *cobra.Command {
	var currentURL string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon and local API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, gf)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.run(ctx, currentURL)
		},
	}
	cmd.Flags().StringVar(&currentURL, "url", "", "Location that may carry a session_token from the box login page")
	return cmd
}

// run is the daemon. It starts the core and every enabled component, then
// blocks until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context, currentURL string) error {
	a.log.Info("starting boxlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	outcome, err := a.core.Init(ctx, currentURL)
	if err != nil {
		return fmt.Errorf("initialising core: %w", err)
	}
	if outcome.Kind == boxsync.OutcomeRedirect {
		// The token was captured from --url; a UI would now navigate away.
		// The daemon simply carries on with the stored token.
		a.log.Info("session token captured", "redirect", outcome.URL)
		if _, err := a.core.Init(ctx, ""); err != nil {
			return fmt.Errorf("initialising core: %w", err)
		}
	}

	components := map[string]api.HealthChecker{"database": a.db}

	var (
		auditLog audit.Repository
		setter   mirror.StateSetter = a.core
	)
	if a.cfg.API.Audit.Enabled {
		repo := a.openAudit(ctx)
		auditLog = repo
		rec := audit.NewRecorder(repo)
		rec.SetLogger(a.log.Component("audit"))
		setter = audit.NewSetter(a.core, rec, audit.SourceMQTT)
	}

	if a.cfg.MQTT.Enabled {
		stopMirror, client, err := a.startMQTTMirror(setter)
		if err != nil {
			return err
		}
		defer stopMirror()
		components["mqtt"] = client
	} else {
		a.log.Info("MQTT mirror disabled")
	}

	if a.cfg.InfluxDB.Enabled {
		stopHistory, client, err := a.startHistory()
		if err != nil {
			return err
		}
		defer stopHistory()
		components["influxdb"] = client
	} else {
		a.log.Info("InfluxDB history disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:     a.cfg.API,
			WS:         a.cfg.WebSocket,
			Logger:     a.log.Component("api"),
			Core:       a.core,
			DB:         a.db,
			Version:    version,
			Components: components,
			Audit:      auditLog,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	} else {
		a.log.Info("local API disabled")
	}

	g.Go(func() error {
		a.watchHealth(gctx, components)
		return nil
	})

	a.log.Info("initialisation complete, waiting for shutdown signal")
	err = g.Wait()
	a.log.Info("boxlink stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openAudit returns the audit log after dropping entries past retention.
// A failed prune is logged; the log still works.
func (a *app) openAudit(ctx context.Context) *audit.SQLiteRepository {
	repo := audit.NewSQLiteRepository(a.db)

	days := a.cfg.API.Audit.RetentionDays
	if days == 0 {
		return repo
	}
	n, err := repo.Prune(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		a.log.Warn("pruning audit log", "error", err)
		return repo
	}
	if n > 0 {
		a.log.Info("audit log pruned", "removed", n, "retention_days", days)
	}
	return repo
}

// startMQTTMirror connects to the broker and mirrors core events to it.
// Inbound set messages go through setter.
func (a *app) startMQTTMirror(setter mirror.StateSetter) (func(), *mqtt.Client, error) {
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(a.log.Component("mqtt"))
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", client.ClientID(),
	)

	m := mirror.NewMQTTMirror(mirror.MQTTMirrorConfig{
		Publisher:  client,
		Subscriber: client,
		Setter:     setter,
		Topics:     client.Topics(),
	})
	m.SetLogger(a.log.Component("mqtt-mirror"))
	if err := m.Start(a.core); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting MQTT mirror: %w", err)
	}

	return func() {
		m.Stop()
		a.log.Info("disconnecting from MQTT")
		if err := client.Close(); err != nil {
			a.log.Error("error closing MQTT", "error", err)
		}
	}, client, nil
}

// startHistory connects to InfluxDB and records service state changes.
func (a *app) startHistory() (func(), *influxdb.Client, error) {
	client, err := influxdb.Connect(a.cfg.InfluxDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})
	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"org", a.cfg.InfluxDB.Org,
		"bucket", a.cfg.InfluxDB.Bucket,
	)

	h := mirror.NewHistoryRecorder(client)
	h.SetLogger(a.log.Component("history"))
	if err := h.Start(a.core); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting history recorder: %w", err)
	}

	return func() {
		h.Stop()
		a.log.Info("closing InfluxDB connection")
		if err := client.Close(); err != nil {
			a.log.Error("error closing InfluxDB", "error", err)
		}
	}, client, nil
}

// watchHealth logs components whose health changes until ctx is done.
func (a *app) watchHealth(ctx context.Context, components map[string]api.HealthChecker) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	failing := make(map[string]bool, len(components))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		for name, c := range components {
			err := c.HealthCheck(cctx)
			switch {
			case err != nil && !failing[name]:
				a.log.Warn("component unhealthy", "component", name, "error", err)
				failing[name] = true
			case err == nil && failing[name]:
				a.log.Info("component recovered", "component", name)
				failing[name] = false
			}
		}
		cancel()
	}
}
