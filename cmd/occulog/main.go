// Occulog Core - occupancy event pipeline
//
// Occulog listens to a smart-home hub's light state changes over MQTT,
// records how long each room stayed occupied, and ships the events to a
// remote collector. A read-only HTTP API and WebSocket feed expose the
// pipeline's view of the world.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/occulog/occulog-core/migrations"

	"github.com/occulog/occulog-core/internal/api"
	"github.com/occulog/occulog-core/internal/collector"
	"github.com/occulog/occulog-core/internal/dispatch"
	"github.com/occulog/occulog-core/internal/hub"
	"github.com/occulog/occulog-core/internal/infrastructure/config"
	"github.com/occulog/occulog-core/internal/infrastructure/database"
	"github.com/occulog/occulog-core/internal/infrastructure/logging"
	"github.com/occulog/occulog-core/internal/infrastructure/mqtt"
	"github.com/occulog/occulog-core/internal/listener"
	"github.com/occulog/occulog-core/internal/recorder"
	"github.com/occulog/occulog-core/internal/registry"
	"github.com/occulog/occulog-core/internal/simulator"
	"github.com/occulog/occulog-core/internal/store"
	"github.com/occulog/occulog-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Occulog Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Settings store (recording gate + per-light state)
	settings := store.NewSQLiteRepository(db.DB)

	// Hub directory and registry
	hubClient := hub.NewClient(cfg.Hub)
	reg := registry.New(hubClient)
	reg.SetLogger(log)

	if refreshErr := reg.Refresh(ctx); refreshErr != nil {
		return fmt.Errorf("loading hub inventory: %w", refreshErr)
	}
	log.Info("hub inventory loaded", "devices", reg.DeviceCount())

	if info, infoErr := hubClient.GetSystemInfo(ctx); infoErr != nil {
		log.Warn("hub system info unavailable", "error", infoErr)
	} else {
		log.Info("hub identified",
			"name", info.Name, "hub_version", info.Version, "platform", info.Platform)
	}

	// Site timezone drives the localized event fields
	timezone, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		log.Warn("unknown site timezone, falling back to UTC",
			"timezone", cfg.Site.Timezone, "error", err)
		timezone = time.UTC
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Remote collector (optional)
	var sender recorder.Sender
	if cfg.Collector.Enabled {
		col := collector.New(cfg.Collector)
		sender = col
		log.Info("collector enabled", "url", cfg.Collector.URL, "table", col.Table())
	} else {
		log.Info("collector disabled, events will be logged only")
	}

	// Occupancy recorder
	rec := recorder.New(settings, reg, sender, timezone)
	rec.SetLogger(log)

	// InfluxDB telemetry mirror (optional)
	var telemetryClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		var telErr error
		telemetryClient, telErr = telemetry.Connect(cfg.InfluxDB)
		if telErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", telErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		rec.SetMirror(telemetryClient)
		log.Info("InfluxDB mirror connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	// Dispatcher and listener manager reference each other: the dispatcher
	// delivers to the manager, the manager enqueues into the dispatcher.
	// The HandlerFunc closure breaks the construction cycle.
	var manager *listener.Manager
	dispatcher := dispatch.New(dispatch.HandlerFunc(func(ctx context.Context, n dispatch.Notification) {
		manager.Handle(ctx, n)
	}), 0)
	dispatcher.SetLogger(log)

	qos := byte(cfg.MQTT.QoS)
	manager = listener.NewManager(mqttClient, reg, dispatcher, rec, settings, cfg.Recorder, qos)
	manager.SetLogger(log)
	if telemetryClient != nil {
		manager.SetGauge(telemetryClient)
	}

	dispatcher.Start(ctx)

	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting listeners: %w", startErr)
	}
	defer func() {
		log.Info("detaching listeners")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing listeners", "error", closeErr)
		}
	}()
	log.Info("listeners attached", "count", manager.SubscriptionCount())

	// Presence simulator
	sim := simulator.New(mqttClient, reg, cfg.Simulator, cfg.Site.Location, qos)
	sim.SetLogger(log)
	if simErr := sim.Start(ctx); simErr != nil {
		return fmt.Errorf("starting simulator: %w", simErr)
	}
	defer func() {
		if closeErr := sim.Close(); closeErr != nil {
			log.Error("error closing simulator", "error", closeErr)
		}
	}()

	// HTTP API and WebSocket feed
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Registry:   reg,
		Settings:   settings,
		Recorder:   rec,
		Listeners:  manager,
		Dispatcher: dispatcher,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	rec.SetBroadcaster(apiServer)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, simulator, listeners, InfluxDB (if enabled), MQTT, database.

	log.Info("Occulog Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OCCULOG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OCCULOG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
