package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/mblarson/omnihome/internal/api"
	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/auth"
	"github.com/mblarson/omnihome/internal/automation"
	"github.com/mblarson/omnihome/internal/bridges/mirror"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/energy"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/database"
	"github.com/mblarson/omnihome/internal/infrastructure/influxdb"
	"github.com/mblarson/omnihome/internal/infrastructure/logging"
	"github.com/mblarson/omnihome/internal/infrastructure/mqtt"
	"github.com/mblarson/omnihome/internal/persistence"
	"github.com/mblarson/omnihome/internal/providers"
	"github.com/mblarson/omnihome/internal/providers/alexa"
	"github.com/mblarson/omnihome/internal/providers/tuya"
	"github.com/mblarson/omnihome/internal/voice"
	"github.com/mblarson/omnihome/internal/webui"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.configPath)
		},
	}
}

// run starts every component and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting OmniHome Core", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		log.Warn("unknown site timezone, using local time", "timezone", cfg.Site.Timezone, "error", err)
		loc = time.Local
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	adapter, err := persistence.New(ctx, persistence.Options{
		Local:       device.NewSQLiteRepository(db.DB),
		Settings:    persistence.NewSettingsRepository(db.DB),
		Defaults:    cfg.Storage.Remote,
		OverrideKey: cfg.Storage.OverrideKey,
		Logger:      log.Component("persistence"),
	})
	if err != nil {
		return fmt.Errorf("creating persistence adapter: %w", err)
	}
	defer func() {
		if closeErr := adapter.Close(); closeErr != nil {
			log.Error("error closing remote store", "error", closeErr)
		}
	}()
	log.Info("storage ready", "mode", adapter.Mode())

	// The API server reports mirror failures, but it needs the store first.
	var reportMu sync.Mutex
	var report func(error)
	reportStorageError := func(err error) {
		reportMu.Lock()
		fn := report
		reportMu.Unlock()
		if fn != nil {
			fn(err)
		}
	}

	store := device.NewStore(adapter,
		device.WithLogger(log.Component("device-store")),
		device.WithMirrorErrorHandler(reportStorageError),
	)
	defer store.Wait()

	// Users and the audit trail.
	users := auth.NewUserRepository(db.DB)
	if _, err := auth.Seed(ctx, users, cfg.Security.Admin, log.Component("auth")); err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log.Component("audit"))
	defer recorder.Close()
	store.Subscribe(recorder.ObserveDevices)

	// Provider linking.
	linker := newLinker(cfg, store, adapter, log)
	defer linker.Close()
	store.AddActuator(linker)
	if restoreErr := linker.Restore(ctx); restoreErr != nil {
		log.Warn("restoring provider link failed", "error", restoreErr)
	}

	// Energy metering (optional).
	var energySource energy.Source = energy.StaticSource{}
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled, serving the static energy curve")
		influxClient = nil
	case err != nil:
		log.Warn("InfluxDB unavailable, serving the static energy curve", "error", err)
		influxClient = nil
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		store.Subscribe(energy.NewMeter(influxClient).Observe)
		energySource = energy.NewInfluxSource(influxClient, loc, log.Component("energy"))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Scenes share the API hub for activation events.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	sceneRepo := automation.NewSQLiteRepository(db.DB)
	if n, seedErr := automation.SeedDefaults(ctx, sceneRepo); seedErr != nil {
		log.Warn("seeding default scenes failed", "error", seedErr)
	} else if n > 0 {
		log.Info("default scenes created", "count", n)
	}
	engine := automation.NewEngine(sceneRepo, store, hub, log.Component("automation"))

	var assistant api.VoiceService
	if cfg.Voice.Enabled {
		assistant = voice.NewAssistant(voice.GenAIDialer{
			APIKey:          cfg.Voice.APIKey,
			Model:           cfg.Voice.Model,
			VoiceName:       cfg.Voice.VoiceName,
			InputSampleRate: cfg.Voice.InputSampleRate,
		}, store, log.Component("voice"))
	}

	var ui http.Handler
	if dir := cfg.API.DashboardDir; dir != "" {
		fsys, uiErr := webui.Dir(dir)
		if uiErr != nil {
			log.Warn("dashboard bundle unavailable, serving the API only", "dir", dir, "error", uiErr)
		} else {
			ui = webui.Handler(fsys)
			log.Info("serving dashboard bundle", "dir", dir)
		}
	}

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Version:   version,
		Devices:   store,
		Users:     users,
		Storage:   adapter,
		Providers: linker,
		Scenes:    engine,
		Energy:    energySource,
		Audit:     auditRepo,
		Recorder:  recorder,
		Voice:     assistant,
		Hub:       hub,
		Location:  loc,
		WebUI:     ui,
		DB:        db.DB,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	reportMu.Lock()
	report = srv.ReportStorageError
	reportMu.Unlock()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	syncer := persistence.NewSyncer(adapter, store, srv.ReportStorageError, log.Component("syncer"))
	g.Go(func() error { return syncer.Run(gctx) })

	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		log.Info("configuration file changed, applying storage settings")
		adapter.Reconfigure(gctx, next.Storage.Remote)
	}, func(err error) {
		log.Warn("configuration reload failed", "error", err)
	})
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil {
			log.Warn("config watcher stopped, storage settings will not hot-reload", "error", err)
		}
		return nil
	})

	mqttClient, err := startMirror(gctx, g, cfg, store, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		srv.SetMQTT(mqttClient)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("OmniHome Core stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func newLinker(cfg *config.Config, store *device.Store, adapter *persistence.Adapter, log *logging.Logger) *providers.Linker {
	tuyaCfg := cfg.Providers.Tuya
	httpClient := &http.Client{Timeout: time.Duration(tuyaCfg.Timeout) * time.Second}
	tuyaLog := log.Component("tuya")

	return providers.NewLinker(providers.Options{
		Alexa: alexa.NewClient(alexa.Config{
			OAuth: oauth2.Config{
				ClientID:     cfg.Providers.Alexa.ClientID,
				ClientSecret: cfg.Providers.Alexa.ClientSecret,
				RedirectURL:  cfg.Providers.Alexa.RedirectURL,
			},
			PollDelay: config.Millis(cfg.Providers.Alexa.PollDelayMS),
			SyncDelay: config.Millis(cfg.Providers.Alexa.SyncDelayMS),
		}),
		DialTuya: func(creds tuya.Credentials) (providers.TuyaAccount, error) {
			if creds.AccessID == "" && creds.AccessSecret == "" {
				creds.AccessID, creds.AccessSecret = tuyaCfg.AccessID, tuyaCfg.AccessSecret
			}
			if creds.Region == "" {
				creds.Region = tuyaCfg.Region
			}
			c, err := tuya.NewConnector(creds, tuya.Options{
				BaseURL:    tuyaCfg.BaseURL,
				HTTPClient: httpClient,
				SyncDelay:  config.Millis(tuyaCfg.SyncDelayMS),
				Logger:     tuyaLog,
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Importer:    store,
		Credentials: adapter,
		Logger:      log.Component("providers"),
	})
}

// startMirror connects to MQTT and runs the state mirror. A disabled
// broker returns a nil client; an unreachable one is logged and skipped.
func startMirror(ctx context.Context, g *errgroup.Group, cfg *config.Config, store *device.Store, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if errors.Is(err, mqtt.ErrDisabled) {
		log.Info("MQTT disabled")
		return nil, nil
	}
	if err != nil {
		log.Warn("MQTT unavailable, state mirror disabled", "error", err)
		return nil, nil
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() { log.Info("MQTT connected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

	bridge := mirror.New(client, store, log.Component("mirror"))
	store.Subscribe(bridge.Observe)
	g.Go(func() error { return bridge.Run(ctx) })

	log.Info("MQTT state mirror started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"prefix", client.Topics().Prefix(),
	)
	return client, nil
}

// healthCheck verifies the required connections. Optional components are
// skipped when nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
