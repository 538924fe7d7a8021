package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/auth"
	"github.com/mblarson/omnihome/internal/automation"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/energy"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/logging"
	"github.com/mblarson/omnihome/internal/persistence"
	"github.com/mblarson/omnihome/internal/providers"
	"github.com/mblarson/omnihome/internal/providers/tuya"
	"github.com/mblarson/omnihome/internal/voice"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceService is the device list. device.Store implements it.
type DeviceService interface {
	Devices() []device.Device
	Get(id string) (device.Device, error)
	Find(query string) (device.Device, bool)
	Stats() device.Stats
	Loaded() bool
	Rooms() []device.Room
	Update(ctx context.Context, u device.Update, source string) (device.Device, error)
	Toggle(ctx context.Context, id, source string) (device.Device, error)
	Replace(ctx context.Context, devices []device.Device, source string) error
	Create(ctx context.Context, d device.Device, source string) (device.Device, error)
	Delete(ctx context.Context, id, source string) error
	Subscribe(fn func(device.Change)) func()
}

// StorageService is the storage settings screen. persistence.Adapter
// implements it.
type StorageService interface {
	Status() persistence.Status
	UpdateConfig(ctx context.Context, cfg config.RemoteConfig) error
	ResetConfig(ctx context.Context) error
}

// ProviderService runs provider linking. providers.Linker implements it.
type ProviderService interface {
	Status() providers.Status
	ConnectAlexa(ctx context.Context) (providers.Status, error)
	CompleteAlexa(ctx context.Context, code, state string) error
	ConnectTuya(ctx context.Context, creds tuya.Credentials) (providers.Status, error)
	Disconnect() string
	Dismiss()
	Subscribe(fn func(providers.Status)) func()
}

// SceneService lists and activates scenes. automation.Engine implements it.
type SceneService interface {
	Scenes(ctx context.Context) ([]automation.Scene, error)
	Activate(ctx context.Context, id, source string) (*automation.Execution, error)
}

// VoiceService holds voice sessions. voice.Assistant implements it.
type VoiceService interface {
	Run(ctx context.Context, ep voice.Endpoint) error
	Status() voice.Status
}

// MQTTStatus reports the mirror broker connection. mqtt.Client implements
// it.
type MQTTStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies of the API server. Storage, Providers,
// Scenes, Energy, Audit, Recorder and Voice are optional; their routes
// answer 503 when absent.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Version  string

	Devices   DeviceService
	Users     auth.UserRepository
	Storage   StorageService
	Providers ProviderService
	Scenes    SceneService
	Energy    energy.Source
	Audit     audit.Repository
	Recorder  *audit.Recorder
	Voice     VoiceService

	// DB and MQTT feed /metrics. Both are optional; SetMQTT supplies the
	// broker later when it connects after the server is built.
	DB   *sql.DB
	MQTT MQTTStatus

	// Hub is shared with components that broadcast on their own, such as
	// the scene engine. A new hub is created when nil.
	Hub *Hub

	// Location is used for the dashboard greeting. Defaults to time.Local.
	Location *time.Location

	// WebUI serves the dashboard bundle for every path outside /api.
	WebUI http.Handler
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	version  string
	location *time.Location
	now      func() time.Time

	devices   DeviceService
	users     auth.UserRepository
	storage   StorageService
	providers ProviderService
	scenes    SceneService
	energy    energy.Source
	audit     audit.Repository
	recorder  *audit.Recorder
	voice     VoiceService

	hub     *Hub
	tickets *ticketGuard
	webui   http.Handler

	db        *sql.DB
	startTime time.Time
	mqttMu    sync.RWMutex
	mqtt      MQTTStatus

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
	wg     sync.WaitGroup
}

// New creates an API server. It is not listening until Start is called.
//
// Parameters:
//   - deps: Configuration, logger and services; Logger, Devices, Users and
//     a JWT secret are required
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		version:   deps.Version,
		location:  loc,
		now:       time.Now,
		devices:   deps.Devices,
		users:     deps.Users,
		storage:   deps.Storage,
		providers: deps.Providers,
		scenes:    deps.Scenes,
		energy:    deps.Energy,
		audit:     deps.Audit,
		recorder:  deps.Recorder,
		voice:     deps.Voice,
		hub:       hub,
		tickets:   newTicketGuard(),
		webui:     deps.WebUI,
		db:        deps.DB,
		startTime: time.Now(),
		mqtt:      deps.MQTT,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetMQTT sets the broker connection reported by /metrics. This is called
// after the mirror bridge connects, since the API server is created first.
//
// Parameters:
//   - m: Connected broker client; nil clears it
func (s *Server) SetMQTT(m MQTTStatus) {
	s.mqttMu.Lock()
	s.mqtt = m
	s.mqttMu.Unlock()
}

func (s *Server) mqttStatus() MQTTStatus {
	s.mqttMu.RLock()
	defer s.mqttMu.RUnlock()
	return s.mqtt
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Start serves it; tests call it directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It performs the following setup:
//  1. Relays device and provider events to the WebSocket hub
//  2. Starts the hub and the ticket cleanup loop
//  3. Launches the listener, with TLS when configured, in the background
//
// Returns:
//   - error: Reserved; listener failures are logged
func (s *Server) Start() error {
	s.watchEvents()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.tickets.cleanLoop(s.ctx)
	}()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// watchEvents forwards store and linker changes to the hub.
func (s *Server) watchEvents() {
	s.unsubs = append(s.unsubs, s.devices.Subscribe(s.broadcastDeviceChange))
	if s.providers != nil {
		s.unsubs = append(s.unsubs, s.providers.Subscribe(s.observeProvider))
	}
}

// ReportStorageError tells dashboards that the remote store rejected a
// subscription.
func (s *Server) ReportStorageError(err error) {
	if err == nil {
		return
	}
	s.hub.Broadcast(EventStorageError, map[string]string{
		"code":    persistence.ErrorCode(err),
		"message": err.Error(),
	})
}

// Close stops event relays and shuts the listener down, waiting up to
// ten seconds for in-flight requests.
func (s *Server) Close() error {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.cancel()
	s.wg.Wait()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
