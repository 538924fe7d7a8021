package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PlaceholderAPIKey is the value shipped in sample configuration files.
// A remote store configured with it is treated as unconfigured.
const PlaceholderAPIKey = "YOUR_API_KEY_HERE"

// Config is the root configuration structure for OmniHome Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains household information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// DashboardDir is a built dashboard bundle served at /. Empty serves
	// the API only.
	DashboardDir string `yaml:"dashboard_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// StorageConfig selects where device records live.
type StorageConfig struct {
	// OverrideKey is the settings key holding a user-supplied remote config.
	OverrideKey string       `yaml:"override_key"`
	Remote      RemoteConfig `yaml:"remote"`
}

// RemoteConfig describes the remote document database (Firestore).
// Remote mode is used only when Valid reports true.
type RemoteConfig struct {
	ProjectID       string `yaml:"project_id" json:"project_id"`
	DatabaseID      string `yaml:"database_id" json:"database_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file,omitempty"`
	APIKey          string `yaml:"api_key" json:"api_key,omitempty"`
	EmulatorHost    string `yaml:"emulator_host" json:"emulator_host,omitempty"`
}

// Valid reports whether the remote configuration is complete enough to connect.
func (r RemoteConfig) Valid() bool {
	if r.ProjectID == "" {
		return false
	}
	if r.APIKey == PlaceholderAPIKey {
		return false
	}
	return r.APIKey != "" || r.CredentialsFile != "" || r.EmulatorHost != ""
}

// Masked returns a copy safe to expose over the API.
func (r RemoteConfig) Masked() RemoteConfig {
	out := r
	if out.APIKey != "" {
		out.APIKey = mask(out.APIKey)
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// ProvidersConfig contains third-party hub settings.
type ProvidersConfig struct {
	Alexa AlexaConfig `yaml:"alexa"`
	Tuya  TuyaConfig  `yaml:"tuya"`
}

// AlexaConfig contains Login with Amazon settings.
// With an empty ClientSecret the link flow runs in simulated mode.
type AlexaConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	PollDelayMS  int    `yaml:"poll_delay_ms"`
	SyncDelayMS  int    `yaml:"sync_delay_ms"`
}

// TuyaConfig contains Tuya IoT cloud settings.
type TuyaConfig struct {
	Region       string `yaml:"region"`
	BaseURL      string `yaml:"base_url"`
	AccessID     string `yaml:"access_id"`
	AccessSecret string `yaml:"access_secret"`
	Timeout      int    `yaml:"timeout"`
	SyncDelayMS  int    `yaml:"sync_delay_ms"`
}

// VoiceConfig contains live voice session settings.
type VoiceConfig struct {
	Enabled          bool   `yaml:"enabled"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	VoiceName        string `yaml:"voice_name"`
	InputSampleRate  int    `yaml:"input_sample_rate"`
	OutputSampleRate int    `yaml:"output_sample_rate"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT   JWTConfig   `yaml:"jwt"`
	Admin AdminConfig `yaml:"admin"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// AdminConfig describes the household account created on first start.
type AdminConfig struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OMNIHOME_SECTION_KEY
// For example: OMNIHOME_DATABASE_PATH, OMNIHOME_TUYA_ACCESS_ID
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home-001",
			Name:     "OmniHome",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/omnihome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "omnihome",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "omnihome-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "omnihome",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			OverrideKey: "omnihome_firebase_config",
		},
		Providers: ProvidersConfig{
			Alexa: AlexaConfig{
				ClientID:    "amzn1.application-oa2-client.YOUR_CLIENT_ID",
				RedirectURL: "http://localhost:8080/api/v1/providers/alexa/callback",
				PollDelayMS: 3000,
				SyncDelayMS: 1500,
			},
			Tuya: TuyaConfig{
				Region:      "us",
				Timeout:     10,
				SyncDelayMS: 1500,
			},
		},
		Voice: VoiceConfig{
			Enabled:          true,
			Model:            "gemini-2.5-flash-native-audio-preview-12-2025",
			VoiceName:        "Kore",
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			Admin: AdminConfig{
				Username:    "admin",
				DisplayName: "Alex Doe",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OMNIHOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("OMNIHOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OMNIHOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OMNIHOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("OMNIHOME_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("OMNIHOME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("OMNIHOME_FIRESTORE_PROJECT_ID"); v != "" {
		cfg.Storage.Remote.ProjectID = v
	}
	if v := os.Getenv("OMNIHOME_FIRESTORE_API_KEY"); v != "" {
		cfg.Storage.Remote.APIKey = v
	}
	if v := os.Getenv("OMNIHOME_FIRESTORE_CREDENTIALS"); v != "" {
		cfg.Storage.Remote.CredentialsFile = v
	}
	if v := os.Getenv("FIRESTORE_EMULATOR_HOST"); v != "" && cfg.Storage.Remote.EmulatorHost == "" {
		cfg.Storage.Remote.EmulatorHost = v
	}

	if v := os.Getenv("OMNIHOME_ALEXA_CLIENT_ID"); v != "" {
		cfg.Providers.Alexa.ClientID = v
	}
	if v := os.Getenv("OMNIHOME_ALEXA_CLIENT_SECRET"); v != "" {
		cfg.Providers.Alexa.ClientSecret = v
	}
	if v := os.Getenv("OMNIHOME_TUYA_ACCESS_ID"); v != "" {
		cfg.Providers.Tuya.AccessID = v
	}
	if v := os.Getenv("OMNIHOME_TUYA_ACCESS_SECRET"); v != "" {
		cfg.Providers.Tuya.AccessSecret = v
	}

	// The voice key falls back to the variable name used by the Gemini tooling.
	if v := os.Getenv("OMNIHOME_VOICE_API_KEY"); v != "" {
		cfg.Voice.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Voice.APIKey == "" {
		cfg.Voice.APIKey = v
	}

	if v := os.Getenv("OMNIHOME_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("OMNIHOME_ADMIN_PASSWORD"); v != "" {
		cfg.Security.Admin.Password = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Storage.OverrideKey == "" {
		errs = append(errs, "storage.override_key is required")
	}

	if c.Voice.InputSampleRate <= 0 || c.Voice.OutputSampleRate <= 0 {
		errs = append(errs, "voice sample rates must be positive")
	}

	switch c.Providers.Tuya.Region {
	case "us", "eu", "cn", "in", "weu", "ueaz":
	default:
		if c.Providers.Tuya.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("providers.tuya.region %q is not supported", c.Providers.Tuya.Region))
		}
	}

	// Tokens protect door locks and cameras; a short secret lets anyone forge one.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set OMNIHOME_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Millis converts a millisecond setting to a Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
