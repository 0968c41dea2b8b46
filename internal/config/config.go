// Package config loads and validates the compliance platform configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the IAOS_ prefix (e.g., IAOS_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs from a config.yaml
// locally and from pure environment variables in containers.
//
// IAOS_SESSION_SECRET and IAOS_ENCRYPTION_KEY carry secrets and are never given
// defaults; the server refuses to start without the session secret.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Session       SessionConfig       `mapstructure:"session"`
	AccessCodes   AccessCodeConfig    `mapstructure:"access_codes"`
	Verification  VerificationConfig  `mapstructure:"verification"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Events        EventsConfig        `mapstructure:"events"`
	Encryption    EncryptionConfig    `mapstructure:"encryption"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PortalURL    string        `mapstructure:"portal_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional Redis connection. When Address is empty the
// session activity store and OTP attempt limiter fall back to in-process memory,
// which is only correct for a single replica.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// SessionConfig controls supplier session tokens.
type SessionConfig struct {
	Secret       string        `mapstructure:"secret"`
	Issuer       string        `mapstructure:"issuer"`
	AbsoluteTTL  time.Duration `mapstructure:"absolute_ttl"`
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	IdleWarning  time.Duration `mapstructure:"idle_warning"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieDomain string        `mapstructure:"cookie_domain"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// AccessCodeConfig controls access code generation.
type AccessCodeConfig struct {
	Length     int           `mapstructure:"length"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// VerificationConfig controls email one-time codes.
type VerificationConfig struct {
	CodeTTL        time.Duration `mapstructure:"code_ttl"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptWindow  time.Duration `mapstructure:"attempt_window"`
	Retention      time.Duration `mapstructure:"retention"`
	PurgeInterval  time.Duration `mapstructure:"purge_interval"`
}

// AdminConfig holds the bcrypt hash of the administrative API key.
type AdminConfig struct {
	APIKeyHash string `mapstructure:"api_key_hash"`
}

// StorageConfig holds storage backend configuration for file-upload answers
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	MaxUploadBytes int64              `mapstructure:"max_upload_bytes"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is optional and only needed for S3-compatible services such as MinIO.
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is "default" (AWS credential chain) or "static".
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// AuthRequestsPerMinute applies to the unauthenticated access-code endpoints.
	AuthRequestsPerMinute int `mapstructure:"auth_requests_per_minute"`
	AuthBurst             int `mapstructure:"auth_burst"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig configures where audit entries are shipped in addition to the database.
type AuditConfig struct {
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig configures a single external audit destination.
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // "webhook" or "file"
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

type AuditFileConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationsConfig controls outbound email. When disabled, messages are
// written to the log instead of being delivered.
type NotificationsConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// EventsConfig controls where domain events (such as submissions) are published.
type EventsConfig struct {
	WebhookURL  string            `mapstructure:"webhook_url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// EncryptionConfig holds the key material for sealing CUI answers at rest. Key is a
// 32-byte key in hex or base64; Passphrase+Salt derive one with PBKDF2 instead. When
// neither is set CUI answers are stored unencrypted and a warning is logged at startup.
type EncryptionConfig struct {
	Key        string `mapstructure:"key"`
	Passphrase string `mapstructure:"passphrase"`
	Salt       string `mapstructure:"salt"`
}

// bindEnvVars explicitly binds every nested key to its IAOS_ environment variable.
// AutomaticEnv alone does not apply to keys that have no default and are absent from
// the config file when Unmarshal walks the struct.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		"server.host",
		"server.port",
		"server.base_url",
		"server.portal_url",
		"server.read_timeout",
		"server.write_timeout",

		"redis.address",
		"redis.password",
		"redis.db",

		"session.secret",
		"session.issuer",
		"session.absolute_ttl",
		"session.idle_ttl",
		"session.idle_warning",
		"session.cookie_name",
		"session.cookie_domain",
		"session.cookie_secure",

		"access_codes.length",
		"access_codes.default_ttl",

		"verification.code_ttl",
		"verification.resend_cooldown",
		"verification.max_attempts",
		"verification.attempt_window",
		"verification.retention",
		"verification.purge_interval",

		"admin.api_key_hash",

		"storage.default_backend",
		"storage.max_upload_bytes",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.local.base_path",

		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.auth_requests_per_minute",
		"security.rate_limiting.auth_burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		"logging.level",
		"logging.format",

		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		"notifications.enabled",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",
		"notifications.smtp.use_tls",

		"events.webhook_url",
		"events.timeout_secs",

		"encryption.key",
		"encryption.passphrase",
		"encryption.salt",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from file (optional) and the environment, then validates it.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/iaos")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("IAOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Session.Secret = expandEnv(cfg.Session.Secret)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)
	cfg.Encryption.Key = expandEnv(cfg.Encryption.Key)
	cfg.Encryption.Passphrase = expandEnv(cfg.Encryption.Passphrase)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Watch re-reads the config file whenever it changes and passes the decoded result
// to onChange. Invalid edits are logged and ignored. Watch is a no-op when no config
// file was found.
func Watch(configPath string, onChange func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("config file changed", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.portal_url", "http://localhost:3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "iaos")
	v.SetDefault("database.user", "iaos")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.db", 0)

	v.SetDefault("session.issuer", "iaos-supplier-portal")
	v.SetDefault("session.absolute_ttl", "8h")
	v.SetDefault("session.idle_ttl", "1h")
	v.SetDefault("session.idle_warning", "5m")
	v.SetDefault("session.cookie_name", "iaos_supplier_session")
	v.SetDefault("session.cookie_secure", true)

	v.SetDefault("access_codes.length", 8)
	v.SetDefault("access_codes.default_ttl", "720h")

	v.SetDefault("verification.code_ttl", "10m")
	v.SetDefault("verification.resend_cooldown", "30s")
	v.SetDefault("verification.max_attempts", 5)
	v.SetDefault("verification.attempt_window", "15m")
	v.SetDefault("verification.retention", "24h")
	v.SetDefault("verification.purge_interval", "1h")

	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.max_upload_bytes", 25<<20)
	v.SetDefault("storage.local.base_path", "./storage")
	v.SetDefault("storage.s3.auth_method", "default")

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.rate_limiting.auth_requests_per_minute", 10)
	v.SetDefault("security.rate_limiting.auth_burst", 5)
	v.SetDefault("security.tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "iaos-supplier-portal")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.use_tls", true)

	v.SetDefault("events.timeout_secs", 10)
}

// expandEnv resolves ${VAR} references in secret values.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate checks the configuration for internally inconsistent or missing values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Session.AbsoluteTTL <= 0 {
		return fmt.Errorf("session.absolute_ttl must be positive")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("session.idle_ttl must be positive")
	}
	if c.Session.IdleTTL > c.Session.AbsoluteTTL {
		return fmt.Errorf("session.idle_ttl (%s) cannot exceed session.absolute_ttl (%s)", c.Session.IdleTTL, c.Session.AbsoluteTTL)
	}
	if c.Session.IdleWarning < 0 || c.Session.IdleWarning >= c.Session.IdleTTL {
		return fmt.Errorf("session.idle_warning must be between 0 and session.idle_ttl")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}

	if c.AccessCodes.Length < 8 || c.AccessCodes.Length > 12 {
		return fmt.Errorf("access_codes.length must be between 8 and 12, got %d", c.AccessCodes.Length)
	}
	if c.AccessCodes.DefaultTTL <= 0 {
		return fmt.Errorf("access_codes.default_ttl must be positive")
	}

	if c.Verification.CodeTTL < time.Minute || c.Verification.CodeTTL > time.Hour {
		return fmt.Errorf("verification.code_ttl must be between 1m and 60m, got %s", c.Verification.CodeTTL)
	}
	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("verification.max_attempts must be at least 1")
	}
	if c.Verification.AttemptWindow <= 0 {
		return fmt.Errorf("verification.attempt_window must be positive")
	}

	validBackends := map[string]bool{"s3": true, "local": true}
	if !validBackends[c.Storage.DefaultBackend] {
		return fmt.Errorf("invalid storage backend: %s (must be s3 or local)", c.Storage.DefaultBackend)
	}
	if c.Storage.DefaultBackend == "s3" {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	}
	if c.Storage.DefaultBackend == "local" && c.Storage.Local.BasePath == "" {
		return fmt.Errorf("storage.local.base_path is required when using local backend")
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	if c.Notifications.Enabled {
		if c.Notifications.SMTP.Host == "" {
			return fmt.Errorf("notifications.smtp.host is required when notifications are enabled")
		}
		if c.Notifications.SMTP.From == "" {
			return fmt.Errorf("notifications.smtp.from is required when notifications are enabled")
		}
	}

	if c.Encryption.Passphrase != "" && len(c.Encryption.Salt) < 16 {
		return fmt.Errorf("encryption.salt must be at least 16 characters when encryption.passphrase is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the host:port the HTTP server listens on.
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
