package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "iaos",
				Password: "secret",
				Name:     "iaos",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=iaos password=secret dbname=iaos sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.internal",
				Port:    5433,
				User:    "portal",
				Name:    "compliance",
				SSLMode: "disable",
			},
			want: "host=db.internal port=5433 user=portal password= dbname=compliance sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetDSN(); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "iaos",
			User: "iaos",
		},
		Session: SessionConfig{
			AbsoluteTTL: 8 * time.Hour,
			IdleTTL:     time.Hour,
			IdleWarning: 5 * time.Minute,
			CookieName:  "iaos_supplier_session",
		},
		AccessCodes: AccessCodeConfig{Length: 8, DefaultTTL: 720 * time.Hour},
		Verification: VerificationConfig{
			CodeTTL:       10 * time.Minute,
			MaxAttempts:   5,
			AttemptWindow: 15 * time.Minute,
		},
		Storage: StorageConfig{
			DefaultBackend: "local",
			Local:          LocalStorageConfig{BasePath: "./storage"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid server port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing base_url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"zero absolute ttl", func(c *Config) { c.Session.AbsoluteTTL = 0 }, "session.absolute_ttl"},
		{"idle longer than absolute", func(c *Config) { c.Session.IdleTTL = 9 * time.Hour }, "cannot exceed"},
		{"warning longer than idle", func(c *Config) { c.Session.IdleWarning = 2 * time.Hour }, "session.idle_warning"},
		{"access code too short", func(c *Config) { c.AccessCodes.Length = 6 }, "access_codes.length"},
		{"access code too long", func(c *Config) { c.AccessCodes.Length = 13 }, "access_codes.length"},
		{"otp ttl too short", func(c *Config) { c.Verification.CodeTTL = 10 * time.Second }, "verification.code_ttl"},
		{"otp ttl too long", func(c *Config) { c.Verification.CodeTTL = 2 * time.Hour }, "verification.code_ttl"},
		{"no attempts", func(c *Config) { c.Verification.MaxAttempts = 0 }, "verification.max_attempts"},
		{"unknown backend", func(c *Config) { c.Storage.DefaultBackend = "gcs" }, "invalid storage backend"},
		{"s3 without bucket", func(c *Config) {
			c.Storage.DefaultBackend = "s3"
			c.Storage.S3.Region = "us-east-1"
		}, "storage.s3.bucket"},
		{"tls without cert", func(c *Config) { c.Security.TLS.Enabled = true }, "cert_file"},
		{"smtp without host", func(c *Config) { c.Notifications.Enabled = true }, "notifications.smtp.host"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
		{"passphrase without salt", func(c *Config) { c.Encryption.Passphrase = "pw" }, "encryption.salt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestRedisConfig_Enabled(t *testing.T) {
	if (RedisConfig{}).Enabled() {
		t.Error("empty RedisConfig should not be enabled")
	}
	if !(RedisConfig{Address: "localhost:6379"}).Enabled() {
		t.Error("RedisConfig with address should be enabled")
	}
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_SECRET", "hello")
	if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "hello" {
		t.Errorf("expandEnv() = %q, want %q", got, "hello")
	}
	if got := expandEnv("no-vars-here"); got != "no-vars-here" {
		t.Errorf("expandEnv() = %q, want passthrough", got)
	}
	os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
	if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
		t.Errorf("expandEnv() = %q, want empty string", got)
	}
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
session:
  idle_ttl: "30m"
access_codes:
  length: 10
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("Session.IdleTTL = %s, want 30m", cfg.Session.IdleTTL)
	}
	if cfg.AccessCodes.Length != 10 {
		t.Errorf("AccessCodes.Length = %d, want 10", cfg.AccessCodes.Length)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "logging:\n  level: \"info\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Session.AbsoluteTTL != 8*time.Hour {
		t.Errorf("default Session.AbsoluteTTL = %s, want 8h", cfg.Session.AbsoluteTTL)
	}
	if cfg.Session.IdleTTL != time.Hour {
		t.Errorf("default Session.IdleTTL = %s, want 1h", cfg.Session.IdleTTL)
	}
	if cfg.Verification.CodeTTL != 10*time.Minute {
		t.Errorf("default Verification.CodeTTL = %s, want 10m", cfg.Verification.CodeTTL)
	}
	if cfg.Verification.MaxAttempts != 5 {
		t.Errorf("default Verification.MaxAttempts = %d, want 5", cfg.Verification.MaxAttempts)
	}
	if cfg.AccessCodes.Length != 8 {
		t.Errorf("default AccessCodes.Length = %d, want 8", cfg.AccessCodes.Length)
	}
	if cfg.Redis.Enabled() {
		t.Error("Redis should be disabled by default")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("IAOS_DATABASE_HOST", "env-db")
	t.Setenv("IAOS_SESSION_SECRET", "env-secret")
	path := writeTempConfig(t, "database:\n  host: \"file-db\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "env-db" {
		t.Errorf("Database.Host = %q, want env-db", cfg.Database.Host)
	}
	if cfg.Session.Secret != "env-secret" {
		t.Errorf("Session.Secret = %q, want env-secret", cfg.Session.Secret)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	path := writeTempConfig(t, "database:\n  password: \"${TEST_DB_PASS}\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestWatch_NoConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if err := Watch("", func(*Config) { t.Error("onChange should not fire") }); err != nil {
		t.Errorf("Watch() error = %v, want nil", err)
	}
}
