package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "komodo.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset flags
// that should not override the config. Use ParseFlags to populate this struct.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
}

// ParseFlags parses command-line arguments into CLIFlags.
// Call this before Load/LoadWithCLI. Passing nil args parses os.Args[1:].
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags

	fs := flag.NewFlagSet("komodo-core", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	port := fs.String("port", "", "HTTP server port")
	fs.StringVar(port, "p", "", "HTTP server port (shorthand)")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	dsn := fs.String("dsn", "", "PostgreSQL connection string")

	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "port", "p":
			flags.Port = port
		case "log-level":
			flags.LogLevel = logLevel
		case "dsn":
			flags.DSN = dsn
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// configFilePath returns the YAML path, honoring KOMODO_CORE_CONFIG_PATH.
func configFilePath() string {
	if v := os.Getenv("KOMODO_CORE_CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultConfigFile
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI flags. The YAML path can be overridden
// via CLIFlags.ConfigPath.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := configFilePath()
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overlays CLI flag values onto cfg. Only non-nil flags override.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg. Only non-empty env
// values override the current config. Secrets (JWT signing key, webhook
// HMAC secrets, alerter webhook URLs, admin seed password) are read here
// rather than YAML — see internal/secrets for the vault these are
// eventually resolved through at call sites that need per-server or
// per-alerter values instead of one process-wide default.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "KOMODO_PORT")
	setString(&cfg.Server.CORSOrigin, "KOMODO_CORS_ORIGIN")
	setString(&cfg.Server.Title, "KOMODO_TITLE")

	setString(&cfg.Postgres.DSN, "KOMODO_DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "KOMODO_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "KOMODO_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "KOMODO_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "KOMODO_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "KOMODO_PG_HEALTH_CHECK")

	setString(&cfg.Logging.Level, "KOMODO_LOG_LEVEL")
	setString(&cfg.Logging.Service, "KOMODO_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "KOMODO_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "KOMODO_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "KOMODO_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "KOMODO_RATE_RPS")
	setInt(&cfg.Rate.Burst, "KOMODO_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "KOMODO_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "KOMODO_RATE_MAX_IDLE_TIME")

	setInt64(&cfg.Cache.StatusMaxEntries, "KOMODO_CACHE_STATUS_MAX_ENTRIES")
	setDuration(&cfg.Cache.StatusTTL, "KOMODO_CACHE_STATUS_TTL")

	// Webhook
	setString(&cfg.Webhook.GitHubSecret, "KOMODO_WEBHOOK_GITHUB_SECRET")
	setString(&cfg.Webhook.GitLabToken, "KOMODO_WEBHOOK_GITLAB_TOKEN")
	setInt(&cfg.Webhook.JitterMaxMs, "KOMODO_WEBHOOK_JITTER_MAX_MS")

	// Notification
	setString(&cfg.Notification.SlackWebhookURL, "KOMODO_NOTIFICATION_SLACK_WEBHOOK_URL")
	setString(&cfg.Notification.DiscordWebhookURL, "KOMODO_NOTIFICATION_DISCORD_WEBHOOK_URL")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "KOMODO_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "KOMODO_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "KOMODO_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "KOMODO_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "KOMODO_OTEL_SAMPLE_RATE")

	// Auth
	setBool(&cfg.Auth.Enabled, "KOMODO_AUTH_ENABLED")
	setBool(&cfg.Auth.TransparentMode, "KOMODO_TRANSPARENT_MODE")
	setString(&cfg.Auth.JWTSecret, "KOMODO_AUTH_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenExpiry, "KOMODO_AUTH_ACCESS_EXPIRY")
	setDuration(&cfg.Auth.RefreshTokenExpiry, "KOMODO_AUTH_REFRESH_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "KOMODO_AUTH_BCRYPT_COST")
	setString(&cfg.Auth.DefaultAdminEmail, "KOMODO_AUTH_ADMIN_EMAIL")
	setString(&cfg.Auth.DefaultAdminPass, "KOMODO_AUTH_ADMIN_PASS")

	// Periphery
	setDuration(&cfg.Periphery.RequestTimeout, "KOMODO_PERIPHERY_REQUEST_TIMEOUT")
	setBool(&cfg.Periphery.DisableTLSVerify, "KOMODO_PERIPHERY_DISABLE_TLS_VERIFY")

	// Monitoring
	setDuration(&cfg.Monitoring.PollInterval, "KOMODO_MONITORING_POLL_INTERVAL")
	setDuration(&cfg.Monitoring.Timeout, "KOMODO_MONITORING_TIMEOUT")
	setInt(&cfg.Monitoring.MaxConcurrent, "KOMODO_MONITORING_MAX_CONCURRENT")

	// Sync
	setString(&cfg.Sync.CloneDir, "KOMODO_SYNC_CLONE_DIR")
	setInt(&cfg.Sync.CloneRetries, "KOMODO_SYNC_CLONE_RETRIES")
	setInt(&cfg.Sync.ApplyRetries, "KOMODO_SYNC_APPLY_RETRIES")

	// Cloud builder defaults
	setString(&cfg.AWS.Region, "KOMODO_AWS_REGION")
	setString(&cfg.Hetzner.DefaultDatacenter, "KOMODO_HETZNER_DEFAULT_DATACENTER")
}

// validate checks that required fields are set and security constraints are met.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Monitoring.PollInterval <= 0 {
		return errors.New("monitoring.poll_interval must be > 0")
	}
	if cfg.Monitoring.MaxConcurrent < 1 {
		return errors.New("monitoring.max_concurrent must be >= 1")
	}

	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth.enabled is true")
	}
	if cfg.Auth.BcryptCost < 10 {
		return errors.New("auth.bcrypt_cost must be >= 10")
	}

	if cfg.Auth.Enabled {
		p := cfg.Auth.DefaultAdminPass
		if p == "changeme123" || p == "Changeme123" || p == "CHANGE_ME_ON_FIRST_BOOT" {
			slog.Warn("auth.default_admin_pass is set to a well-known default; change it before production use")
		}
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
