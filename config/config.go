package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the enrollment automation service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Automation AutomationConfig `mapstructure:"automation"`
	Inbound    InboundConfig    `mapstructure:"inbound"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Events     EventsConfig     `mapstructure:"events"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and admin auth settings
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	SessionBackend    string        `mapstructure:"session_backend"` // memory | redis
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required")
	}
	switch s.SessionBackend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("server.session_backend must be memory or redis, got %q", s.SessionBackend)
	}
	return nil
}

// AutomationConfig describes the external workflow endpoint runs are triggered against.
type AutomationConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// Normalize applies defaults for unset automation values.
func (a AutomationConfig) Normalize() AutomationConfig {
	a.Endpoint = strings.TrimSpace(a.Endpoint)
	if a.Timeout <= 0 {
		a.Timeout = 30 * time.Second
	}
	if a.MaxRetries < 0 {
		a.MaxRetries = 0
	}
	if a.Backoff <= 0 {
		a.Backoff = 500 * time.Millisecond
	}
	if strings.TrimSpace(a.UserAgent) == "" {
		a.UserAgent = "enroller/1.0"
	}
	return a
}

func (a AutomationConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("automation.endpoint required")
	}
	if !strings.HasPrefix(a.Endpoint, "http://") && !strings.HasPrefix(a.Endpoint, "https://") {
		return fmt.Errorf("automation.endpoint must be an http(s) URL")
	}
	return nil
}

// InboundConfig guards the webhook and email ingress endpoints.
type InboundConfig struct {
	WebhookToken string `mapstructure:"webhook_token"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	S3       S3Config       `mapstructure:"s3"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a redis host has been configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port, defaulting the port to 6379.
func (r RedisConfig) Addr() string {
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", strings.TrimSpace(r.Host), port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configuration.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// S3Config contains object storage configuration for retention archives.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Enabled reports whether archiving to object storage is configured.
func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Bucket) != "" }

func (s S3Config) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" && strings.TrimSpace(s.Bucket) == "" {
		return nil
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return fmt.Errorf("storage.s3.bucket required when endpoint is provided")
	}
	return nil
}

// EventsConfig selects where run lifecycle events are published.
type EventsConfig struct {
	Backend string `mapstructure:"backend"` // none | redis | nats
	Stream  string `mapstructure:"stream"`
	MaxLen  int64  `mapstructure:"max_len"`
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

func (e EventsConfig) Validate() error {
	switch e.Backend {
	case "", "none", "redis":
		return nil
	case "nats":
		if strings.TrimSpace(e.NatsURL) == "" {
			return fmt.Errorf("events.nats_url required for the nats backend")
		}
		return nil
	default:
		return fmt.Errorf("events.backend must be none, redis or nats, got %q", e.Backend)
	}
}

// SchedulerConfig controls the retention scheduler cadences.
type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	PrimaryCron string        `mapstructure:"primary_cron"`
	HealthCron  string        `mapstructure:"health_cron"`
	TimeZone    string        `mapstructure:"time_zone"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

// Location resolves the configured time zone, defaulting to UTC.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(s.TimeZone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.TimeZone)
}

func (s SchedulerConfig) Validate() error {
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("scheduler.time_zone: %w", err)
	}
	return nil
}

// TelemetryConfig contains metrics and tracing export settings
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.ExportInterval < 0 {
		return fmt.Errorf("telemetry.export_interval must be >= 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.session_ttl", "24h")
	v.SetDefault("server.session_backend", "memory")
	v.SetDefault("automation.timeout", "30s")
	v.SetDefault("automation.max_retries", 0)
	v.SetDefault("automation.backoff", "500ms")
	v.SetDefault("inbound.max_body_bytes", 2<<20)
	v.SetDefault("events.backend", "none")
	v.SetDefault("events.stream", "enroller:runs")
	v.SetDefault("events.subject", "enroller.runs")
	v.SetDefault("events.max_len", 10000)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.primary_cron", DefaultPrimaryCron)
	v.SetDefault("scheduler.health_cron", DefaultHealthCron)
	v.SetDefault("scheduler.time_zone", "UTC")
	v.SetDefault("scheduler.stale_after", "168h")
	v.SetDefault("scheduler.lock_ttl", "10m")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "enroller")
	v.SetDefault("telemetry.export_interval", "15s")
	v.SetDefault("retention.audit", DefaultAuditRetention.String())
	v.SetDefault("retention.medical_records", DefaultMedicalRecordRetention.String())
	v.SetDefault("retention.temporary", DefaultTemporaryRetention.String())
	v.SetDefault("retention.sessions", DefaultSessionRetention.String())
	v.SetDefault("retention.orphans", DefaultOrphanRetention.String())
}

// bindEnvs registers every leaf key of t so env values reach Unmarshal even
// when neither a default nor the config file mentions the key.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// LoadConfig loads config from file and environment. An empty path searches the usual
// locations; a missing file is tolerated so env-only deployments work.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ENROLLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Automation = cfg.Automation.Normalize()
	cfg.Retention = cfg.Retention.Normalize()

	validators := []func() error{
		cfg.Storage.S3.Validate,
		cfg.Events.Validate,
		cfg.Scheduler.Validate,
		cfg.Retention.Validate,
		cfg.Telemetry.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
