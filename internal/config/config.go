package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Webhooks   WebhooksConfig   `yaml:"webhooks"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Blacklist  BlacklistConfig  `yaml:"blacklist"`
	Events     EventsConfig     `yaml:"events"`
	ZeroBounce ZeroBounceConfig `yaml:"zerobounce"`
	SES        SESConfig        `yaml:"ses"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	APIToken string `yaml:"api_token"` // optional bearer token for /api
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig selects the persistence backend. An empty URL keeps all
// state in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables the validation cache and distributed locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// WebhooksConfig holds the SNS endpoint layout.
type WebhooksConfig struct {
	Prefix       string       `yaml:"prefix"`
	Routes       RoutesConfig `yaml:"routes"`
	MaxBodyBytes int64        `yaml:"max_body_bytes"`
}

// RoutesConfig names the per-category webhook paths under the prefix.
type RoutesConfig struct {
	Bounces    string `yaml:"bounces"`
	Complaints string `yaml:"complaints"`
	Deliveries string `yaml:"deliveries"`
}

// MonitorConfig holds the send-eligibility rules.
type MonitorConfig struct {
	Enabled                  bool        `yaml:"enabled"`
	AutoConfirmSubscriptions bool        `yaml:"auto_confirm_subscriptions"`
	ConfirmTimeoutSeconds    int         `yaml:"confirm_timeout_seconds"`
	Rules                    RulesConfig `yaml:"rules"`
}

// ConfirmTimeout returns the subscription confirmation timeout as a duration
func (c MonitorConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// RulesConfig groups the bounce and complaint rules.
type RulesConfig struct {
	Bounces    BounceRule    `yaml:"bounces"`
	Complaints ComplaintRule `yaml:"complaints"`
}

// BounceRule controls the bounce checks of the evaluator.
type BounceRule struct {
	Enabled               bool `yaml:"enabled"`
	MaxBounces            int  `yaml:"max_bounces"`
	CheckBySubject        bool `yaml:"check_by_subject"`
	BlockPermanentBounces bool `yaml:"block_permanent_bounces"`
	DaysToCheck           int  `yaml:"days_to_check"` // 0 = unbounded
}

// ComplaintRule controls the complaint checks of the evaluator.
type ComplaintRule struct {
	Enabled        bool `yaml:"enabled"`
	MaxComplaints  int  `yaml:"max_complaints"`
	CheckBySubject bool `yaml:"check_by_subject"`
	DaysToCheck    int  `yaml:"days_to_check"`
}

// BlacklistConfig controls ledger tracking.
type BlacklistConfig struct {
	SoftBounceThreshold int  `yaml:"soft_bounce_threshold"`
	TrackBounces        bool `yaml:"track_bounces"`
	TrackComplaints     bool `yaml:"track_complaints"`
}

// EventsConfig toggles domain event emission per notification type.
type EventsConfig struct {
	Bounce    bool `yaml:"bounce"`
	Complaint bool `yaml:"complaint"`
	Delivery  bool `yaml:"delivery"`
}

// ZeroBounceConfig holds email validation API configuration
type ZeroBounceConfig struct {
	Enabled            bool   `yaml:"enabled"`
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	ValidateBeforeSend bool   `yaml:"validate_before_send"`
}

// Timeout returns the configured timeout as a duration
func (c ZeroBounceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns the result cache lifetime as a duration
func (c ZeroBounceConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region              string `yaml:"region"`
	AccessKey           string `yaml:"access_key"`
	SecretKey           string `yaml:"secret_key"`
	SyncSuppressionList bool   `yaml:"sync_suppression_list"`
}

// ArchiveConfig holds raw payload archive settings.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	Region        string `yaml:"region"`
	TTLDays       int    `yaml:"ttl_days"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json | console
	RedactPII bool   `yaml:"redact_pii"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Monitor: MonitorConfig{
			Enabled:                  true,
			AutoConfirmSubscriptions: true,
			Rules: RulesConfig{
				Bounces: BounceRule{
					Enabled:               true,
					BlockPermanentBounces: true,
					DaysToCheck:           30,
				},
				Complaints: ComplaintRule{
					Enabled:        true,
					CheckBySubject: true,
				},
			},
		},
		Blacklist: BlacklistConfig{
			TrackBounces:    true,
			TrackComplaints: true,
		},
		Events:  EventsConfig{Bounce: true, Complaint: true, Delivery: true},
		Logging: LoggingConfig{RedactPII: true},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-valued scalars. Booleans are seeded by Default
// before the YAML is decoded over them.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Webhooks.Prefix == "" {
		cfg.Webhooks.Prefix = "aws/sns/ses"
	}
	cfg.Webhooks.Prefix = strings.Trim(cfg.Webhooks.Prefix, "/")
	if cfg.Webhooks.Routes.Bounces == "" {
		cfg.Webhooks.Routes.Bounces = "bounces"
	}
	if cfg.Webhooks.Routes.Complaints == "" {
		cfg.Webhooks.Routes.Complaints = "complaints"
	}
	if cfg.Webhooks.Routes.Deliveries == "" {
		cfg.Webhooks.Routes.Deliveries = "deliveries"
	}
	if cfg.Webhooks.MaxBodyBytes == 0 {
		cfg.Webhooks.MaxBodyBytes = 5 << 20
	}
	if cfg.Monitor.ConfirmTimeoutSeconds == 0 {
		cfg.Monitor.ConfirmTimeoutSeconds = 5
	}
	if cfg.Monitor.Rules.Bounces.MaxBounces <= 0 {
		cfg.Monitor.Rules.Bounces.MaxBounces = 3
	}
	if cfg.Monitor.Rules.Complaints.MaxComplaints <= 0 {
		cfg.Monitor.Rules.Complaints.MaxComplaints = 1
	}
	if cfg.Blacklist.SoftBounceThreshold <= 0 {
		cfg.Blacklist.SoftBounceThreshold = 3
	}
	if cfg.ZeroBounce.BaseURL == "" {
		cfg.ZeroBounce.BaseURL = "https://api.zerobounce.net/v2"
	}
	if cfg.ZeroBounce.CacheTTLSeconds == 0 {
		cfg.ZeroBounce.CacheTTLSeconds = 30 * 24 * 3600
	}
	if cfg.ZeroBounce.TimeoutSeconds == 0 {
		cfg.ZeroBounce.TimeoutSeconds = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = cfg.SES.Region
	}
	if cfg.Archive.TTLDays == 0 {
		cfg.Archive.TTLDays = 90
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Load reads and parses the configuration file. A missing file yields the
// defaults so the service can run from environment variables alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("ZEROBOUNCE_API_KEY"); v != "" {
		cfg.ZeroBounce.APIKey = v
	}
	if v, ok := envBool("ZEROBOUNCE_ENABLED"); ok {
		cfg.ZeroBounce.Enabled = v
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v, ok := envBool("SES_MONITOR_ENABLED"); ok {
		cfg.Monitor.Enabled = v
	}
	if v, ok := envBool("SES_MONITOR_AUTO_CONFIRM"); ok {
		cfg.Monitor.AutoConfirmSubscriptions = v
	}
	if v := os.Getenv("SES_MONITOR_PREFIX"); v != "" {
		cfg.Webhooks.Prefix = strings.Trim(v, "/")
	}
	if v, ok := envInt("SES_MONITOR_MAX_BOUNCES"); ok {
		cfg.Monitor.Rules.Bounces.MaxBounces = v
	}
	if v, ok := envInt("SES_MONITOR_MAX_COMPLAINTS"); ok {
		cfg.Monitor.Rules.Complaints.MaxComplaints = v
	}
	if v, ok := envInt("SES_MONITOR_SOFT_BOUNCE_THRESHOLD"); ok {
		cfg.Blacklist.SoftBounceThreshold = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
