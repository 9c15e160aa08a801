// Package config loads the on-disk adapter-cadence and alert-channel
// configuration (YAML), with environment-variable overrides for anything
// secret or deployment-specific. It follows the same env-override shape
// the teacher used for its DSN/port parsing, generalized from two hardcoded
// keys to every top-level scalar key plus each channel's webhook URL, bot
// token, chat ID and SMTP user. Other channel fields and the adapter list
// come from the file only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AdapterConfig binds one adapter instance to its cron cadence and
// source-specific endpoints.
type AdapterConfig struct {
	Name            string            `yaml:"name"`
	DataSource      string            `yaml:"data_source"`
	MetricName      string            `yaml:"metric_name"`
	CronExpr        string            `yaml:"cron_expr"`
	NominalInterval time.Duration     `yaml:"-"`
	PrimaryURL      string            `yaml:"primary_url"`
	FallbackURL     string            `yaml:"fallback_url"`
	Selectors       map[string]string `yaml:"selectors"`
	Tickers         []string          `yaml:"tickers"`
}

// adapterConfigYAML mirrors AdapterConfig with NominalInterval as the raw
// duration string yaml.v3 actually hands back (it has no built-in
// time.Duration support).
type adapterConfigYAML struct {
	Name            string            `yaml:"name"`
	DataSource      string            `yaml:"data_source"`
	MetricName      string            `yaml:"metric_name"`
	CronExpr        string            `yaml:"cron_expr"`
	NominalInterval string            `yaml:"nominal_interval"`
	PrimaryURL      string            `yaml:"primary_url"`
	FallbackURL     string            `yaml:"fallback_url"`
	Selectors       map[string]string `yaml:"selectors"`
	Tickers         []string          `yaml:"tickers"`
}

func (a *AdapterConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw adapterConfigYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*a = AdapterConfig{
		Name:        raw.Name,
		DataSource:  raw.DataSource,
		MetricName:  raw.MetricName,
		CronExpr:    raw.CronExpr,
		PrimaryURL:  raw.PrimaryURL,
		FallbackURL: raw.FallbackURL,
		Selectors:   raw.Selectors,
		Tickers:     raw.Tickers,
	}
	if raw.NominalInterval == "" {
		return nil
	}
	d, err := time.ParseDuration(raw.NominalInterval)
	if err != nil {
		return fmt.Errorf("adapter %s: parse nominal_interval %q: %w", raw.Name, raw.NominalInterval, err)
	}
	a.NominalInterval = d
	return nil
}

// ChannelConfig holds the dispatch credentials for one notification
// channel. Secret-bearing fields are typically left blank in the file and
// supplied via environment overrides (see Load).
type ChannelConfig struct {
	Kind        string `yaml:"kind"`
	WebhookURL  string `yaml:"webhook_url"`
	BotToken    string `yaml:"bot_token"`
	ChatID      int64  `yaml:"chat_id"`
	SMTPAddr    string `yaml:"smtp_addr"`
	SMTPUser    string `yaml:"smtp_user"`
	SMTPFrom    string `yaml:"smtp_from"`
	SMTPTo      string `yaml:"smtp_to"`
}

// Config is the top-level on-disk shape.
type Config struct {
	Environment     string                   `yaml:"environment"`
	HTTPAddr        string                   `yaml:"http_addr"`
	MetricsSinkURL  string                   `yaml:"metrics_sink_url"`
	DBDSN           string                   `yaml:"db_dsn"`
	RedisAddr       string                   `yaml:"redis_addr"`
	StateStoreBackend string                 `yaml:"state_store_backend"` // "file" (default) or "dynamodb", spec §6 STATE_STORE_BACKEND
	StateStoreURL     string                 `yaml:"state_store_url"`     // dynamodb table name, or file path for the file backend
	Adapters        []AdapterConfig          `yaml:"adapters"`
	Channels        map[string]ChannelConfig `yaml:"channels"`
}

// Load reads the YAML file at path, optionally loads a .env file first
// (dev convenience, silently skipped if absent), and then applies
// environment-variable overrides for every top-level scalar field.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Environment = mustEnv("ENVIRONMENT", cfg.Environment)
	cfg.HTTPAddr = mustEnv("BOOMWATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsSinkURL = mustEnv("BOOMWATCH_METRICS_SINK_URL", cfg.MetricsSinkURL)
	cfg.DBDSN = mustEnv("BOOMWATCH_DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = mustEnv("BOOMWATCH_REDIS_ADDR", cfg.RedisAddr)
	cfg.StateStoreBackend = mustEnv("STATE_STORE_BACKEND", cfg.StateStoreBackend)
	cfg.StateStoreURL = mustEnv("STATE_STORE_URL", cfg.StateStoreURL)

	for name, ch := range cfg.Channels {
		upper := strings.ToUpper(name)
		ch.WebhookURL = mustEnv("BOOMWATCH_CHANNEL_"+upper+"_WEBHOOK_URL", ch.WebhookURL)
		ch.BotToken = mustEnv("BOOMWATCH_CHANNEL_"+upper+"_BOT_TOKEN", ch.BotToken)
		ch.ChatID = int64(mustIntEnv("BOOMWATCH_CHANNEL_"+upper+"_CHAT_ID", int(ch.ChatID)))
		ch.SMTPUser = mustEnv("BOOMWATCH_CHANNEL_"+upper+"_SMTP_USER", ch.SMTPUser)
		cfg.Channels[name] = ch
	}

	return cfg, nil
}

// mustEnv returns the named environment variable, or def when unset.
func mustEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// mustIntEnv returns the named environment variable parsed as an int, or
// def when unset or unparseable.
func mustIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
