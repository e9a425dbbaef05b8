package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"commodity-price-alerts/internal/logging"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Feed sources.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects where the alert list is persisted.
type StorageConfig struct {
	Driver       string         `mapstructure:"driver"`
	Key          string         `mapstructure:"key"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout"`
	SQLitePath   string         `mapstructure:"sqlite_path"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig encapsulates PostgreSQL connectivity.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// FeedConfig describes the price snapshot source.
type FeedConfig struct {
	Source string          `mapstructure:"source"`
	HTTP   HTTPFeedConfig  `mapstructure:"http"`
	Kafka  KafkaFeedConfig `mapstructure:"kafka"`
}

// HTTPFeedConfig covers the polled snapshot endpoint.
type HTTPFeedConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// KafkaFeedConfig covers the streamed snapshot topic.
type KafkaFeedConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// NotifyConfig configures both delivery channels.
type NotifyConfig struct {
	Toast    ToastConfig    `mapstructure:"toast"`
	System   SystemConfig   `mapstructure:"system"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Push     PushConfig     `mapstructure:"push"`
}

// ToastConfig controls the in-app toast board.
type ToastConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SystemConfig tunes system notification delivery.
type SystemConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	CoalesceWindow time.Duration `mapstructure:"coalesce_window"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// PushConfig lists shoutrrr service URLs.
type PushConfig struct {
	URLs []string `mapstructure:"urls"`
}

// ServerConfig controls the HTTP server `run` exposes and the address the
// alert management commands use to reach it.
type ServerConfig struct {
	Listen        string        `mapstructure:"listen"`
	URL           string        `mapstructure:"url"`
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
}

// BaseURL is URL when set, otherwise derived from Listen.
func (c ServerConfig) BaseURL() string {
	if c.URL != "" {
		return strings.TrimRight(c.URL, "/")
	}
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return "http://" + c.Listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// MetricsConfig toggles the /metrics endpoint on the server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricealerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.key", "price-alerts")
	v.SetDefault("storage.write_timeout", "3s")
	v.SetDefault("storage.sqlite_path", "data/pricealerts.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_open_conns", 4)
	v.SetDefault("storage.postgres.max_idle_conns", 1)
	v.SetDefault("storage.postgres.conn_max_lifetime", "30m")
	v.SetDefault("storage.postgres.advisory_lock_key", 7410)

	v.SetDefault("feed.source", SourceHTTP)
	v.SetDefault("feed.http.url", "")
	v.SetDefault("feed.http.timeout", "10s")
	v.SetDefault("feed.http.user_agent", "pricealerts/1.0")
	v.SetDefault("feed.kafka.brokers", []string{})
	v.SetDefault("feed.kafka.topic", "")
	v.SetDefault("feed.kafka.group_id", "pricealerts")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("notify.toast.ttl", "2m")
	v.SetDefault("notify.system.timeout", "5s")
	v.SetDefault("notify.system.coalesce_window", "1m")
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.push.urls", []string{})

	v.SetDefault("server.listen", "127.0.0.1:9464")
	v.SetDefault("server.url", "")
	v.SetDefault("server.client_timeout", "10s")

	v.SetDefault("metrics.enabled", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return fmt.Errorf("storage.key cannot be empty")
	}

	switch c.Feed.Source {
	case SourceHTTP, SourceKafka:
	default:
		return fmt.Errorf("feed.source %q is not supported", c.Feed.Source)
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen cannot be empty")
	}
	return nil
}

// ValidateFeed checks the settings only the long-running commands need.
func (c *Config) ValidateFeed() error {
	switch c.Feed.Source {
	case SourceHTTP:
		if c.Feed.HTTP.URL == "" {
			return fmt.Errorf("feed.http.url must be set for the http source")
		}
	case SourceKafka:
		if len(c.Feed.Kafka.Brokers) == 0 || c.Feed.Kafka.Topic == "" {
			return fmt.Errorf("feed.kafka.brokers and feed.kafka.topic must be set for the kafka source")
		}
	}
	return nil
}
