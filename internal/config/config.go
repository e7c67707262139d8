package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"parkingnear/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	RabbitMQ      RabbitMQConfig     `yaml:"rabbitmq"`
	Telegram      TelegramConfig     `yaml:"telegram"`
	Geocoder      GeocoderConfig     `yaml:"geocoder"`
	Billing       BillingConfig      `yaml:"billing"`
	Notifications NotificationConfig `yaml:"notifications"`
	Watcher       WatcherConfig      `yaml:"watcher"`
	Backup        BackupConfig       `yaml:"backup"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	API           APIConfig          `yaml:"api"`
	Exports       ExportConfig       `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type GeocoderConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	RPS       float64       `yaml:"rps"`
}

type BillingConfig struct {
	// AutoGenerate выставляет счет сразу после завершения парковки
	AutoGenerate bool `yaml:"auto_generate"`
	DueDays      int  `yaml:"due_days"`
}

type NotificationConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Sinks        []string      `yaml:"sinks"` // log, redis, amqp, telegram
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
}

type WatcherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

var knownSinks = map[string]bool{
	"log":      true,
	"redis":    true,
	"amqp":     true,
	"telegram": true,
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Billing.DueDays < 0 {
		return errors.New("billing due_days must not be negative")
	}

	for _, sink := range c.Notifications.Sinks {
		if !knownSinks[sink] {
			return fmt.Errorf("unknown notification sink: %s", sink)
		}
		if sink == "telegram" && c.Telegram.BotToken == "" {
			return errors.New("telegram sink requires telegram.bot_token")
		}
		if sink == "amqp" && c.RabbitMQ.URL == "" {
			return errors.New("amqp sink requires rabbitmq.url")
		}
		if sink == "redis" && c.Redis.Address == "" {
			return errors.New("redis sink requires redis.address")
		}
	}

	if c.Geocoder.Enabled && c.Geocoder.BaseURL == "" {
		return errors.New("geocoder base_url is required when geocoder is enabled")
	}

	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api_keys configured")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Billing.DueDays == 0 {
		c.Billing.DueDays = models.DefaultBillDueDays
	}

	if c.Watcher.Interval == 0 {
		c.Watcher.Interval = models.DefaultWatchInterval * time.Second
	}

	if c.Notifications.PollInterval == 0 {
		c.Notifications.PollInterval = 5 * time.Second
	}
	if c.Notifications.BatchSize == 0 {
		c.Notifications.BatchSize = models.NotificationBatchSize
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 5
	}
	if len(c.Notifications.Sinks) == 0 {
		c.Notifications.Sinks = []string{"log"}
	}

	if c.Geocoder.BaseURL == "" {
		c.Geocoder.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = "parkingnear/1.0"
	}
	if c.Geocoder.Timeout == 0 {
		c.Geocoder.Timeout = 10 * time.Second
	}
	if c.Geocoder.RPS == 0 {
		c.Geocoder.RPS = 1
	}

	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "parkingnear.notifications"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
