package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/cadencehq/cadence/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Stats      StatsConfig      `yaml:"stats"`
	Channels   []ChannelConfig  `yaml:"channels"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type DispatcherConfig struct {
	Enabled         bool   `yaml:"enabled"`
	TickInterval    string `yaml:"tick_interval"`
	Tolerance       string `yaml:"tolerance"`
	RetryDelay      string `yaml:"retry_delay"`
	DeliveryTimeout string `yaml:"delivery_timeout"`
}

type StatsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	UpdateInterval string `yaml:"update_interval"`
}

// ChannelConfig declares one delivery destination handled by the webhook adapter.
type ChannelConfig struct {
	ID         string `yaml:"id"`
	WebhookURL string `yaml:"webhook_url"`
	AuthToken  string `yaml:"auth_token"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5460
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Dispatcher.TickInterval == "" {
		cfg.Dispatcher.TickInterval = "60s"
	}
	if cfg.Dispatcher.Tolerance == "" {
		cfg.Dispatcher.Tolerance = "2m"
	}
	if cfg.Dispatcher.RetryDelay == "" {
		cfg.Dispatcher.RetryDelay = "15m"
	}
	if cfg.Dispatcher.DeliveryTimeout == "" {
		cfg.Dispatcher.DeliveryTimeout = "30s"
	}
	if cfg.Stats.UpdateInterval == "" {
		cfg.Stats.UpdateInterval = "10m"
	}

	return cfg, nil
}
