package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"booksync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Remote        RemoteConfig        `yaml:"remote"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Sync          SyncConfig          `yaml:"sync"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	API           APIConfig           `yaml:"api"`
	Logging       LoggingConfig       `yaml:"logging"`
	Exports       ExportConfig        `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	DeviceID    string `yaml:"device_id"`
}

type RemoteConfig struct {
	BaseURL  string  `yaml:"base_url"`
	APIKey   string  `yaml:"api_key"`
	APIExtra string  `yaml:"api_extra"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SyncConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	DebounceCount int           `yaml:"debounce_count"`
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PruneAge      time.Duration `yaml:"prune_age"`
	RefreshEvery  time.Duration `yaml:"refresh_every"`
}

type NotificationsConfig struct {
	Cap         int   `yaml:"cap"`
	AlertChatID int64 `yaml:"alert_chat_id"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config, expanding ${ENV} references first. A
// .env file in the working directory is honored when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

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
	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	if c.Sync.BackoffFactor < 0 {
		return fmt.Errorf("sync backoff_factor must not be negative, got %v", c.Sync.BackoffFactor)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "booksync"
	}
	if c.App.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.App.DeviceID = host
		}
	}

	if c.Remote.RPS == 0 {
		c.Remote.RPS = 5
	}
	if c.Remote.Burst == 0 {
		c.Remote.Burst = 10
	}

	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = models.DefaultPollInterval
	}
	if c.Sync.DebounceCount == 0 {
		c.Sync.DebounceCount = models.DefaultDebounceCount
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = models.DefaultMaxAttempts
	}
	if c.Sync.InitialDelay == 0 {
		c.Sync.InitialDelay = 2 * time.Second
	}
	if c.Sync.MaxDelay == 0 {
		c.Sync.MaxDelay = time.Minute
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Sync.PruneAge == 0 {
		c.Sync.PruneAge = models.DefaultPruneAge
	}

	if c.Notifications.Cap == 0 {
		c.Notifications.Cap = models.DefaultNotificationCap
	}

	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
}
