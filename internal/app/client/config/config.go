package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "POSSYNC"
	defaultConfigDir = ".possync"
	defaultServer    = "http://localhost:8080"
	defaultLogLevel  = "info"
	defaultEnv       = "local"
	defaultTimeout   = 30 * time.Second
)

var ErrIncompleteTenant = errors.New("client_id, branch_id and device_id must be configured")

type Config struct {
	Env       string        `mapstructure:"env" yaml:"env"`
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
	Server    string        `mapstructure:"server" yaml:"server"`
	Token     string        `mapstructure:"token" yaml:"token"`
	ClientID  string        `mapstructure:"client_id" yaml:"client_id"`
	BranchID  string        `mapstructure:"branch_id" yaml:"branch_id"`
	DeviceID  string        `mapstructure:"device_id" yaml:"device_id"`
	QueuePath string        `mapstructure:"queue_path" yaml:"queue_path"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Dir возвращает каталог настроек клиента (~/.possync)
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, defaultConfigDir)
}

// DefaultPath путь к файлу настроек по умолчанию
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load читает настройки из YAML-файла и переменных окружения POSSYNC_*.
// Переменные окружения имеют приоритет над файлом. Отсутствие файла не ошибка.
func Load(cfgFile string) (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("env", defaultEnv)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("server", defaultServer)
	v.SetDefault("token", "")
	v.SetDefault("client_id", "")
	v.SetDefault("branch_id", "")
	v.SetDefault("device_id", "")
	v.SetDefault("queue_path", filepath.Join(Dir(), "queue.db"))
	v.SetDefault("timeout", defaultTimeout)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Server == "" {
		return nil, errors.New("server must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &cfg, nil
}

// Save записывает настройки в YAML-файл, создавая каталог при необходимости
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.Set("env", cfg.Env)
	v.Set("log_level", cfg.LogLevel)
	v.Set("server", cfg.Server)
	v.Set("token", cfg.Token)
	v.Set("client_id", cfg.ClientID)
	v.Set("branch_id", cfg.BranchID)
	v.Set("device_id", cfg.DeviceID)
	v.Set("queue_path", cfg.QueuePath)
	v.Set("timeout", cfg.Timeout.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// ValidateTenant проверяет, что заданы все идентификаторы, нужные для синхронизации
func (c *Config) ValidateTenant() error {
	if c.ClientID == "" || c.BranchID == "" || c.DeviceID == "" {
		return ErrIncompleteTenant
	}
	return nil
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
