package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env     string
	DB      db
	Server  server
	Logger  logger
	Auth    auth
	Metrics metrics
}

type db struct {
	DatabaseURI    string        `env:"DATABASE_URI"`
	Migrations     string        `env:"MIGRATIONS_PATH"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`
}

type server struct {
	RunAddress      string        `env:"RUN_ADDRESS" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type auth struct {
	// Tokens токен устройства -> client_id. Пустая карта отключает проверку.
	Tokens map[string]string `env:"AUTH_TOKENS"`
}

type metrics struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("db_connect_timeout", 30*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	tokens, err := ParseTokens(v.GetString("auth_tokens"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env: v.GetString("app_env"),
		DB: db{
			DatabaseURI:    v.GetString("database_uri"),
			Migrations:     v.GetString("migrations_path"),
			ConnectTimeout: v.GetDuration("db_connect_timeout"),
		},
		Server: server{
			RunAddress:      v.GetString("run_address"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		Logger:  logger{LogLevel: v.GetString("log_level")},
		Auth:    auth{Tokens: tokens},
		Metrics: metrics{Enabled: v.GetBool("metrics_enabled")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalln(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: unknown APP_ENV %q", ErrInvalidConfig, c.Env)
	}

	if c.DB.DatabaseURI == "" {
		return fmt.Errorf("%w: DATABASE_URI is required", ErrInvalidConfig)
	}
	if c.Server.RunAddress == "" {
		return fmt.Errorf("%w: RUN_ADDRESS is required", ErrInvalidConfig)
	}

	return nil
}

// ParseTokens разбирает список вида "token1=client-1,token2=client-2"
func ParseTokens(s string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		token, clientID, ok := strings.Cut(pair, "=")
		token, clientID = strings.TrimSpace(token), strings.TrimSpace(clientID)
		if !ok || token == "" || clientID == "" {
			return nil, fmt.Errorf("%w: malformed AUTH_TOKENS entry %q", ErrInvalidConfig, pair)
		}
		tokens[token] = clientID
	}
	return tokens, nil
}
