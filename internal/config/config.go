package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Sonar   SonarConfig
	Address AddressConfig
	Import  ImportConfig
	Server  ServerConfig
	Log     LogConfig
}

type SonarConfig struct {
	URI      string
	Username string
	Password string
	Timeout  time.Duration
}

type AddressConfig struct {
	RedisURL      string
	CacheTTL      time.Duration
	CacheCapacity int
	DefaultCity   string
	DefaultCounty string
}

type ImportConfig struct {
	Concurrency int
	LogDir      string
}

type ServerConfig struct {
	MetricsPort int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Sonar: SonarConfig{
			URI:      getEnv("SONAR_URI", ""),
			Username: getEnv("SONAR_USERNAME", ""),
			Password: getEnv("SONAR_PASSWORD", ""),
			Timeout:  time.Duration(getEnvInt("HTTP_TIMEOUT_SEC", 30)) * time.Second,
		},
		Address: AddressConfig{
			RedisURL:      getEnv("REDIS_URL", ""),
			CacheTTL:      time.Duration(getEnvInt("ADDRESS_CACHE_TTL_DAYS", 30)) * 24 * time.Hour,
			CacheCapacity: getEnvInt("ADDRESS_CACHE_CAPACITY", 10000),
			DefaultCity:   getEnv("DEFAULT_CITY", ""),
			DefaultCounty: getEnv("DEFAULT_COUNTY", ""),
		},
		Import: ImportConfig{
			Concurrency: getEnvInt("IMPORT_CONCURRENCY", 10),
			LogDir:      getEnv("LOG_DIR", "log_output"),
		},
		Server: ServerConfig{
			MetricsPort: getEnvInt("METRICS_PORT", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sonar.URI == "" {
		return fmt.Errorf("SONAR_URI is required")
	}
	if c.Sonar.Username == "" {
		return fmt.Errorf("SONAR_USERNAME is required")
	}
	if c.Sonar.Password == "" {
		return fmt.Errorf("SONAR_PASSWORD is required")
	}
	if c.Import.Concurrency < 1 {
		return fmt.Errorf("IMPORT_CONCURRENCY must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
