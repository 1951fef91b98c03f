// Package config loads service settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/trustlens/internal/inference"
)

// Credential store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Inference struct {
		Endpoint       string        `yaml:"endpoint"`
		RequestTimeout time.Duration `yaml:"requestTimeout"`
	} `yaml:"inference"`

	Credential struct {
		Store    string `yaml:"store"`
		Key      string `yaml:"key"`
		FilePath string `yaml:"filePath"`
		Default  string `yaml:"default"`
	} `yaml:"credential"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret   string `yaml:"jwtSecret"`
		JWTAudience string `yaml:"jwtAudience"`
	} `yaml:"auth"`

	CORS struct {
		AllowOrigins []string `yaml:"allowOrigins"`
	} `yaml:"cors"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the settings used when neither file nor environment say otherwise.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Inference.Endpoint = inference.DefaultEndpoint
	cfg.Credential.Store = StoreMemory
	cfg.Credential.Key = "gemini_api_key"
	cfg.Credential.FilePath = "data/credential"
	cfg.Redis.Addr = "redis:6379"
	cfg.Database.DSN = "host=postgres user=postgres password=postgres dbname=trustlens port=5432 sslmode=disable"
	cfg.Auth.JWTSecret = "dev-secret"
	cfg.CORS.AllowOrigins = []string{"http://localhost:5173"}
	cfg.Log.Level = "info"
	return &cfg
}

// Load reads path (if non-empty), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "ADDR")
	setString(&c.Inference.Endpoint, "GEMINI_API_URL")
	setString(&c.Credential.Default, "GEMINI_API_KEY")
	setString(&c.Credential.Store, "CREDENTIAL_STORE")
	setString(&c.Credential.Key, "CREDENTIAL_KEY")
	setString(&c.Credential.FilePath, "CREDENTIAL_FILE")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.JWTAudience, "JWT_AUDIENCE")
	setString(&c.Log.Level, "LOG_LEVEL")

	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		c.CORS.AllowOrigins = splitList(raw)
	}
	if raw := os.Getenv("INFERENCE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("INFERENCE_TIMEOUT: %w", err)
		}
		c.Inference.RequestTimeout = d
	}
	if raw := os.Getenv("SHUTDOWN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		c.Server.ShutdownTimeout = d
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	c.Credential.Store = strings.ToLower(strings.TrimSpace(c.Credential.Store))
	switch c.Credential.Store {
	case StoreMemory, StoreFile, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unknown credential store %q", c.Credential.Store)
	}
	if strings.TrimSpace(c.Inference.Endpoint) == "" {
		return fmt.Errorf("inference endpoint is required")
	}
	if strings.TrimSpace(c.Credential.Key) == "" {
		return fmt.Errorf("credential key is required")
	}
	if c.Credential.Store == StoreFile && strings.TrimSpace(c.Credential.FilePath) == "" {
		return fmt.Errorf("credential file path is required for the file store")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Inference.RequestTimeout < 0 {
		return fmt.Errorf("inference request timeout must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
