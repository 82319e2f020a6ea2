package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	API struct {
		BaseURL    string `yaml:"baseUrl" validate:"required,url"`
		Token      string `yaml:"token"`
		Timeout    string `yaml:"timeout"`
		RetryCount int    `yaml:"retryCount" validate:"gte=0,lte=10"`
	} `yaml:"api"`
	Beacon struct {
		Timeout     string `yaml:"timeout"`
		MaxInFlight int    `yaml:"maxInFlight" validate:"gte=0"`
	} `yaml:"beacon"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error off"`
	} `yaml:"log"`
	Replay struct {
		Interval    string `yaml:"interval"`
		Concurrency int    `yaml:"concurrency" validate:"gte=0,lte=64"`
	} `yaml:"replay"`
}

var validate = validator.New()

// Load reads YAML config from path, applies environment overrides and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation in one error.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// applyEnv lets secrets and endpoints come from the environment (or a .env file).
func applyEnv(cfg *Config) {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
