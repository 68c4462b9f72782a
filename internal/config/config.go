package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	API struct {
		BaseURL   string `yaml:"base_url"`
		Token     string `yaml:"token"`
		TokenFile string `yaml:"token_file"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"api"`
	Relay struct {
		URL       string `yaml:"url"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"relay"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.API.BaseURL = "http://localhost:9999"
	cfg.API.Timeout = "15s"
	cfg.Relay.URL = "ws://localhost:8080/ws"
	cfg.Cache.TTL = "5m"
	return cfg
}

// Load reads YAML config from path on top of the defaults. A missing file is
// not an error. LIVEQUIZ_TOKEN overrides the API token.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if token := os.Getenv("LIVEQUIZ_TOKEN"); token != "" {
		cfg.API.Token = token
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
