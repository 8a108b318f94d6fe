package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. It covers the local
// buffer, the miner's polling behavior, the remote store, and the optional
// dashboard-facing API surface.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Miner   MinerConfig   `yaml:"miner"`
	Remote  RemoteConfig  `yaml:"remote"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	API     APIConfig     `yaml:"api"`
	AI      AIConfig      `yaml:"ai"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MinerConfig struct {
	// Base tick interval; each tick adds up to JitterSeconds of random delay
	// so polling has no detectable fixed period.
	IntervalSeconds int `yaml:"intervalSeconds"`
	JitterSeconds   int `yaml:"jitterSeconds"`
	// Delay before the first tick after a fresh credential update.
	RearmDelaySeconds int `yaml:"rearmDelaySeconds"`
	// Polling suspension window after a rate-limit response.
	CooldownHours  int     `yaml:"cooldownHours"`
	RequestsPerSec float64 `yaml:"requestsPerSec"`
}

type RemoteConfig struct {
	// "postgres" for a direct connection, "rest" for a PostgREST-compatible
	// endpoint (Supabase).
	Driver string `yaml:"driver"`
	// Postgres DSN. If empty, read from env APEX_REMOTE_DSN.
	DSN string `yaml:"dsn"`
	// PostgREST base URL and API key. If empty, read APEX_REST_URL/APEX_REST_KEY.
	RestURL   string `yaml:"restUrl"`
	RestKey   string `yaml:"restKey"`
	BatchSize int    `yaml:"batchSize"`
}

type ProxyConfig struct {
	// Listen address of the observing proxy, e.g. "127.0.0.1:8888".
	Addr string `yaml:"addr"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type AIConfig struct {
	// If empty, read from env OPENAI_API_KEY.
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{DBPath: "./apex.db"},
		Miner: MinerConfig{
			IntervalSeconds:   300,
			JitterSeconds:     120,
			RearmDelaySeconds: 5,
			CooldownHours:     12,
			RequestsPerSec:    0.5,
		},
		Remote:  RemoteConfig{Driver: "rest", BatchSize: 50},
		Proxy:   ProxyConfig{Addr: "127.0.0.1:8888"},
		API:     APIConfig{Addr: "127.0.0.1:8787"},
		AI:      AIConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("APEX_DB_PATH"); v != "" && c.Storage.DBPath == "" {
		c.Storage.DBPath = v
	}
	if c.Remote.DSN == "" {
		c.Remote.DSN = os.Getenv("APEX_REMOTE_DSN")
	}
	if c.Remote.RestURL == "" {
		c.Remote.RestURL = os.Getenv("APEX_REST_URL")
	}
	if c.Remote.RestKey == "" {
		c.Remote.RestKey = os.Getenv("APEX_REST_KEY")
	}
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// CooldownPenalty returns the rate-limit suspension window.
func (c Config) CooldownPenalty() time.Duration {
	h := c.Miner.CooldownHours
	if h <= 0 {
		h = 12
	}
	return time.Duration(h) * time.Hour
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
