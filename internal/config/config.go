// Package config loads the service's YAML configuration file and
// applies a small set of environment-variable overrides, the way the
// teacher's config package does — same yaml.v3 decode-into-struct
// shape, same Load/Validate pair — narrowed to this service's domain
// (crawl defaults, object storage, optional Redis lock, optional LLM
// summarizer) in place of the teacher's multi-tenant/auth/search
// surface.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CrawlDefaultsConfig seeds model.CrawlConfig for requests that don't
// override a given field.
type CrawlDefaultsConfig struct {
	MaxPages            int     `yaml:"maxPages"`
	MaxDepth            int     `yaml:"maxDepth"`
	RequestDelaySeconds float64 `yaml:"requestDelaySeconds"`
	UserAgent           string  `yaml:"userAgent"`
	RespectRobots       bool    `yaml:"respectRobots"`
	FollowRedirects     bool    `yaml:"followRedirects"`
	TimeoutSeconds      int     `yaml:"timeoutSeconds"`
	Language            string  `yaml:"language"`
	MaxKB               int     `yaml:"maxKB"`
}

// StorageConfig controls whether job artifacts persist to S3-compatible
// object storage or stay in the in-process job store only.
type StorageConfig struct {
	UseObjectStorage bool   `yaml:"useObjectStorage"`
	Bucket           string `yaml:"bucket"`
	Region           string `yaml:"region"`
	Endpoint         string `yaml:"endpoint"` // non-empty for S3-compatible (e.g. MinIO)
}

// RedisConfig controls the optional distributed job-claim lock.
// Enabled automatically when URL is non-empty.
type RedisConfig struct {
	URL string `yaml:"url"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

type LLMSummarizerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // openai, anthropic, google
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseURL"`
	APIKey   string `yaml:"apiKey"` // normally left blank; set via LLM_SUMMARIZER_API_KEY
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
}

type Config struct {
	Server  ServerConfig        `yaml:"server"`
	Crawl   CrawlDefaultsConfig `yaml:"crawl"`
	Storage StorageConfig       `yaml:"storage"`
	Redis   RedisConfig         `yaml:"redis"`
	LLM     LLMSummarizerConfig `yaml:"llm"`
	Worker  WorkerConfig        `yaml:"worker"`
}

// Load reads the YAML config at path and applies environment overrides.
// It returns an error instead of exiting so callers (tests, the CLI)
// can decide how to handle a missing or malformed file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Default returns hardcoded defaults sufficient to run without a
// config file present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Crawl: CrawlDefaultsConfig{
			MaxPages:            150,
			MaxDepth:            5,
			RequestDelaySeconds: 0.5,
			UserAgent:           "llmtxt-generator/0.1.0",
			RespectRobots:       true,
			FollowRedirects:     true,
			TimeoutSeconds:      15,
			Language:            "en",
			MaxKB:               500,
		},
		Worker: WorkerConfig{MaxConcurrentJobs: 4, PollIntervalMs: 250},
	}
}

// applyEnvOverrides layers environment variables on top of whatever
// was decoded from YAML, letting deployments inject secrets and
// per-environment toggles without editing the config file.
func (cfg *Config) applyEnvOverrides() {
	if v := os.Getenv("LLM_SUMMARIZER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
	}
	if v := os.Getenv("BUCKET_NAME"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("USE_OBJECT_STORAGE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.UseObjectStorage = b
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CRAWLER_USER_AGENT"); v != "" {
		cfg.Crawl.UserAgent = v
	}
}

// Validate performs basic sanity checks so misconfiguration fails
// fast at startup rather than mid-crawl.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Crawl.MaxPages <= 0 {
		return errors.New("crawl.maxPages must be positive")
	}
	if cfg.Crawl.MaxDepth < 0 {
		return errors.New("crawl.maxDepth must be non-negative")
	}
	if cfg.Crawl.MaxKB <= 0 {
		return errors.New("crawl.maxKB must be positive")
	}

	if cfg.Storage.UseObjectStorage {
		if strings.TrimSpace(cfg.Storage.Bucket) == "" {
			return errors.New("storage.useObjectStorage is true but storage.bucket (or BUCKET_NAME) is empty")
		}
		if strings.TrimSpace(cfg.Storage.Region) == "" {
			return errors.New("storage.useObjectStorage is true but storage.region (or REGION) is empty")
		}
	}

	if cfg.LLM.Enabled {
		if strings.TrimSpace(cfg.LLM.Provider) == "" || strings.TrimSpace(cfg.LLM.Model) == "" {
			return errors.New("llm.enabled is true but llm.provider or llm.model is empty")
		}
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			return errors.New("llm.enabled is true but no API key is set (llm.apiKey or LLM_SUMMARIZER_API_KEY)")
		}
	}

	return nil
}
