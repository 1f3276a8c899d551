package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// DefaultUtilityModel must support structured outputs; it generates chat titles and tags.
	DefaultUtilityModel = "google/gemini-2.0-flash-lite-001"
	// DefaultMetadataMaxMsgLength caps per-message context fed to metadata generation.
	DefaultMetadataMaxMsgLength = 1000
	// DefaultUpstreamBaseURL is the OpenAI-compatible completions API.
	DefaultUpstreamBaseURL = "https://openrouter.ai/api/v1"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Upstream    UpstreamConfig            `json:"upstream"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
	ModelSyncInterval int    `json:"model_sync_interval"` // minutes
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// UpstreamConfig describes the external LLM provider endpoint.
type UpstreamConfig struct {
	BaseURL string `json:"base_url"`
	// UtilityModel generates chat titles and tags for new chats.
	UtilityModel string `json:"utility_model"`
	// MetadataMaxMsgLength truncates each message fed into metadata generation.
	MetadataMaxMsgLength int `json:"metadata_max_msg_length"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("databases must be configured")
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset upstream settings, honoring env overrides.
func (cfg *Config) ApplyDefaults() {
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if v := os.Getenv("SPACECHAT_UTILITY_MODEL"); v != "" {
		cfg.Upstream.UtilityModel = v
	}
	if cfg.Upstream.UtilityModel == "" {
		cfg.Upstream.UtilityModel = DefaultUtilityModel
	}
	if v := os.Getenv("SPACECHAT_METADATA_MAX_MSG_LENGTH"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Upstream.MetadataMaxMsgLength = parsed
		}
	}
	if cfg.Upstream.MetadataMaxMsgLength <= 0 {
		cfg.Upstream.MetadataMaxMsgLength = DefaultMetadataMaxMsgLength
	}
}
