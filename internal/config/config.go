package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vlshowcase/internal/qwen"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig `json:"basic_config"`
	Qwen        QwenConfig  `json:"qwen"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
}

// QwenConfig holds the upstream vision-language service settings. The
// API key is usually supplied via QWEN_API_KEY rather than the file.
type QwenConfig struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

// Load reads configuration from the provided path and applies
// environment overrides (QWEN_API_KEY, QWEN_API_ENDPOINT, QWEN_MODEL).
// An empty path or a missing file is not an error so env-only
// deployments work. A missing API key is reported per-request by the
// generate endpoint, not here.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		file, err := os.Open(absPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("open config %s: %w", absPath, err)
			}
		} else {
			defer file.Close()
			if err := json.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		}
	}

	if v := os.Getenv("QWEN_API_KEY"); v != "" {
		cfg.Qwen.APIKey = v
	}
	if v := os.Getenv("QWEN_API_ENDPOINT"); v != "" {
		cfg.Qwen.Endpoint = v
	}
	if v := os.Getenv("QWEN_MODEL"); v != "" {
		cfg.Qwen.Model = v
	}

	if cfg.Qwen.Endpoint == "" {
		cfg.Qwen.Endpoint = qwen.DefaultEndpoint
	}
	if cfg.Qwen.Model == "" {
		cfg.Qwen.Model = qwen.DefaultModel
	}
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = ":8090"
	}
	return cfg, nil
}
