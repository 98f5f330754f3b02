package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	HTTP     struct {
		Addr string `json:"addr"`
	} `json:"http"`
	LLM struct {
		BaseURL          string `json:"base_url"`
		APIKey           string `json:"api_key"`
		Model            string `json:"model"`
		MaxContextTokens int    `json:"max_context_tokens"`
		OutputReserve    int    `json:"output_reserve"`
	} `json:"llm"`
	Capture struct {
		Enabled    bool     `json:"enabled"`
		SessionKey string   `json:"session_key"`
		Schedule   string   `json:"schedule"`
		WatchPaths []string `json:"watch_paths"`
	} `json:"capture"`
	Retention struct {
		Days     int    `json:"days"`
		Schedule string `json:"schedule"`
	} `json:"retention"`
	Flags struct {
		ProactiveCards bool `json:"proactive_cards"`
		FlowMode       bool `json:"flow_mode"`
		PreferenceSync bool `json:"preference_sync"`
		KillSwitch     bool `json:"kill_switch"`
	} `json:"flags"`
}

// DBPath is the behavioral store location under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "behavior.db")
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".neuroclaw"),
		LogLevel: "info",
	}
	cfg.HTTP.Addr = "127.0.0.1:8790"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4"
	cfg.LLM.MaxContextTokens = 4096
	cfg.LLM.OutputReserve = 1024
	cfg.Capture.SessionKey = "desktop:main"
	cfg.Capture.Schedule = "*/5 * * * * *"
	cfg.Retention.Days = 30
	cfg.Retention.Schedule = "@hourly"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if dataDir := os.Getenv("NEUROCLAW_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if addr := os.Getenv("NEUROCLAW_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	return cfg, nil
}

// Save writes the config atomically, creating the parent directory when
// needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
