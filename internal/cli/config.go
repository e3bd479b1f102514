package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8080"

// CLIConfig is the client-side settings file, ~/.config/tp/config.yaml.
type CLIConfig struct {
	ServerURL string `yaml:"server_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
}

// setting is a resolved value and where it came from.
type setting struct {
	Value  string
	Source string // "env", "config", "default", or "" when unset
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tp", "config.yaml"), nil
}

// loadConfig returns the zero config when the file does not exist.
func loadConfig() (CLIConfig, error) {
	var cfg CLIConfig
	path, err := configPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// saveConfig writes cfg readable by the current user only, since it holds
// the API key.
func saveConfig(cfg CLIConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// resolve picks env over the config file over def. An unreadable config
// file counts as empty.
func resolve(env string, fromFile func(CLIConfig) string, def string) setting {
	if v := os.Getenv(env); v != "" {
		return setting{Value: v, Source: "env"}
	}
	if cfg, err := loadConfig(); err == nil {
		if v := fromFile(cfg); v != "" {
			return setting{Value: v, Source: "config"}
		}
	}
	if def != "" {
		return setting{Value: def, Source: "default"}
	}
	return setting{}
}

func serverURLSetting() setting {
	return resolve("TP_SERVER_URL", func(c CLIConfig) string { return c.ServerURL }, defaultServerURL)
}

func apiKeySetting() setting {
	return resolve("TP_API_KEY", func(c CLIConfig) string { return c.APIKey }, "")
}

func getServerURL() string { return serverURLSetting().Value }

func getAPIKey() string { return apiKeySetting().Value }
