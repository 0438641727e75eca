package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the client configuration file (~/.crmsync/config.yaml).
// Flags override anything set here.
type Config struct {
	ServerURL string        `yaml:"server_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Debug     bool          `yaml:"debug"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ServerURL: "http://localhost:8000",
		Timeout:   30 * time.Second,
	}
}

// Load reads the config file from baseDir, falling back to defaults when the
// file is absent. If baseDir is empty, uses ~/.crmsync/
func Load(baseDir string) (Config, error) {
	cfg := Default()

	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".crmsync")
	}

	path := filepath.Join(baseDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = Default().ServerURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = Default().Timeout
	}

	log.Debug().Str("path", path).Str("serverURL", cfg.ServerURL).Msg("loaded config")

	return cfg, nil
}
