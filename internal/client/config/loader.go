package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "LOGSYNC_CONFIG"

// Load builds a Config from defaults, then the YAML or JSON file at path,
// then LOGSYNC_* environment variables. An empty path falls back to
// LOGSYNC_CONFIG; without either only defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	return cfg, nil
}
