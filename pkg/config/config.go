// Package config loads the YAML configuration shared by KitsuneDB
// processes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	blockmanager "github.com/kitsune-db/kitsunedb/core/write_engine/block_manager"
	"github.com/kitsune-db/kitsunedb/pkg/logger"
	"github.com/kitsune-db/kitsunedb/pkg/telemetry"
)

// Config aggregates the per-component configuration sections.
type Config struct {
	Logger    logger.Config       `yaml:"logger"`
	Telemetry telemetry.Config    `yaml:"telemetry"`
	Storage   blockmanager.Config `yaml:"storage"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}
