package multifarm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DefaultFarmID string     `yaml:"default_farm_id"`
	Farms         []FarmSpec `yaml:"farms"`
}

// FarmSpec describes one hosted farm. SeedOffset keeps sibling farms on
// distinct PRNG streams while the operator only manages a single base seed.
type FarmSpec struct {
	ID                 string `yaml:"id"`
	SeedOffset         int64  `yaml:"seed_offset"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks,omitempty"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("farms.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("farms.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultFarmID: "farm_1",
		Farms: []FarmSpec{
			{ID: "farm_1", SeedOffset: 0},
		},
	}
}

func (c *Config) Normalize() {
	for i := range c.Farms {
		c.Farms[i].ID = strings.TrimSpace(c.Farms[i].ID)
	}
	c.DefaultFarmID = strings.TrimSpace(c.DefaultFarmID)
	if c.DefaultFarmID == "" && len(c.Farms) > 0 {
		c.DefaultFarmID = c.Farms[0].ID
	}
}

func (c *Config) Validate() error {
	if len(c.Farms) == 0 {
		return fmt.Errorf("no farms configured")
	}
	seen := map[string]bool{}
	for _, fs := range c.Farms {
		if fs.ID == "" {
			return fmt.Errorf("farm with empty id")
		}
		if seen[fs.ID] {
			return fmt.Errorf("duplicate farm id: %s", fs.ID)
		}
		seen[fs.ID] = true
	}
	if !seen[c.DefaultFarmID] {
		return fmt.Errorf("default_farm_id %q is not a configured farm", c.DefaultFarmID)
	}
	return nil
}

func (c *Config) Spec(id string) (FarmSpec, bool) {
	for _, fs := range c.Farms {
		if fs.ID == id {
			return fs, true
		}
	}
	return FarmSpec{}, false
}
