package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddress = ":8680"
	DefaultDataDir       = "./isovault-data"
	DefaultGovernance    = "0x0000000000000000000000000000000000001000"
)

type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	SnapshotFile  string    `toml:"SnapshotFile,omitempty"`
	LogEnv        string    `toml:"LogEnv"`
	Governance    string    `toml:"Governance"`
	GMX           GMX       `toml:"gmx"`
	Plutus        Plutus    `toml:"plutus"`
	Markets       []Market  `toml:"markets"`
	Telemetry     Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh data directory.
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		LogEnv:        "dev",
		Governance:    DefaultGovernance,
		GMX:           DefaultGMX(),
		Plutus:        DefaultPlutus(),
		Markets:       DefaultMarkets(),
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Governance) == "" {
		c.Governance = DefaultGovernance
	}
	c.GMX.applyDefaults()
	if c.Plutus.ExitFeeBps == 0 {
		c.Plutus = DefaultPlutus()
	}
	if c.Markets == nil {
		c.Markets = DefaultMarkets()
	}
}

// SnapshotPath resolves the registry snapshot location, defaulting to a file
// inside the data directory.
func (c *Config) SnapshotPath() string {
	if c.SnapshotFile != "" {
		return c.SnapshotFile
	}
	return filepath.Join(c.DataDir, "registry.snapshot")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
