package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Storage engines accepted by StorageEngine.
const (
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
)

// DefaultAuthSecretEnv names the variable holding the bearer token secret
// when the config does not say otherwise.
const DefaultAuthSecretEnv = "STAKINGD_AUTH_SECRET"

type Config struct {
	RPCAddress    string `toml:"RPCAddress"`
	DataDir       string `toml:"DataDir"`
	StorageEngine string `toml:"StorageEngine"`
	GenesisFile   string `toml:"GenesisFile"`
	ChainID       uint64 `toml:"ChainID"`
	Environment   string `toml:"Environment"`
	AuthSecretEnv string `toml:"AuthSecretEnv"`

	Log       LogConfig       `toml:"Log"`
	RPC       RPCConfig       `toml:"RPC"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
	Indexer   IndexerConfig   `toml:"Indexer"`
}

type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// RPCConfig bounds what a single caller can push through the HTTP API.
type RPCConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	// IdempotencyDB stores replay keys. Relative paths resolve under DataDir.
	IdempotencyDB   string `toml:"IdempotencyDB"`
	IdempotencyTTL  int    `toml:"IdempotencyTTLSeconds"`
	ReadTimeoutSecs int    `toml:"ReadTimeoutSeconds"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

type IndexerConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}
	cfg.resolvePaths()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the settings a fresh node starts with.
func Default() *Config {
	return &Config{
		RPCAddress:    "127.0.0.1:8545",
		DataDir:       "./staking-data",
		StorageEngine: StorageLevelDB,
		Environment:   "local",
		AuthSecretEnv: DefaultAuthSecretEnv,
		RPC: RPCConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			IdempotencyDB:     "idempotency.db",
			IdempotencyTTL:    24 * 60 * 60,
			ReadTimeoutSecs:   15,
		},
		Indexer: IndexerConfig{Driver: "sqlite", DSN: "indexer.db"},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return cfg, nil
}

func (c *Config) resolvePaths() {
	under := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.DataDir, p)
	}
	c.RPC.IdempotencyDB = under(c.RPC.IdempotencyDB)
	if strings.EqualFold(c.Indexer.Driver, "sqlite") {
		c.Indexer.DSN = under(c.Indexer.DSN)
	}
}

// StatePath is where the persistent state database lives.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
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
