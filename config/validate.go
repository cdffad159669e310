package config

import (
	"fmt"
	"strings"
)

var (
	MaxRequestsPerSecond = float64(10_000)
)

func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	switch c.StorageEngine {
	case StorageMemory:
	case StorageLevelDB, StorageBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("config: DataDir required for %s storage", c.StorageEngine)
		}
	default:
		return fmt.Errorf("config: unknown StorageEngine %q", c.StorageEngine)
	}
	if c.RPC.RequestsPerSecond <= 0 || c.RPC.RequestsPerSecond > MaxRequestsPerSecond {
		return fmt.Errorf("rpc: RequestsPerSecond must be in (0, %g]", MaxRequestsPerSecond)
	}
	if c.RPC.Burst <= 0 {
		return fmt.Errorf("rpc: Burst <= 0")
	}
	if c.RPC.IdempotencyTTL < 0 {
		return fmt.Errorf("rpc: IdempotencyTTLSeconds < 0")
	}
	if c.Indexer.Enabled {
		switch strings.ToLower(c.Indexer.Driver) {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer: unknown driver %q", c.Indexer.Driver)
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required")
		}
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	return nil
}
