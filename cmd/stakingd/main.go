package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/propsproject/props-protocol-sub000/config"
	"github.com/propsproject/props-protocol-sub000/core"
	"github.com/propsproject/props-protocol-sub000/observability"
	"github.com/propsproject/props-protocol-sub000/observability/logging"
	propsotel "github.com/propsproject/props-protocol-sub000/observability/otel"
	"github.com/propsproject/props-protocol-sub000/rpc"
	"github.com/propsproject/props-protocol-sub000/services/indexer"
	"github.com/propsproject/props-protocol-sub000/storage"
)

const serviceName = "stakingd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*genesisFlag) != "" {
		cfg.GenesisFile = *genesisFlag
	}

	logger := logging.Setup(serviceName, cfg.Environment, &logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stakingd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := propsotel.Init(ctx, propsotel.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     propsotel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if cfg.StorageEngine != config.StorageMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := storage.Open(cfg.StorageEngine, cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	metrics := observability.Staking()
	node, err := core.NewNode(db,
		core.WithLogger(logger),
		core.WithMetrics(metrics),
		core.WithChainID(cfg.ChainID),
		core.WithTracer(propsotel.Tracer()),
	)
	if err != nil {
		db.Close()
		return err
	}
	defer node.Close()

	if err := bootstrap(ctx, node, cfg.GenesisFile, logger); err != nil {
		return err
	}

	if cfg.Indexer.Enabled {
		stopIndexer, err := startIndexer(ctx, node, cfg.Indexer, logger)
		if err != nil {
			return err
		}
		defer stopIndexer()
	}

	var idem *rpc.IdempotencyStore
	if path := strings.TrimSpace(cfg.RPC.IdempotencyDB); path != "" {
		idem, err = rpc.OpenIdempotencyStore(path, time.Duration(cfg.RPC.IdempotencyTTL)*time.Second)
		if err != nil {
			return err
		}
		defer idem.Close()
		go pruneIdempotency(ctx, idem, logger)
	}

	secret := os.Getenv(cfg.AuthSecretEnv)
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("auth secret missing: set %s", cfg.AuthSecretEnv)
	}
	server, err := rpc.NewServer(node, rpc.Config{
		Auth:              rpc.AuthConfig{Secret: []byte(secret), Issuer: serviceName},
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		Idempotency:       idem,
	}, logger, metrics)
	if err != nil {
		return err
	}
	logger.Info("rpc listening", slog.String("addr", cfg.RPCAddress), slog.String("chain_id", node.ChainID().String()))
	return server.ListenAndServe(ctx, cfg.RPCAddress)
}

func bootstrap(ctx context.Context, node *core.Node, path string, logger *slog.Logger) error {
	done, err := node.Bootstrapped(ctx)
	if err != nil {
		return err
	}
	if done {
		seq, _ := node.Sequence(ctx)
		logger.Info("resuming from stored state", slog.Uint64("sequence", seq))
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("state is empty and no genesis file configured")
	}
	genesis, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	receipt, err := node.Bootstrap(ctx, genesis)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("genesis applied",
		slog.String("file", path),
		slog.Int("events", len(receipt.Events)),
		slog.String("digest", receipt.Digest.Hex()))
	return nil
}

func startIndexer(ctx context.Context, node *core.Node, cfg config.IndexerConfig, logger *slog.Logger) (func(), error) {
	db, err := indexer.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	ix := indexer.New(db, logger.With(slog.String("component", "indexer")))
	receipts, cancel := node.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ix.Run(ctx, receipts); err != nil {
			logger.Error("indexer stopped", slog.Any("error", err))
		}
	}()
	return func() {
		cancel()
		<-done
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func pruneIdempotency(ctx context.Context, store *rpc.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune()
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency keys pruned", slog.Int("removed", removed))
			}
		}
	}
}
