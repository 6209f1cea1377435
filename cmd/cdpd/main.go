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

	"cdpchain/config"
	"cdpchain/core"
	"cdpchain/mempool"
	"cdpchain/observability/logging"
	"cdpchain/rpc"
	"cdpchain/services/indexer"
	"cdpchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml, .yaml or .yml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv("CDP_ENV"))
	if env == "" {
		env = cfg.Log.Env
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    cfg.Log.Service,
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("cdpd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg config.Chain) (storage.Database, error) {
	switch cfg.DBBackend {
	case "memory":
		return storage.NewMemDB(), nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		return storage.NewLevelDB(cfg.DataDir)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg.Chain)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	proc, err := core.NewProcessor(db, cfg, logger)
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}
	if err := proc.InitGenesis(cfg.Genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	if cfg.Indexer.Enabled {
		idx, err := indexer.Open(cfg.Indexer.DSN, logger.With(slog.String("component", "indexer")))
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer idx.Close()
		proc.OnCommit(idx.CommitHook)
	}

	pool := mempool.NewPool(cfg.Chain.MempoolLimit, mempool.Quota{ReservedBPS: cfg.Chain.PriorityReservedBPS})
	server := rpc.NewServer(proc, pool, cfg.RPC, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	head := proc.Head()
	logger.Info("cdpd started",
		slog.Uint64("height", head.Height),
		slog.String("stable", cfg.Chain.StableAsset),
		slog.String("db", cfg.Chain.DBBackend))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	p := newProducer(proc, pool, cfg.Chain.MaxTxsPerBlock, logger)
	interval := time.Duration(cfg.Chain.BlockIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case err := <-errCh:
			return fmt.Errorf("api server: %w", err)
		case <-ticker.C:
			if _, err := p.produce(); err != nil {
				return err
			}
		}
	}
}
