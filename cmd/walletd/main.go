// walletd is the multi-chain wallet daemon: it loads per-chain
// accounts, talks to chain nodes and block explorers, and exposes the
// wallet engine over JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/swapdeck/walletd/internal/adapter"
	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/config"
	"github.com/swapdeck/walletd/internal/explorer"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/internal/rpc"
	"github.com/swapdeck/walletd/internal/storage"
	"github.com/swapdeck/walletd/internal/sweep"
	"github.com/swapdeck/walletd/pkg/logging"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default <data-dir>/config.yaml)")
		dataDir     = flag.String("data-dir", "", "data directory override")
		logLevel    = flag.String("log-level", "", "log level override (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("walletd", version)
		return
	}

	if err := run(*configPath, *dataDir, *logLevel); err != nil {
		logging.Fatal("daemon failed", "err", err)
	}
}

func run(configPath, dataDir, logLevel string) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, ".walletd", "config.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log := logging.New(&logging.Config{Level: cfg.Logging.Level})
	logging.SetDefault(log)
	log.Info("starting walletd", "version", version, "config", configPath)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	cache := explorer.NewCache()
	feeLog := adapter.NewFeeLegLog(log)
	accounts := keys.NewAccountStore()
	registry := adapter.NewRegistry()
	coordinators := make(map[chain.ID]*sweep.Coordinator)

	var endpoints []explorer.Endpoint
	for _, id := range chain.List() {
		if cc := cfg.Chain(id); cc != nil && cc.Enabled && cc.ExplorerURL != "" {
			params, _ := chain.Get(id)
			endpoints = append(endpoints, explorer.Endpoint{
				Name:    params.Explorer,
				BaseURL: cc.ExplorerURL,
				APIKey:  cc.ExplorerAPIKey,
			})
		}
	}
	expClient := explorer.NewClient(endpoints, cache, log)

	for _, id := range chain.List() {
		cc := cfg.Chain(id)
		if cc == nil || !cc.Enabled {
			continue
		}
		params, _ := chain.Get(id)
		params.AdminFee = cc.FeePolicy()

		var ad adapter.Adapter
		switch params.Family {
		case chain.FamilyEVM:
			if cc.NodeURL == "" {
				log.Warn("evm chain missing node url, skipping", "chain", id)
				continue
			}
			node, err := ethclient.Dial(cc.NodeURL)
			if err != nil {
				log.Warn("node dial failed, skipping chain", "chain", id, "err", err)
				continue
			}
			ad = adapter.NewEVMAdapter(params, node, expClient, accounts, cache, feeLog, log)
		case chain.FamilyUTXO:
			ad = adapter.NewUTXOAdapter(params, expClient, accounts, cache, feeLog, log)
		}

		registry.Register(ad)
		coordinators[id] = sweep.NewCoordinator(params, accounts, store, ad, log)
		log.Info("chain enabled", "chain", id, "family", params.Family, "adminFee", params.AdminFee != nil)
	}

	// Restore previously loaded accounts.
	ctx := context.Background()
	for id, coordinator := range coordinators {
		acct, err := coordinator.LoadStored(ctx)
		switch {
		case errors.Is(err, storage.ErrKeyNotFound):
			continue
		case err != nil:
			log.Warn("stored login failed", "chain", id, "err", err)
		default:
			log.Info("account restored", "chain", id, "address", acct.Address(), "sweepState", coordinator.State())
		}
	}

	var server *rpc.Server
	if cfg.API.Enabled {
		server = rpc.NewServer(cfg.API.Listen, log)
		service := rpc.NewWalletService(registry, coordinators, accounts, feeLog, log)
		service.RegisterHandlers(server)
		if err := server.Start(); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Warn("rpc shutdown", "err", err)
		}
	}
	return nil
}
