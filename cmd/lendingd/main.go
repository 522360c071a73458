package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rwalend/config"
	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/native/lending"
	"rwalend/native/oracle"
	"rwalend/native/token"
	"rwalend/native/vault"
	"rwalend/observability/logging"
	"rwalend/observability/metrics"
	statelending "rwalend/state/lending"
	"rwalend/storage"
)

func main() {
	configPath := flag.String("config", "", "path to lendingd.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.Service, cfg.Log.Env, logging.Rotation{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	moduleAddr, err := resolveAddress(cfg.ModuleAddress, "lending-pool-custody")
	if err != nil {
		log.Error("resolve module address", "error", err)
		os.Exit(1)
	}

	roles := common.NewRoleRegistry()
	if err := grantRole(roles, common.RoleAdmin, cfg.Admin); err != nil {
		log.Error("configure admin", "error", err)
		os.Exit(1)
	}
	if err := grantRole(roles, common.RoleLiquidator, cfg.Liquidator); err != nil {
		log.Error("configure liquidator", "error", err)
		os.Exit(1)
	}

	ledger := token.NewLedger()
	prices := oracle.NewAggregator(cfg.Oracle.Priority, time.Duration(cfg.Oracle.MaxAgeSeconds)*time.Second)
	prices.Register("manual", oracle.NewManual())

	engine := lending.NewEngine(statelending.NewStore(db), ledger, prices, moduleAddr, cfg.Lending)
	for _, ac := range cfg.Assets {
		if ac.Decimals > 0 {
			engine.RegisterAssetDecimals(ac.Symbol, ac.Decimals)
		}
	}
	for _, vc := range cfg.Vaults {
		vaultAddr, err := resolveAddress(vc.Address, "vault-"+vc.StakedAsset)
		if err != nil {
			log.Error("resolve vault address", "asset", vc.StakedAsset, "error", err)
			os.Exit(1)
		}
		v := vault.NewVault(ledger, vc.Asset, vc.StakedAsset, cfg.Lending.StableAsset, vaultAddr)
		v.SetPoolAddress(moduleAddr)
		engine.RegisterVault(vc.StakedAsset, v)
		if vc.Decimals > 0 {
			engine.RegisterAssetDecimals(vc.StakedAsset, vc.Decimals)
		}
		log.Info("vault registered", "asset", vc.Asset, "staked_asset", vc.StakedAsset)
	}

	module := lending.NewModule(engine, roles, log)
	total, err := module.GetTotalLiquidity()
	if err != nil {
		log.Error("read pool liquidity", "error", err)
		os.Exit(1)
	}
	log.Info("lending pool ready",
		"module_address", moduleAddr.String(),
		"total_liquidity", total.String(),
		"rate_policy", cfg.Lending.RatePolicy,
	)

	metrics.Lending()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", cfg.MetricsAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("metrics shutdown", "error", err)
	}
	log.Info("shutdown complete")
}

// resolveAddress decodes a configured bech32 address, or derives a stable
// placeholder custody address from the label when none is configured.
func resolveAddress(configured, label string) (crypto.Address, error) {
	if configured != "" {
		return crypto.DecodeAddress(configured)
	}
	raw := make([]byte, 20)
	copy(raw, label)
	return crypto.NewAddress(crypto.RWLPrefix, raw), nil
}

func grantRole(roles *common.RoleRegistry, role, addr string) error {
	if addr == "" {
		return nil
	}
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return fmt.Errorf("decode %s address: %w", role, err)
	}
	roles.Grant(role, decoded)
	return nil
}
