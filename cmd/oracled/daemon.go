package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/convictiond/oracled/cache"
	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/config"
	"github.com/convictiond/oracled/fanout"
	"github.com/convictiond/oracled/gateway"
	"github.com/convictiond/oracled/ingest"
	"github.com/convictiond/oracled/kcalculator"
	"github.com/convictiond/oracled/lifecycle"
	"github.com/convictiond/oracled/persist"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/tokenscorer"
	"github.com/convictiond/oracled/types"
	"github.com/convictiond/oracled/walletscorer"

	"github.com/sirupsen/logrus"
)

// Defaults for the handful of worker tunables spec.md's configuration
// enumeration never names its own environment variable for; these mirror
// the values rivine's modules/consensus hard-codes for its own
// module-internal subscriber drain batch sizes, rather than exposing
// every knob as a flag.
const (
	scorerLeaseDuration  = 5 * time.Minute
	scorerMaxAttempts    = 5
	scorerMaxHistoryPages = 10
	walletStaleAfter     = time.Hour
	backupDefaultInterval = 6 * time.Hour
)

// runDaemon wires every component together, grounded on rivine's
// cmd/rivined/daemon.go: build the long-lived pieces in dependency order,
// register each background activity with one lifecycle.Group, start the
// HTTP server, then block until a stop signal unwinds everything through
// deferred Close/Stop calls.
func runDaemon(cfg config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("oracled: create data dir: %w", err)
	}

	logger, err := persist.NewFileLogger(
		persist.BuildInfo{Name: "oracled", Version: version},
		filepath.Join(cfg.DataDir, "oracled.log"),
		cfg.LogFormat,
		cfg.LogLevel == "debug",
	)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.WithField("component", "daemon")

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("oracled: open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("error closing store")
		}
	}()

	chain := chainadapter.NewHeliusAdapter(cfg.HeliusBaseURL, cfg.HeliusAPIKey, cfg.HeliusRatePerSecond, cfg.HeliusBurst)

	cacheNS, err := cache.NewNamespaces()
	if err != nil {
		return fmt.Errorf("oracled: build caches: %w", err)
	}

	minBalance, err := types.ParseAmount(cfg.MinBalance)
	if err != nil {
		return fmt.Errorf("oracled: parse MIN_BALANCE: %w", err)
	}
	kcalcCfg := kcalculator.Config{
		LaunchTs:         cfg.TokenLaunchTs,
		OGEarlyWindow:    time.Duration(cfg.OGEarlyWindowDays) * 24 * time.Hour,
		OGHoldThreshold:  time.Duration(cfg.OGHoldThresholdDays) * 24 * time.Hour,
		StaticMinBalance: minBalance,
	}
	kcalc := kcalculator.New(st, cacheNS.KMetric, kcalcCfg)

	tokenScorer, err := tokenscorer.New(st, chain, tokenscorer.Config{
		TopN:              cfg.TokenScorerTopN,
		Parallelism:       cfg.TokenScorerParallelism,
		Workers:           cfg.TokenScorerParallelism,
		LeaseDuration:     scorerLeaseDuration,
		MaxHistoryPages:   scorerMaxHistoryPages,
		EcosystemSuffixes: cfg.EcosystemSuffixes,
	}, log.WithField("component", "tokenscorer"))
	if err != nil {
		return fmt.Errorf("oracled: build token scorer: %w", err)
	}

	walletScorer := walletscorer.New(st, chain, walletscorer.Config{
		Workers:           cfg.WalletScorerWorkers,
		LeaseDuration:     scorerLeaseDuration,
		MaxAttempts:       scorerMaxAttempts,
		MaxHistoryPages:   scorerMaxHistoryPages,
		EcosystemSuffixes: cfg.EcosystemSuffixes,
		StalenessInterval: walletStaleAfter,
	}, log.WithField("component", "walletscorer"))

	hub := fanout.NewHub(cfg.WSConnCapPerKey, func(*http.Request) bool { return true }, log.WithField("component", "ws"))
	dispatcher := fanout.NewDispatcher(st, 50, 30*time.Second, log.WithField("component", "webhooks"))
	router := fanout.NewRouter(hub, dispatcher)

	threshold := func() types.Amount { return kcalculator.ThresholdFromStore(st, kcalcCfg, cfg.TokenDecimals) }
	pipeline := ingest.New(st, kcalc, router, threshold, ingest.Config{
		Mint:               cfg.TokenMint,
		KChangeThresholdPP: 1,
	}, log.WithField("component", "ingest"))

	group := lifecycle.NewGroup()
	cacheNS.RunSweeper(group)
	pipeline.RunPoller(group, chain, ingest.PollConfig{Interval: cfg.PullSyncInterval, BatchLimit: cfg.PullBatchLimit})
	walletScorer.RunWorkers(group)
	walletScorer.RunStalenessScanner(group)
	tokenScorer.RunWorkers(group)
	hub.RunHeartbeat(group)
	dispatcher.RunWorker(group)
	runBackupTicker(group, cfg, log.WithField("component", "backup"))

	gw := gateway.New(st, chain, kcalc, kcalcCfg, tokenScorer, pipeline, hub, dispatcher, cacheNS, cfg, log.WithField("component", "gateway"))
	gw.SetSyncTrigger(func() error {
		return pipeline.SyncNow(context.Background(), chain, cfg.PullBatchLimit)
	})

	srv := gw.NewServer(fmt.Sprintf(":%d", cfg.Port))
	servErrs := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("serving HTTP")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			servErrs <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("caught stop signal, shutting down")
	case err := <-servErrs:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during http server shutdown")
	}

	return group.Stop()
}

// runBackupTicker starts the scheduled database backup, registered with g
// so shutdown waits for an in-flight copy to finish.
func runBackupTicker(g *lifecycle.Group, cfg config.Config, log *logrus.Entry) {
	interval := cfg.BackupInterval
	if interval <= 0 {
		interval = backupDefaultInterval
	}
	if err := g.Add(); err != nil {
		return
	}
	go func() {
		defer g.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		dbPath := filepath.Join(cfg.DataDir, "oracle.db")
		backupDir := filepath.Join(cfg.DataDir, "backups")
		for {
			select {
			case <-ticker.C:
				if _, err := persist.BackupNow(dbPath, backupDir, cfg.BackupRetentionCount, time.Now()); err != nil {
					log.WithError(err).Warn("scheduled backup failed")
				}
			case <-g.StopChan():
				return
			}
		}
	}()
}
