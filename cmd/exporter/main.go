package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/madofuller/discordscraper/internal/checkpoint"
	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/exporter"
	"github.com/madofuller/discordscraper/internal/logging"
	"github.com/madofuller/discordscraper/internal/subnets"
)

const denylistFile = ".skip_forbidden_channels.txt"

func main() {
	_ = godotenv.Load()

	newOnly := flag.Bool("new-only", false, "only export channels that have no export file yet")
	once := flag.Bool("once", false, "run a single export cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	if cfg.ExportToken == "" {
		logger.Error("missing_dce_token")
		os.Exit(1)
	}

	entries, err := subnets.Load(cfg.SubnetsFile)
	if err != nil {
		logger.Error("subnets_load_failed", "file", cfg.SubnetsFile, "error", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		logger.Error("no_channels_configured", "file", cfg.SubnetsFile)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		logger.Error("export_dir_create_failed", "dir", cfg.ExportDir, "error", err)
		os.Exit(1)
	}

	denylist, err := exporter.LoadDenylist(filepath.Join(cfg.ExportDir, denylistFile))
	if err != nil {
		logger.Error("denylist_load_failed", "error", err)
		os.Exit(1)
	}

	runner := exporter.NewRunner(logger, cfg.ExporterPath, cfg.ExportToken, cfg.ExportDir, cfg.ExportTimeout)
	tracker := checkpoint.New(logger, cfg.ExportDir)

	// the export tool is a heavy subprocess per channel; one channel
	// every few seconds keeps us clear of Discord's rate limits
	limiter := rate.NewLimiter(rate.Every(5*time.Second), 1)

	sched := exporter.NewScheduler(logger, runner, tracker, denylist, limiter, cfg.ExportDir)

	policy := exporter.PolicyResume
	if *newOnly {
		policy = exporter.PolicyNewOnly
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("interrupt_received")
		cancel()
	}()

	logger.Info("starting_exporter",
		"channels", len(entries),
		"export_dir", cfg.ExportDir,
		"denylisted", denylist.Len(),
		"interval", cfg.ExportEvery.String(),
	)

	runCycle := func() {
		if _, err := sched.RunCycle(ctx, entries, policy); err != nil {
			logger.Error("export_cycle_failed", "error", err)
		}
	}

	runCycle()
	if *once {
		return
	}

	ticker := time.NewTicker(cfg.ExportEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("exporter_stopped")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}
