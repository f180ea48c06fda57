package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/discover"
	"github.com/madofuller/discordscraper/internal/logging"
	"github.com/madofuller/discordscraper/internal/subnets"
)

func main() {
	_ = godotenv.Load()

	out := flag.String("out", "", "write discovered channels to this file (defaults to SUBNETS_FILE)")
	dryRun := flag.Bool("dry-run", false, "print discovered channels without writing the config")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	if cfg.DiscordToken == "" {
		logger.Error("missing_discord_bot_token")
		os.Exit(1)
	}
	if cfg.ServerID == 0 {
		logger.Error("missing_discord_server_id")
		os.Exit(1)
	}

	d, err := discover.New(logger, cfg.DiscordToken)
	if err != nil {
		logger.Error("discord_session_failed", "error", err)
		os.Exit(1)
	}

	entries, err := d.Channels(strconv.FormatInt(cfg.ServerID, 10))
	if err != nil {
		logger.Error("discovery_failed", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%v\n", e.ChannelID, e.Name, e.Tags)
		}
		return
	}

	target := cfg.SubnetsFile
	if *out != "" {
		target = *out
	}

	// keep descriptions and tags an operator already curated by hand
	existing, err := subnets.Load(target)
	if err != nil {
		logger.Error("subnets_load_failed", "file", target, "error", err)
		os.Exit(1)
	}
	byID := make(map[string]subnets.Entry, len(existing))
	for _, e := range existing {
		byID[e.ChannelID] = e
	}
	for i, e := range entries {
		if old, ok := byID[e.ChannelID]; ok {
			if old.Description != "" {
				entries[i].Description = old.Description
			}
			if len(old.Tags) > 0 {
				entries[i].Tags = old.Tags
			}
		}
	}

	if err := subnets.Save(target, entries); err != nil {
		logger.Error("subnets_save_failed", "file", target, "error", err)
		os.Exit(1)
	}

	logger.Info("subnets_written", "file", target, "channels", len(entries))
}
