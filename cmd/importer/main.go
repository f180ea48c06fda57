package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/db"
	"github.com/madofuller/discordscraper/internal/importer"
	"github.com/madofuller/discordscraper/internal/logging"
	"github.com/madofuller/discordscraper/internal/store"
	"github.com/madofuller/discordscraper/internal/storage"
	"github.com/madofuller/discordscraper/internal/subnets"
)

// archiveKeys is the shape of the ARCHIVE_KEYS env var.
type archiveKeys struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "", "directory of export files to import (defaults to IMPORT_DIR)")
	archiveDir := flag.String("archive-dir", "", "move processed files into a local archive directory instead of object storage")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	importDir := cfg.ImportDir
	if *dir != "" {
		importDir = *dir
	}
	logger.Info("starting_importer", "import_dir", importDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("interrupt_received")
		cancel()
	}()

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(ctx); err != nil {
		logger.Error("migrate_failed", "error", err)
		os.Exit(1)
	}

	entries, err := subnets.Load(cfg.SubnetsFile)
	if err != nil {
		logger.Error("subnets_load_failed", "file", cfg.SubnetsFile, "error", err)
		os.Exit(1)
	}
	mapping := subnets.Mapping(entries)
	logger.Info("subnets_loaded", "channels", len(mapping))

	opts := importer.Options{
		FallbackServerID: cfg.ServerID,
		Subnets:          importer.SubnetMapping(mapping),
	}

	switch {
	case *archiveDir != "":
		opts.Archiver = storage.NewLocalArchive(*archiveDir)
	case cfg.ArchiveBucket != "" && cfg.ArchiveKeysRaw != "":
		var keys archiveKeys
		if err := json.Unmarshal([]byte(cfg.ArchiveKeysRaw), &keys); err != nil {
			logger.Error("archive_keys_invalid", "error", err)
			os.Exit(1)
		}
		client, err := storage.NewS3Client(storage.S3Config{
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     keys.AccessKeyID,
			SecretAccessKey: keys.SecretAccessKey,
			Bucket:          cfg.ArchiveBucket,
			Region:          keys.Region,
		})
		if err != nil {
			logger.Error("archive_client_failed", "error", err)
			os.Exit(1)
		}
		opts.Archiver = client
	}

	im := importer.New(logger, store.New(logger, dbConn), opts)

	summary, err := im.Run(ctx, importDir)
	if err != nil {
		logger.Error("import_run_failed", "error", err)
		os.Exit(1)
	}

	logger.Info("import_finished",
		"files", summary.Files,
		"files_failed", summary.FilesFailed,
		"imported", summary.Imported,
		"skipped_duplicate", summary.SkippedDuplicate,
		"skipped_malformed", summary.SkippedMalformed,
		"failed", summary.Failed,
	)

	if summary.FilesFailed > 0 || summary.Failed > 0 {
		os.Exit(1)
	}
}
