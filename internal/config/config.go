package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBDSN    string
	HTTPAddr string
	LogLevel string
	RedisDSN string

	// raw secrets kept in-memory only; never log these
	APIKey       string
	ExportToken  string // token handed to DiscordChatExporter
	DiscordToken string // bot token used for channel discovery

	CORSOrigins []string

	// import/export pipeline
	ImportDir     string
	ExportDir     string
	ExporterPath  string
	SubnetsFile   string
	ServerID      int64
	ExportTimeout time.Duration
	ExportEvery   time.Duration

	// object storage archive of processed export files (R2/S3 compatible)
	ArchiveEndpoint string
	ArchiveBucket   string
	ArchiveKeysRaw  string
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:           os.Getenv("DB_DSN"),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
		RedisDSN:        getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		APIKey:          os.Getenv("API_KEY"),
		ExportToken:     os.Getenv("DCE_TOKEN"),
		DiscordToken:    os.Getenv("DISCORD_BOT_TOKEN"),
		ImportDir:       getenvDefault("IMPORT_DIR", "./exports"),
		ExportDir:       getenvDefault("EXPORT_DIR", "./exports"),
		ExporterPath:    getenvDefault("DCE_PATH", "DiscordChatExporter.Cli"),
		SubnetsFile:     getenvDefault("SUBNETS_FILE", "config/subnets.yaml"),
		ArchiveEndpoint: getenvDefault("ARCHIVE_ENDPOINT", ""),
		ArchiveBucket:   getenvDefault("ARCHIVE_BUCKET", ""),
		ArchiveKeysRaw:  os.Getenv("ARCHIVE_KEYS"),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}

	if v := os.Getenv("DISCORD_SERVER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return Config{}, errors.New("DISCORD_SERVER_ID must be a snowflake")
		}
		cfg.ServerID = id
	}

	var err error
	cfg.ExportTimeout, err = durationEnv("EXPORT_TIMEOUT_MINUTES", 180*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.ExportEvery, err = durationEnv("EXPORT_INTERVAL_MINUTES", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	// light validation: archive keys must be valid json if set
	if cfg.ArchiveKeysRaw != "" {
		var tmp any
		if err := json.Unmarshal([]byte(cfg.ArchiveKeysRaw), &tmp); err != nil {
			return Config{}, errors.New("ARCHIVE_KEYS must be valid json")
		}
	}

	// parse CORS origins
	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	mins, err := strconv.Atoi(v)
	if err != nil || mins <= 0 {
		return 0, errors.New(k + " must be a positive number of minutes")
	}
	return time.Duration(mins) * time.Minute, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
