package main

import (
	"flag"
	"os"

	"github.com/waveprint/waveprint/internal/config"
	"github.com/waveprint/waveprint/internal/engine"
	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/index"
	"github.com/waveprint/waveprint/internal/store"
	"github.com/waveprint/waveprint/pkg/logger"
)

var (
	configPath string
	port       int
	indexPath  string
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("WAVEPRINT_CONFIG", ""), "Path to YAML config file")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.StringVar(&indexPath, "index", "", "Path to index database (overrides config)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}

	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		log.Fatalf("Failed to open index at %s: %v", cfg.Index.Path, err)
	}
	defer idx.Close()

	contentStore, err := store.NewDiskStore(cfg.Store.ContentDir)
	if err != nil {
		log.Fatalf("Failed to open content store: %v", err)
	}
	ledger := store.NewFileLedger(cfg.Store.LedgerPath)

	eng := engine.New(cfg.EngineConfig(), fingerprint.NewExtractor(cfg.ExtractorConfig()), idx)

	server := NewServer(eng, contentStore, ledger, cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
