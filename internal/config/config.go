// Package config loads the registry configuration from an optional YAML
// file with environment-variable overrides. A .env file in the working
// directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/waveprint/waveprint/internal/engine"
	"github.com/waveprint/waveprint/internal/fingerprint"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Index struct {
		Path string `yaml:"path"`
	} `yaml:"index"`

	Store struct {
		ContentDir string `yaml:"content_dir"`
		LedgerPath string `yaml:"ledger_path"`
	} `yaml:"store"`

	Engine struct {
		DuplicateThreshold float64 `yaml:"duplicate_threshold"`
		FlagThreshold      float64 `yaml:"flag_threshold"`
		OffsetBinMs        int     `yaml:"offset_bin_ms"`
		TopK               int     `yaml:"top_k"`
	} `yaml:"engine"`

	Audio struct {
		SampleRate int `yaml:"sample_rate"`
	} `yaml:"audio"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Index.Path = "waveprint.sqlite3"
	cfg.Store.ContentDir = "content"
	cfg.Store.LedgerPath = "ledger.jsonl"
	ec := engine.DefaultConfig()
	cfg.Engine.DuplicateThreshold = ec.DuplicateThreshold
	cfg.Engine.FlagThreshold = ec.FlagThreshold
	cfg.Engine.OffsetBinMs = ec.OffsetBinMs
	cfg.Engine.TopK = ec.TopK
	cfg.Audio.SampleRate = fingerprint.DefaultConfig().SampleRate
	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then WAVEPRINT_* environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("WAVEPRINT_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WAVEPRINT_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("WAVEPRINT_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		c.Server.AllowedOrigins = parts
	}
	if v := os.Getenv("WAVEPRINT_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("WAVEPRINT_CONTENT_DIR"); v != "" {
		c.Store.ContentDir = v
	}
	if v := os.Getenv("WAVEPRINT_LEDGER_PATH"); v != "" {
		c.Store.LedgerPath = v
	}
	if v := os.Getenv("WAVEPRINT_DUPLICATE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WAVEPRINT_DUPLICATE_THRESHOLD: %w", err)
		}
		c.Engine.DuplicateThreshold = f
	}
	if v := os.Getenv("WAVEPRINT_FLAG_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WAVEPRINT_FLAG_THRESHOLD: %w", err)
		}
		c.Engine.FlagThreshold = f
	}
	if v := os.Getenv("WAVEPRINT_OFFSET_BIN_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WAVEPRINT_OFFSET_BIN_MS: %w", err)
		}
		c.Engine.OffsetBinMs = n
	}
	if v := os.Getenv("WAVEPRINT_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WAVEPRINT_TOP_K: %w", err)
		}
		c.Engine.TopK = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Engine.FlagThreshold < 0 || c.Engine.FlagThreshold > 1 {
		return fmt.Errorf("flag threshold %.3f out of [0,1]", c.Engine.FlagThreshold)
	}
	if c.Engine.DuplicateThreshold <= 0 || c.Engine.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate threshold %.3f out of (0,1]", c.Engine.DuplicateThreshold)
	}
	if c.Engine.FlagThreshold >= c.Engine.DuplicateThreshold {
		return fmt.Errorf("flag threshold %.3f must be below duplicate threshold %.3f",
			c.Engine.FlagThreshold, c.Engine.DuplicateThreshold)
	}
	if c.Engine.OffsetBinMs <= 0 {
		return fmt.Errorf("offset bin must be positive, got %d", c.Engine.OffsetBinMs)
	}
	if c.Engine.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.Engine.TopK)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	return nil
}

// EngineConfig converts the loaded settings into the decision engine's form.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		DuplicateThreshold: c.Engine.DuplicateThreshold,
		FlagThreshold:      c.Engine.FlagThreshold,
		OffsetBinMs:        c.Engine.OffsetBinMs,
		TopK:               c.Engine.TopK,
	}
}

// ExtractorConfig returns the fingerprint parameters for the configured
// sample rate.
func (c *Config) ExtractorConfig() fingerprint.Config {
	fc := fingerprint.DefaultConfig()
	fc.SampleRate = c.Audio.SampleRate
	return fc
}
