// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Config holds the full server configuration.
type Config struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	EnableCORS *bool  `json:"enableCors,omitempty"`
	DataDir    string `json:"dataDir,omitempty"`
	LogLevel   string `json:"logLevel,omitempty"`
	LogPretty  bool   `json:"logPretty,omitempty"`
}

// Default returns the baseline configuration before any file or
// environment overrides.
func Default() *Config {
	enable := true
	return &Config{
		Host:       "127.0.0.1",
		Port:       3000,
		EnableCORS: &enable,
		DataDir:    GetPaths().StoragePath(),
		LogLevel:   "INFO",
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Defaults
// 2. Global config (~/.config/agentdeck/agentdeck.json[c])
// 3. Project config (<directory>/agentdeck.json[c])
// 4. Environment variables (AGENTDECK_*)
//
// A .env file in the working directory is loaded first so config files
// and overrides can reference its variables.
func Load(directory string) (*Config, error) {
	if directory != "" {
		// Missing .env is the normal case.
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	cfg := Default()

	globalDir := GetPaths().Config
	loadFile(filepath.Join(globalDir, "agentdeck.json"), cfg)
	loadFile(filepath.Join(globalDir, "agentdeck.jsonc"), cfg)
	if directory != "" {
		loadFile(filepath.Join(directory, "agentdeck.json"), cfg)
		loadFile(filepath.Join(directory, "agentdeck.jsonc"), cfg)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFile merges a single JSONC config file into cfg. A missing file is
// silently skipped.
func loadFile(path string, cfg *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return
	}
	merge(cfg, &fileCfg)
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func merge(dst, src *Config) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.EnableCORS != nil {
		dst.EnableCORS = src.EnableCORS
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogPretty {
		dst.LogPretty = true
	}
}

// applyEnvOverrides applies AGENTDECK_* environment variables, which win
// over every file source.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTDECK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AGENTDECK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("AGENTDECK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("AGENTDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTDECK_CORS"); v != "" {
		enabled := v == "1" || v == "true"
		cfg.EnableCORS = &enabled
	}
}

// CORSEnabled reports the effective CORS setting.
func (c *Config) CORSEnabled() bool {
	return c.EnableCORS == nil || *c.EnableCORS
}
