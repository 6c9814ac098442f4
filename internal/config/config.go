// Package config loads relaycache's configuration from embedded
// defaults, an optional YAML file, and environment variable overrides,
// in that precedence order. Grounded on
// original_source/src/settings.rs's three-tier config::Config builder
// (embedded YAML defaults, File::with_name(config_file).required(false),
// Environment::with_prefix(...).separator("_")), reimplemented with
// gopkg.in/yaml.v3 and a manual env walk in the spirit of the teacher's
// internal/config/config.go mergeConfig.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "RELAYCACHE_"
const envSeparator = "__"

// defaultYAML mirrors settings.rs's embedded default string.
const defaultYAML = `
store:
  path: ./cache
  compress_blobs: false
  sign_private_key_path: ""
  use_local_daemon: true
  local_daemon_socket: /run/relaycache/daemon.sock
  builders: []
  remotes: []
server:
  host: localhost
  port: 8080
cache_info:
  store_dir: /nix/store
  want_mass_query: true
  priority: 50
`

// Store configures the object database, the peer list the ingestion
// engine tries first, and the local daemon it falls back to.
type Store struct {
	Path               string   `yaml:"path"`
	CompressBlobs      bool     `yaml:"compress_blobs"`
	SignPrivateKeyPath string   `yaml:"sign_private_key_path"`
	UseLocalDaemon     bool     `yaml:"use_local_daemon"`
	LocalDaemonSocket  string   `yaml:"local_daemon_socket"`
	Builders           []string `yaml:"builders"`
	Remotes            []string `yaml:"remotes"`
}

// Server configures the HTTP binary-cache surface.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CacheInfo configures the /nix-cache-info response. WantMassQuery
// defaults to true, matching spec.md §6's literal example rather than
// the original Rust implementation's false default — see DESIGN.md's
// Open Question decision.
type CacheInfo struct {
	StoreDir      string `yaml:"store_dir"`
	WantMassQuery bool   `yaml:"want_mass_query"`
	Priority      int    `yaml:"priority"`
}

// Config is the fully merged configuration.
type Config struct {
	Store     Store     `yaml:"store"`
	Server    Server    `yaml:"server"`
	CacheInfo CacheInfo `yaml:"cache_info"`
}

// Load builds a Config from embedded defaults, then configFile if it
// exists (configFile == "" is treated as "file not provided", matching
// File::with_name(...).required(false)), then RELAYCACHE_-prefixed
// environment variables with "__" as the nesting separator (e.g.
// RELAYCACHE_SERVER__PORT=9090).
func Load(configFile string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaultYAML), cfg); err != nil {
		return nil, fmt.Errorf("config: parse embedded defaults: %w", err)
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", configFile, err)
			}
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", configFile, err)
			}
			mergeConfig(cfg, &fileCfg, data)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// mergeConfig overlays fields that fileCfg's source YAML actually set.
// Using the raw YAML text (rather than relying on zero values, which
// can't distinguish "not set" from "explicitly false/0") mirrors
// config.go's intent of letting an override file win field-by-field
// without clobbering defaults it's silent on.
func mergeConfig(dst, src *Config, raw []byte) {
	var present map[string]any
	_ = yaml.Unmarshal(raw, &present)

	if section, ok := present["store"].(map[string]any); ok {
		if _, ok := section["path"]; ok {
			dst.Store.Path = src.Store.Path
		}
		if _, ok := section["compress_blobs"]; ok {
			dst.Store.CompressBlobs = src.Store.CompressBlobs
		}
		if _, ok := section["sign_private_key_path"]; ok {
			dst.Store.SignPrivateKeyPath = src.Store.SignPrivateKeyPath
		}
		if _, ok := section["use_local_daemon"]; ok {
			dst.Store.UseLocalDaemon = src.Store.UseLocalDaemon
		}
		if _, ok := section["local_daemon_socket"]; ok {
			dst.Store.LocalDaemonSocket = src.Store.LocalDaemonSocket
		}
		if _, ok := section["builders"]; ok {
			dst.Store.Builders = src.Store.Builders
		}
		if _, ok := section["remotes"]; ok {
			dst.Store.Remotes = src.Store.Remotes
		}
	}
	if section, ok := present["server"].(map[string]any); ok {
		if _, ok := section["host"]; ok {
			dst.Server.Host = src.Server.Host
		}
		if _, ok := section["port"]; ok {
			dst.Server.Port = src.Server.Port
		}
	}
	if section, ok := present["cache_info"].(map[string]any); ok {
		if _, ok := section["store_dir"]; ok {
			dst.CacheInfo.StoreDir = src.CacheInfo.StoreDir
		}
		if _, ok := section["want_mass_query"]; ok {
			dst.CacheInfo.WantMassQuery = src.CacheInfo.WantMassQuery
		}
		if _, ok := section["priority"]; ok {
			dst.CacheInfo.Priority = src.CacheInfo.Priority
		}
	}
}

// applyEnvOverrides walks RELAYCACHE_SECTION__FIELD style environment
// variables, e.g. RELAYCACHE_STORE__PATH, RELAYCACHE_SERVER__PORT.
func applyEnvOverrides(cfg *Config) {
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key, value := kv[:eq], kv[eq+1:]
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envPrefix)
		parts := strings.SplitN(rest, envSeparator, 2)
		if len(parts) != 2 {
			continue
		}
		section, field := strings.ToLower(parts[0]), strings.ToLower(parts[1])
		applyEnvField(cfg, section, field, value)
	}
}

func applyEnvField(cfg *Config, section, field, value string) {
	switch section {
	case "store":
		switch field {
		case "path":
			cfg.Store.Path = value
		case "compress_blobs":
			cfg.Store.CompressBlobs = parseBool(value)
		case "sign_private_key_path":
			cfg.Store.SignPrivateKeyPath = value
		case "use_local_daemon":
			cfg.Store.UseLocalDaemon = parseBool(value)
		case "local_daemon_socket":
			cfg.Store.LocalDaemonSocket = value
		case "builders":
			cfg.Store.Builders = strings.Fields(value)
		case "remotes":
			cfg.Store.Remotes = strings.Fields(value)
		}
	case "server":
		switch field {
		case "host":
			cfg.Server.Host = value
		case "port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Server.Port = n
			}
		}
	case "cache_info":
		switch field {
		case "store_dir":
			cfg.CacheInfo.StoreDir = value
		case "want_mass_query":
			cfg.CacheInfo.WantMassQuery = parseBool(value)
		case "priority":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.CacheInfo.Priority = n
			}
		}
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
