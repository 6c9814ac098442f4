package cli

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relaycache/relaycache/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit relaycache configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <section.field>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.field> <value>",
	Short: "Persist a configuration value to the config file",
	Args:  cobra.ExactArgs(2),
	Run:   runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	value, err := getConfigField(cfg, args[0])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(value)
}

func runConfigSet(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := setConfigField(cfg, args[0], args[1]); err != nil {
		log.Fatal(err)
	}

	path := configFile
	if path == "" {
		path = "relaycache.yaml"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("write config: %v", err)
	}
}

func getConfigField(cfg *config.Config, key string) (string, error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid config key %q (expected section.field)", key)
	}
	switch parts[0] {
	case "store":
		switch parts[1] {
		case "path":
			return cfg.Store.Path, nil
		case "compress_blobs":
			return fmt.Sprintf("%t", cfg.Store.CompressBlobs), nil
		case "use_local_daemon":
			return fmt.Sprintf("%t", cfg.Store.UseLocalDaemon), nil
		case "local_daemon_socket":
			return cfg.Store.LocalDaemonSocket, nil
		}
	case "server":
		switch parts[1] {
		case "host":
			return cfg.Server.Host, nil
		case "port":
			return fmt.Sprintf("%d", cfg.Server.Port), nil
		}
	case "cache_info":
		switch parts[1] {
		case "store_dir":
			return cfg.CacheInfo.StoreDir, nil
		case "want_mass_query":
			return fmt.Sprintf("%t", cfg.CacheInfo.WantMassQuery), nil
		case "priority":
			return fmt.Sprintf("%d", cfg.CacheInfo.Priority), nil
		}
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

func setConfigField(cfg *config.Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid config key %q (expected section.field)", key)
	}
	switch parts[0] {
	case "store":
		switch parts[1] {
		case "path":
			cfg.Store.Path = value
			return nil
		case "compress_blobs":
			cfg.Store.CompressBlobs = value == "true"
			return nil
		case "use_local_daemon":
			cfg.Store.UseLocalDaemon = value == "true"
			return nil
		case "local_daemon_socket":
			cfg.Store.LocalDaemonSocket = value
			return nil
		}
	case "server":
		switch parts[1] {
		case "host":
			cfg.Server.Host = value
			return nil
		}
	case "cache_info":
		switch parts[1] {
		case "store_dir":
			cfg.CacheInfo.StoreDir = value
			return nil
		case "want_mass_query":
			cfg.CacheInfo.WantMassQuery = value == "true"
			return nil
		}
	}
	return fmt.Errorf("unknown or read-only config key %q", key)
}
