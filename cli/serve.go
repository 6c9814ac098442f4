package cli

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/relaycache/relaycache/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the binary-cache HTTP surface",
	Args:  cobra.NoArgs,
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	db, s, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	logger := newLogger()
	srv := server.New(s, cfg.CacheInfo, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("relaycache listening")
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
