package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every package present in the cache",
	Args:  cobra.NoArgs,
	Run:   runList,
}

func runList(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	db, s, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	hashes, err := s.ListPackages()
	if err != nil {
		log.Fatalf("list packages: %v", err)
	}
	for _, h := range hashes {
		fmt.Println(h)
	}
}
