package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/relaycache/relaycache/internal/ingest"
	"github.com/relaycache/relaycache/internal/pkgpath"
)

var addSingle bool

var addCmd = &cobra.Command{
	Use:   "add <package-path>",
	Short: "Ingest a package and its full dependency closure",
	Args:  cobra.ExactArgs(1),
	Run:   runAdd,
}

func init() {
	addCmd.Flags().BoolVar(&addSingle, "single", false, "ingest only this package, skipping its dependency closure")
}

func runAdd(cmd *cobra.Command, args []string) {
	p, err := pkgpath.Parse(args[0])
	if err != nil {
		log.Fatalf("invalid package path: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, s, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	engine := ingest.New(s, newLogger())
	var result ingest.Result
	if addSingle {
		result, err = engine.IngestSingle(context.Background(), p)
	} else {
		result, err = engine.Ingest(context.Background(), p)
	}
	if err != nil {
		log.Fatalf("ingest %s: %v", p.Name, err)
	}
	fmt.Printf("added %d packages, result commit %s\n", result.PackagesAdded, result.Commit)
}
