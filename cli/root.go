// Package cli implements relaycache's command-line surface with
// github.com/spf13/cobra, grounded on the teacher's cli/cli.go root
// command wiring (rootCmd, Execute, one file per command group).
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const relaycacheVersion = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "relaycache",
	Short: "relaycache is a content-addressed package cache",
	Long:  "relaycache mirrors a binary-cache HTTP protocol over a version-controlled object database.",
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("relaycache %s\n", relaycacheVersion)
			os.Exit(0)
		}
		cmd.Help()
	},
}

var version bool

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().BoolVar(&version, "version", false, "print the relaycache version")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
