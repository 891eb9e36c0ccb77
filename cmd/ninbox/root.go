package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neuralinbox/neuralinbox/internal/config"
)

var (
	dbPath   string
	httpAddr string
)

var rootCmd = &cobra.Command{
	Use:   "ninbox",
	Short: "ninbox - personal knowledge capture service",
	Long: `Neural Inbox ingests whatever the user throws at it (text, voice,
links, files), classifies it into typed records and serves the companion
client over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("ninbox version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Flags beat config file and env.
		if cmd.Flags().Changed("db") {
			config.Set(config.KeyDBPath, dbPath)
		}
		if cmd.Flags().Changed("addr") {
			config.Set(config.KeyHTTPAddr, httpAddr)
		}
	},
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ninbox.db)")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "addr", "", "HTTP listen address (default: :8080)")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}
