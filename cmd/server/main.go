package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	lintcmd "github.com/emberleaf/emberleaf/internal/cmd/lint"
	storycmd "github.com/emberleaf/emberleaf/internal/cmd/story"
)

var rootCmd = &cobra.Command{
	Use:   "emberleaf",
	Short: "Interactive fiction platform server and content tools",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the story HTTP API server",
	// Flags are parsed by the shared entrypoint so env and flag handling
	// stay consistent across commands.
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := flag.NewFlagSet("serve", flag.ContinueOnError)
		cfg, err := storycmd.ParseConfig(fs, args)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return storycmd.Run(ctx, cfg)
	},
}

var lintCmd = &cobra.Command{
	Use:                "lint",
	Short:              "Validate authored story content",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := flag.NewFlagSet("lint", flag.ContinueOnError)
		cfg, err := lintcmd.ParseConfig(fs, args)
		if err != nil {
			return err
		}
		return lintcmd.Run(cmd.Context(), cfg, os.Stdout)
	},
}

func main() {
	log.SetPrefix("[EMBERLEAF] ")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}
