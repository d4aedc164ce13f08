// Package main implements the pipetter CLI.
package main

import (
	"fmt"
	"os"
	"pipetter/internal/config"
	"pipetter/internal/logging"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	configPath string
	inputPath  string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pipetter",
	Short: "pipetter - batched liquid-transfer protocol runner",
	Long: `pipetter runs a liquid-transfer protocol on a simulated liquid handler.

Volumes come from a CSV file with one row per sample and one column per compound.
Each compound is transferred in batches of up to 8 tips: pick up, aspirate from the
compound's trough, dispense into the assay plate, drop tips. Every step is captured
as a frame and the run is rendered to an animated GIF.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if inputPath != "" {
			loaded.Protocol.Input = inputPath
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		cfg = loaded

		lc := cfg.Logging
		if err := logging.Initialize(logging.Config{
			Level:      lc.Level,
			DebugMode:  lc.DebugMode,
			Dir:        lc.Dir,
			File:       lc.File,
			JSONFormat: lc.JSONFormat(),
			Categories: lc.Categories,
			Console:    cmd.ErrOrStderr(),
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.BootDebug("config loaded from %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pipetter version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pipetter %s (config %s)\n", version, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pipetter.yaml", "Config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "Protocol CSV (overrides protocol.input)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging on the console")

	incubatorCmd.AddCommand(hexToBinaryCmd)
	incubatorCmd.AddCommand(baseTwelveCmd)
	incubatorCmd.AddCommand(validateLocationCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(incubatorCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pipetter: %v\n", err)
		os.Exit(1)
	}
}
