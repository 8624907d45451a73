package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/inquora/distill/internal/app"
	"github.com/inquora/distill/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Consolidate raw interview entities into a knowledge graph",
	Long: `distill deduplicates entities extracted from business interviews,
merges them with consensus scoring, discovers cross-entity relationships
and surfaces corpus-level patterns. Every run is auditable and reversible.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.toml", "path to TOML config file")
	rootCmd.AddCommand(runCmd, rollbackCmd, runsCmd, validateCmd)
}

// initApp builds the engine stack for one command invocation.
func initApp(cmd *cobra.Command) (*app.App, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(cmd.Context(), cfg)
}
