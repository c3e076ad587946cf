package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"guildquest/internal/config"
	"guildquest/internal/db"
	"guildquest/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "guildquest",
	Short: "Guild quest server with peer-reviewed quest completion",
	Long: `guildquest serves the guild, quest and peer-review HTTP API.

Members submit proof for a guild quest; fellow members rate it. Once enough
members have rated and the approval rate clears the threshold, the submission
completes and the submitter is credited with the quest's points.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logCfg := cfg.Log
		if verbose {
			logCfg.Level = "debug"
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initDB connects to Postgres and migrates the schema.
func initDB() error {
	if err := db.Init(cfg); err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	logger.Info("database ready")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the config file (empty for env only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Running without a subcommand serves.
	rootCmd.RunE = runServe
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
