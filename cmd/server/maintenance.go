package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"guildquest/internal/api"
	"guildquest/internal/db"
	"guildquest/internal/review"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initDB(); err != nil {
			return err
		}
		return db.Close()
	},
}

var reconcileGuild string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild submission tallies from the rating ledger",
	Long: `Recomputes every submission's approval and rejection counters from its
ratings, resolves pending submissions the counters should already have
resolved, and grants any reward a completed submission is missing.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileGuild, "guild", "", "only reconcile submissions of this guild")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer db.Close()

	gw := review.NewGateway(db.DB, api.ReviewPolicy(cfg))
	reports, err := gw.ReconcileAll(cmd.Context(), reconcileGuild)
	repaired := 0
	for _, r := range reports {
		if !r.Changed() {
			continue
		}
		repaired++
		logger.Info("submission repaired",
			zap.String("submission_id", r.SubmissionID),
			zap.String("status_before", string(r.StatusBefore)),
			zap.String("status_after", string(r.StatusAfter)),
			zap.Bool("counters_fixed", r.CountersFixed),
			zap.Bool("rewarded", r.Reward != nil))
	}
	logger.Info("reconcile finished", zap.Int("checked", len(reports)), zap.Int("repaired", repaired))
	return err
}
