package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
)

var (
	snapshotLimit int
	snapshotJSON  bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [OWNER/REPO]",
	Short: "Aggregate workflows, recent runs, jobs and logs",
	Args:  argsBetween(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveRepo(firstArg(args))
		if err != nil {
			return err
		}

		var opts []pipeline.Option
		if cmd.Flags().Changed("limit") {
			opts = append(opts, pipeline.WithRunLimit(snapshotLimit))
		}

		snap, err := newAggregator().Snapshot(cmd.Context(), env.cfg.UserID, repo, opts...)
		if err != nil {
			return err
		}

		if snapshotJSON {
			return writeJSON(cmd.OutOrStdout(), snap)
		}
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().IntVarP(&snapshotLimit, "limit", "L", pipeline.DefaultRunLimit, "Recent runs per workflow")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Print the snapshot as JSON")
	rootCmd.AddCommand(snapshotCmd)
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
