package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ryo246912/gh-actions-scan/internal/graph"
	"github.com/ryo246912/gh-actions-scan/internal/models"
)

var (
	graphJSON   bool
	graphStrict bool
)

var graphCmd = &cobra.Command{
	Use:   "graph [OWNER/REPO] RUN_ID",
	Short: "Show the job dependency graph and execution order of a run",
	Args:  argsBetween(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoArg, runArg := "", args[0]
		if len(args) == 2 {
			repoArg, runArg = args[0], args[1]
		}

		runID, err := strconv.ParseInt(runArg, 10, 64)
		if err != nil || runID <= 0 {
			return &models.Error{Kind: models.KindInvalidInput, Message: "RUN_ID must be a positive integer, got " + strconv.Quote(runArg)}
		}
		repo, err := resolveRepo(repoArg)
		if err != nil {
			return err
		}

		var opts []graph.Option
		if graphStrict {
			opts = append(opts, graph.RejectCycles())
		}

		g, err := newAggregator().WorkflowGraph(cmd.Context(), env.cfg.UserID, repo, runID, opts...)
		if err != nil {
			return err
		}

		if graphJSON {
			return writeJSON(cmd.OutOrStdout(), g)
		}
		printGraph(cmd.OutOrStdout(), g)
		return nil
	},
}

func init() {
	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "Print the graph as JSON")
	graphCmd.Flags().BoolVar(&graphStrict, "strict", false, "Fail when the jobs form a dependency cycle")
	rootCmd.AddCommand(graphCmd)
}
