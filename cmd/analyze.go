package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
)

var (
	analyzeJSON  bool
	analyzeLimit int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [OWNER/REPO]",
	Short: "Run a cached security analysis of the latest workflow run",
	Long: `Analyze the definition and logs of the most recent run of the first workflow
that has runs. Results are cached for seven days per workflow content and logs.`,
	Args: argsBetween(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := resolveRepo(firstArg(args))
		if err != nil {
			return err
		}

		svc, c, err := newSecurityService(newAggregator())
		if err != nil {
			return err
		}
		defer func() {
			if err := c.Close(); err != nil {
				env.logger.Warn("closing analysis cache", "error", err)
			}
		}()

		var opts []pipeline.Option
		if cmd.Flags().Changed("limit") {
			opts = append(opts, pipeline.WithRunLimit(analyzeLimit))
		}

		resp, err := svc.AnalyzeRepository(cmd.Context(), env.cfg.UserID, repo, opts...)
		if err != nil {
			return err
		}

		if analyzeJSON {
			return writeJSON(cmd.OutOrStdout(), resp)
		}
		printAnalysis(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the snapshot and analysis as JSON")
	analyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "L", pipeline.DefaultRunLimit, "Recent runs per workflow")
	rootCmd.AddCommand(analyzeCmd)
}
