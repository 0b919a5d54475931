package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
)

var (
	cacheStatsJSON bool
	cacheAllUsers  bool
	pruneSchedule  string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count cached analyses",
	Args:  argsBetween(0, 0),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		userID := env.cfg.UserID
		if cacheAllUsers {
			userID = ""
		}
		stats, err := c.Stats(cmd.Context(), userID)
		if err != nil {
			return err
		}

		if cacheStatsJSON {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", boldStyle.Render("analysis cache"), dimStyle.Render(env.cfg.Cache.Backend+" at "+env.cfg.Cache.Path))
		fmt.Fprintf(out, "total   %s\n", humanize.Comma(int64(stats.Total)))
		fmt.Fprintf(out, "active  %s\n", humanize.Comma(int64(stats.Active)))
		fmt.Fprintf(out, "expired %s\n", humanize.Comma(int64(stats.Expired)))
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired analyses, once or on a cron schedule",
	Example: `  gh-actions-scan cache prune
  gh-actions-scan cache prune --schedule "0 3 * * *"`,
	Args: argsBetween(0, 0),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		prune := func(ctx context.Context) {
			n, err := c.PruneExpired(ctx)
			if err != nil {
				env.logger.Error("pruning analysis cache", "error", err)
				return
			}
			env.logger.Info("pruned expired analyses", "deleted", n)
		}

		if pruneSchedule == "" {
			n, err := c.PruneExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s expired %s\n", humanize.Comma(int64(n)), plural(n, "analysis", "analyses"))
			return nil
		}

		return runPruneSchedule(cmd.Context(), pruneSchedule, prune)
	},
}

// runPruneSchedule runs prune on the cron schedule until ctx is done
func runPruneSchedule(ctx context.Context, spec string, prune func(context.Context)) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return &models.Error{Kind: models.KindInvalidInput, Message: "invalid cron schedule " + strconv.Quote(spec), Err: err}
	}

	c := cron.New(cron.WithParser(parser))
	c.Schedule(schedule, cron.FuncJob(func() { prune(ctx) }))
	c.Start()
	env.logger.Info("scheduled cache pruning", "schedule", spec, "next", schedule.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate REPO WORKFLOW_PATH",
	Short: "Drop every cached analysis of a workflow",
	Long: `Drop every cached analysis of a workflow. REPO is the numeric repository id
or OWNER/REPO, which is resolved to its id through the API.`,
	Example: `  gh-actions-scan cache invalidate 123456 .github/workflows/ci.yml
  gh-actions-scan cache invalidate octo/demo .github/workflows/ci.yml`,
	Args: argsBetween(2, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID, err := repositoryID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Invalidate(cmd.Context(), repoID, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached %s for %s\n", n, plural(n, "analysis", "analyses"), args[1])
		return nil
	},
}

// repositoryID returns ident if it is numeric, otherwise the id of the named repository
func repositoryID(ctx context.Context, ident string) (string, error) {
	if id, err := strconv.ParseInt(ident, 10, 64); err == nil && id > 0 {
		return ident, nil
	}

	repo, err := pipeline.ParseRepository(ident)
	if err != nil {
		return "", err
	}
	client, err := newGitHubResolver().ClientFor(ctx, env.cfg.UserID, repo)
	if err != nil {
		return "", &models.Error{Kind: models.KindAuthentication, Message: "no usable credentials", Repository: ident, Err: err}
	}
	info, err := client.GetRepository(ctx)
	if err != nil {
		return "", &models.Error{Kind: models.KindNotFound, Message: "repository lookup failed", Repository: ident, Err: err}
	}
	return strconv.FormatInt(info.ID, 10), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	cacheStatsCmd.Flags().BoolVar(&cacheStatsJSON, "json", false, "Print the counts as JSON")
	cacheStatsCmd.Flags().BoolVar(&cacheAllUsers, "all-users", false, "Count entries of every user")
	cachePruneCmd.Flags().StringVar(&pruneSchedule, "schedule", "", "Cron expression; keep running and prune on this schedule")

	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}
