package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cli/go-gh/v2/pkg/repository"
	"github.com/spf13/cobra"

	"github.com/ryo246912/gh-actions-scan/internal/config"
	"github.com/ryo246912/gh-actions-scan/internal/git"
	"github.com/ryo246912/gh-actions-scan/internal/metrics"
	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/telemetry"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

var (
	repoFlag    string
	configPath  string
	logLevel    string
	logFormat   string
	timeoutFlag time.Duration
	metricsAddr string
	traceMode   string
)

// env holds what PersistentPreRunE set up for the running command
var env struct {
	cfg      config.Config
	logger   *slog.Logger
	shutdown []func(context.Context) error
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gh-actions-scan",
	Short: "Scan GitHub Actions pipelines",
	Long: `Aggregate GitHub Actions workflows, runs, jobs and logs into a pipeline snapshot,
build job dependency graphs, and run a cached AI security analysis of the latest run.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

// Execute adds all child commands to the root command and exits with a code
// that reflects the kind of failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_ = teardown()
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(exitCode(err))
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&repoFlag, "repo", "R", "", "Repository as [HOST/]OWNER/REPO (default: current directory)")
	pf.StringVar(&configPath, "config", "", "Config file (default: ~/.config/gh-actions-scan/config.toml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	pf.DurationVar(&timeoutFlag, "timeout", 0, "Bound on a whole aggregation (e.g. 90s)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.StringVar(&traceMode, "trace", "", "Trace exporter: none or stdout")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &models.Error{Kind: models.KindInvalidInput, Message: err.Error()}
	})
}

func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return &models.Error{Kind: models.KindInvalidInput, Message: "loading config", Err: err}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("timeout") {
		cfg.Aggregation.Timeout = timeoutFlag
	}
	if flags.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = metricsAddr
	}
	if flags.Changed("trace") {
		cfg.Telemetry.Trace = traceMode
	}
	if err := cfg.Validate(); err != nil {
		return &models.Error{Kind: models.KindInvalidInput, Message: "invalid flags", Err: err}
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	env.cfg = cfg
	env.logger = logger
	env.shutdown = nil

	shutdownTracing, err := telemetry.Init(cmd.Context(), cfg.Telemetry.Trace, version, os.Stderr)
	if err != nil {
		return err
	}
	env.shutdown = append(env.shutdown, shutdownTracing)

	if cfg.Telemetry.MetricsAddr != "" {
		srv := metrics.Serve(cfg.Telemetry.MetricsAddr)
		logger.Info("serving metrics", "addr", cfg.Telemetry.MetricsAddr)
		env.shutdown = append(env.shutdown, srv.Shutdown)
	}

	logger.Debug("configuration loaded", "path", path, "cache_backend", cfg.Cache.Backend, "github_host", cfg.GitHub.Host)
	return nil
}

// teardown flushes telemetry; it is safe to call more than once
func teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, fn := range env.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	env.shutdown = nil
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, &models.Error{Kind: models.KindInvalidInput, Message: "invalid log level", Err: err}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// exitCode maps a failure to the process exit status
func exitCode(err error) int {
	kind, ok := models.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case models.KindInvalidInput:
		return 2
	case models.KindAuthentication:
		return 3
	case models.KindNotFound:
		return 4
	case models.KindAnalysis:
		return 5
	case models.KindMalformedGraph:
		return 6
	default:
		return 1
	}
}

// resolveRepo picks the repository from the positional argument, the --repo
// flag or the git remote of the current directory, in that order.
func resolveRepo(positional string) (string, error) {
	if positional != "" {
		return positional, nil
	}
	if repoFlag != "" {
		return repoFlag, nil
	}
	current, err := repository.Current()
	if err != nil {
		// go-gh needs the git binary; reading .git/config directly still works without it
		detected, detectErr := git.Detect(".")
		if detectErr != nil {
			return "", &models.Error{
				Kind:    models.KindInvalidInput,
				Message: "no repository given and none detected in the current directory; pass OWNER/REPO or --repo",
				Err:     errors.Join(err, detectErr),
			}
		}
		current = detected
	}
	name := current.Owner + "/" + current.Name
	if current.Host != "" && !strings.EqualFold(current.Host, "github.com") {
		name = current.Host + "/" + name
	}
	return name, nil
}

// argsBetween is cobra.RangeArgs with a classified error
func argsBetween(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return &models.Error{Kind: models.KindInvalidInput, Message: err.Error()}
		}
		return nil
	}
}
