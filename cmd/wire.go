package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cli/go-gh/v2/pkg/repository"

	"github.com/ryo246912/gh-actions-scan/internal/analyzer"
	"github.com/ryo246912/gh-actions-scan/internal/cache"
	"github.com/ryo246912/gh-actions-scan/internal/config"
	"github.com/ryo246912/gh-actions-scan/internal/github"
	"github.com/ryo246912/gh-actions-scan/internal/pipeline"
	"github.com/ryo246912/gh-actions-scan/internal/security"
)

func newGitHubResolver() *github.Resolver {
	gh := env.cfg.GitHub
	retry := github.DefaultRetryConfig()
	retry.MaxRetries = gh.MaxRetries

	return github.NewResolver(github.Options{
		Host:              gh.Host,
		Token:             gh.Token,
		RequestsPerSecond: gh.RequestsPerSecond,
		Retry:             retry,
		MaxLogBytes:       gh.MaxLogBytes,
		Logger:            env.logger,
	})
}

func newAggregator() *pipeline.Aggregator {
	gh := newGitHubResolver()
	resolver := pipeline.ResolverFunc(func(ctx context.Context, userID string, repo repository.Repository) (pipeline.Provider, error) {
		client, err := gh.ClientFor(ctx, userID, repo)
		if err != nil {
			return nil, err
		}
		return client, nil
	})

	agg := env.cfg.Aggregation
	return pipeline.NewAggregator(resolver, pipeline.Config{
		RunLimit:       agg.RunLimit,
		MaxConcurrency: agg.MaxConcurrency,
		Timeout:        agg.Timeout,
	}, env.logger)
}

func openCache() (*cache.Cache, error) {
	if err := os.MkdirAll(filepath.Dir(env.cfg.Cache.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	var (
		store cache.Store
		err   error
	)
	switch env.cfg.Cache.Backend {
	case config.BackendBadger:
		store, err = cache.OpenBadgerStore(env.cfg.Cache.Path)
	default:
		store, err = cache.NewSQLiteStore(env.cfg.Cache.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s analysis cache at %s: %w", env.cfg.Cache.Backend, env.cfg.Cache.Path, err)
	}
	env.logger.Debug("analysis cache opened", "backend", env.cfg.Cache.Backend, "path", env.cfg.Cache.Path)
	return cache.New(store, cache.WithLogger(env.logger)), nil
}

func newAnalyzer() (*analyzer.OpenAI, error) {
	a := env.cfg.Analyzer
	return analyzer.NewOpenAI(analyzer.Config{
		APIKey:      a.APIKey,
		BaseURL:     a.BaseURL,
		Model:       a.Model,
		Temperature: a.Temperature,
		MaxLogChars: a.MaxLogChars,
		Logger:      env.logger,
	})
}

// newSecurityService wires the orchestrator; the returned cache must be closed by the caller.
// Without a usable analyzer the service still answers from the cache.
func newSecurityService(agg *pipeline.Aggregator) (*security.Service, *cache.Cache, error) {
	var ai security.Analyzer
	openAI, err := newAnalyzer()
	if err != nil {
		env.logger.Warn("security analyzer unavailable, serving cached analyses only", "error", err)
		ai = security.Unavailable(err)
	} else {
		ai = openAI
	}

	c, err := openCache()
	if err != nil {
		return nil, nil, err
	}
	return security.NewService(agg, c, ai, env.logger), c, nil
}
