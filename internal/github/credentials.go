package github

import (
	"context"
	"log/slog"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/cli/go-gh/v2/pkg/repository"
)

// TokenLookup returns a token for a host and the source it came from
type TokenLookup func(host string) (token string, source string)

// Resolver hands out repository-scoped clients for a user
type Resolver struct {
	opts   Options
	lookup TokenLookup
	logger *slog.Logger
}

// NewResolver creates a resolver. An explicit opts.Token takes precedence over
// the gh CLI credential store.
func NewResolver(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{opts: opts, lookup: auth.TokenForHost, logger: logger}
}

// WithTokenLookup replaces the gh credential store lookup
func (r *Resolver) WithTokenLookup(lookup TokenLookup) *Resolver {
	r.lookup = lookup
	return r
}

// ClientFor returns a client authenticated for repo on behalf of userID
func (r *Resolver) ClientFor(ctx context.Context, userID string, repo repository.Repository) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host := repo.Host
	if host == "" {
		host = r.opts.Host
	}
	if host == "" {
		host = "github.com"
	}

	opts := r.opts
	opts.Host = host
	source := "config"
	if opts.Token == "" && r.lookup != nil {
		opts.Token, source = r.lookup(host)
	}

	r.logger.Debug("resolved GitHub credentials",
		"user", userID,
		"host", host,
		"source", source,
		"repository", repo.Owner+"/"+repo.Name)

	return NewClient(repo, opts)
}
