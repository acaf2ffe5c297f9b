// Package providers builds the provider registry described by a config.
package providers

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/rlch/inlay"
	"github.com/rlch/inlay/providers/exprhint"
	"github.com/rlch/inlay/providers/upstream"
)

// Set is a registry together with the providers it owns.
type Set struct {
	Registry *inlay.Registry
	Expr     *exprhint.Provider
	Upstream []*upstream.Client
}

// Build registers the expression provider, when enabled, and starts every
// upstream server that handles one of languages. An empty languages list
// starts all of them.
func Build(ctx context.Context, logger *zap.Logger, cfg *inlay.Config, rootDir string, languages ...string) (*Set, error) {
	set := &Set{Registry: inlay.NewRegistry()}

	if cfg.ExprEnabled() {
		set.Expr = exprhint.New(logger.Named("expr"), exprhint.OptionsFrom(cfg.Expr))
		set.Registry.Register(inlay.AnyLanguage, set.Expr)
	}

	for _, u := range upstreamFor(cfg, languages) {
		client, err := upstream.Start(ctx, logger, u, rootDir)
		if err != nil {
			_ = set.Close()

			return nil, fmt.Errorf("start upstream %s: %w", u.Name, err)
		}

		set.Upstream = append(set.Upstream, client)

		for _, lang := range u.Languages {
			set.Registry.Register(lang, client)
		}
	}

	return set, nil
}

// upstreamFor returns the configured servers handling any of languages, all
// of them when languages is empty.
func upstreamFor(cfg *inlay.Config, languages []string) []inlay.UpstreamConfig {
	if len(languages) == 0 {
		return cfg.Upstream
	}

	var out []inlay.UpstreamConfig

	for _, lang := range languages {
		for _, u := range cfg.UpstreamFor(lang) {
			if !slices.ContainsFunc(out, func(o inlay.UpstreamConfig) bool { return o.Name == u.Name }) {
				out = append(out, u)
			}
		}
	}

	return out
}

// Reconfigure applies a reloaded config to providers that support it.
func (s *Set) Reconfigure(cfg *inlay.Config) {
	if s.Expr != nil {
		s.Expr.SetOptions(exprhint.OptionsFrom(cfg.Expr))
	}
}

// Close shuts down every upstream server.
func (s *Set) Close() error {
	var errs []error

	for _, c := range s.Upstream {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close upstream %s: %w", c.Name(), err))
		}
	}

	if s.Expr != nil {
		s.Expr.Close()
	}

	return errors.Join(errs...)
}
