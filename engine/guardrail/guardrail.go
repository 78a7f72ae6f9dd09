// Package guardrail decides whether a query should be answered at all.
// Checks run in order and the first failure short-circuits with an
// abstain message that is safe to show the user.
package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/semantic"
)

// DefaultKeywords mark a query as being about transit.
var DefaultKeywords = []string{
	"bus", "route", "stop", "eta", "when", "arrive", "reach",
	"delay", "traffic", "driver", "location",
}

// Registry is the part of the fleet registry the entity check needs.
type Registry interface {
	BusExists(ctx context.Context, busID string) (bool, error)
	RouteExists(ctx context.Context, routeID string) (bool, error)
}

// Retriever scores corpus documents against a query.
type Retriever interface {
	RetrieveWithScores(ctx context.Context, query string, k int) []semantic.Scored
}

// Options configures the relevance and domain checks.
type Options struct {
	MinSimilarity float64
	TopK          int
	Keywords      []string
}

// DefaultOptions returns the thresholds for the default hash embedder.
func DefaultOptions() Options {
	return Options{MinSimilarity: semantic.HashMinSimilarity, TopK: 3, Keywords: DefaultKeywords}
}

// Pass is returned when every check succeeds. Docs holds the documents the
// relevance check retrieved so later stages need not retrieve again.
type Pass struct {
	Docs []semantic.Scored
}

type check struct {
	name string
	run  func(ctx context.Context, q string, pass *Pass) *domain.AbstainError
}

// Guardrail runs the check chain.
type Guardrail struct {
	registry  Registry
	retriever Retriever
	opts      Options
	logger    *slog.Logger
	checks    []check
}

// New creates a Guardrail. A nil registry skips the entity check and a nil
// retriever skips the relevance check.
func New(registry Registry, retriever Retriever, opts Options, logger *slog.Logger) *Guardrail {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = DefaultKeywords
	}
	g := &Guardrail{registry: registry, retriever: retriever, opts: opts, logger: logger}
	g.checks = []check{
		{"blank", g.checkBlank},
		{"domain", g.checkDomain},
		{"entity", g.checkEntities},
		{"relevance", g.checkRelevance},
	}
	return g
}

// Evaluate runs the checks in order. A non-nil error is always an
// *domain.AbstainError.
func (g *Guardrail) Evaluate(ctx context.Context, query string) (Pass, error) {
	var pass Pass
	for _, c := range g.checks {
		if ab := c.run(ctx, query, &pass); ab != nil {
			g.logger.Info("guardrail abstain", "check", c.name, "value", ab.Value, "reason", ab.Wrapped)
			return Pass{}, ab
		}
	}
	return pass, nil
}

func (g *Guardrail) checkBlank(_ context.Context, q string, _ *Pass) *domain.AbstainError {
	if strings.TrimSpace(q) == "" {
		return domain.NewAbstainError("blank", "", domain.MsgNoInformation, domain.ErrBlankQuery)
	}
	return nil
}

func (g *Guardrail) checkDomain(_ context.Context, q string, _ *Pass) *domain.AbstainError {
	lower := strings.ToLower(q)
	for _, kw := range g.opts.Keywords {
		if strings.Contains(lower, kw) {
			return nil
		}
	}
	if domain.HasEntityID(q) {
		return nil
	}
	return domain.NewAbstainError("domain", "", domain.MsgOutOfDomain, domain.ErrOutOfDomain)
}

func (g *Guardrail) checkEntities(ctx context.Context, q string, _ *Pass) *domain.AbstainError {
	if g.registry == nil {
		return nil
	}
	for _, id := range domain.BusIDs(q) {
		if !g.exists(ctx, "bus", id, g.registry.BusExists) {
			return domain.NewAbstainError("entity", id, domain.UnknownEntityMessage("bus", id), domain.ErrUnknownEntity)
		}
	}
	for _, id := range domain.RouteIDs(q) {
		if !g.exists(ctx, "route", id, g.registry.RouteExists) {
			return domain.NewAbstainError("entity", id, domain.UnknownEntityMessage("route", id), domain.ErrUnknownEntity)
		}
	}
	return nil
}

// exists reports false only on a definite miss. Lookup errors and panics
// count as found.
func (g *Guardrail) exists(ctx context.Context, kind, id string, lookup func(context.Context, string) (bool, error)) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("guardrail: entity lookup panicked", "kind", kind, "id", id, "panic", fmt.Sprint(r))
			found = true
		}
	}()
	ok, err := lookup(ctx, id)
	if err != nil {
		g.logger.Warn("guardrail: entity lookup failed", "kind", kind, "id", id, "err", err)
		return true
	}
	return ok
}

func (g *Guardrail) checkRelevance(ctx context.Context, q string, pass *Pass) *domain.AbstainError {
	if g.retriever == nil {
		return nil
	}
	docs := g.retriever.RetrieveWithScores(ctx, q, g.opts.TopK)
	if len(docs) == 0 {
		return nil
	}
	if best := docs[0].Score; best < g.opts.MinSimilarity {
		return domain.NewAbstainError("relevance", fmt.Sprintf("%.3f", best), domain.MsgLowRelevance, domain.ErrLowRelevance)
	}
	pass.Docs = docs
	return nil
}
