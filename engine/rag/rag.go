// Package rag orchestrates the answer pipeline. It checks the response
// cache, runs the guardrail, retrieves context, plans, executes the plan's
// tools and composes the final sentence.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/guardrail"
	"github.com/WessleyAI/transit-mvp/engine/semantic"
	"github.com/WessleyAI/transit-mvp/pkg/fn"
	"github.com/WessleyAI/transit-mvp/pkg/kv"
	"github.com/WessleyAI/transit-mvp/pkg/metrics"
)

// CacheTTL is how long a composed answer is served from cache.
const CacheTTL = 60 * time.Second

// Gate decides whether a query is answered.
type Gate interface {
	Evaluate(ctx context.Context, query string) (guardrail.Pass, error)
}

// Retriever returns context documents for a query.
type Retriever interface {
	RetrieveTopK(ctx context.Context, query string, k int) []domain.Document
}

// Planner turns a query into a plan.
type Planner interface {
	Plan(ctx context.Context, query string, docs []string) domain.Plan
}

// Executor runs a plan.
type Executor interface {
	Execute(ctx context.Context, plan domain.Plan, query string, docs []string) domain.Trace
}

// Composer writes the answer sentence.
type Composer interface {
	Compose(ctx context.Context, query string, docs []string, trace domain.Trace) string
}

// Config wires a Service. Gate, Retriever and Cache are optional.
type Config struct {
	Gate      Gate
	Retriever Retriever
	Planner   Planner
	Executor  Executor
	Composer  Composer
	Cache     *kv.Cache[domain.Answer]
	TopK      int
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Service is the answer pipeline.
type Service struct {
	gate      Gate
	retriever Retriever
	planner   Planner
	executor  Executor
	composer  Composer
	cache     *kv.Cache[domain.Answer]
	topK      int
	logger    *slog.Logger
	record    func(outcome string, d time.Duration)
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	s := &Service{
		gate:      cfg.Gate,
		retriever: cfg.Retriever,
		planner:   cfg.Planner,
		executor:  cfg.Executor,
		composer:  cfg.Composer,
		cache:     cfg.Cache,
		topK:      cfg.TopK,
		logger:    cfg.Logger,
		record:    func(string, time.Duration) {},
	}
	if cfg.Metrics != nil {
		answers := cfg.Metrics.Counter("transit_answers_total", "Answered queries by outcome", "outcome")
		dur := cfg.Metrics.Histogram("transit_answer_duration_seconds", "End-to-end answer latency", nil, "outcome")
		s.record = func(outcome string, d time.Duration) {
			answers.WithLabelValues(outcome).Inc()
			dur.WithLabelValues(outcome).Observe(d.Seconds())
		}
	}
	return s
}

// Outcomes recorded per answer.
const (
	OutcomeCached      = "cached"
	OutcomeAbstain     = "abstain"
	OutcomeAnswered    = "answered"
	OutcomeCatastrophe = "error"
)

// Answer runs the pipeline for query. It always returns an answer; internal
// failures become a generic apology with an empty trace and context.
func (s *Service) Answer(ctx context.Context, query string) (ans *domain.Answer) {
	start := time.Now()
	outcome := OutcomeAnswered
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rag: pipeline panicked", "panic", fmt.Sprint(r))
			ans, outcome = domain.NewAbstain(domain.MsgCatastrophic), OutcomeCatastrophe
		}
		s.record(outcome, time.Since(start))
	}()

	key := domain.NormalizeQuery(query)
	if cached, ok := s.cache.Get(ctx, key); ok && cached.Answer != "" {
		s.logger.Debug("rag: response cache hit", "key", key)
		outcome = OutcomeCached
		return &cached
	}

	ans, outcome = s.run(ctx, query)
	if outcome != OutcomeCatastrophe {
		s.cache.Set(ctx, key, *ans)
	}
	return ans
}

func (s *Service) run(ctx context.Context, query string) (*domain.Answer, string) {
	pass, err := s.guard(ctx, query).Unwrap()
	if err != nil {
		var ab *domain.AbstainError
		if errors.As(err, &ab) {
			return domain.NewAbstain(ab.Message), OutcomeAbstain
		}
		s.logger.Error("rag: guardrail failed", "err", err)
		return domain.NewAbstain(domain.MsgCatastrophic), OutcomeCatastrophe
	}

	docs := semantic.Texts(pass.Docs)
	if len(docs) == 0 {
		docs, _ = s.retrieve(ctx, query).Unwrap()
	}
	if docs == nil {
		docs = []string{}
	}

	plan, _ := s.plan(ctx, planInput{query, docs}).Unwrap()
	trace, _ := s.execute(ctx, execInput{plan, query, docs}).Unwrap()
	text, _ := s.compose(ctx, composeInput{query, docs, trace}).Unwrap()

	s.logger.Info("rag: answered", "tools", plan.Tools(), "context_docs", len(docs))
	return &domain.Answer{Answer: text, Trace: trace, Context: docs}, OutcomeAnswered
}

type planInput struct {
	query string
	docs  []string
}

type execInput struct {
	plan  domain.Plan
	query string
	docs  []string
}

type composeInput struct {
	query string
	docs  []string
	trace domain.Trace
}

func (s *Service) guard(ctx context.Context, query string) fn.Result[guardrail.Pass] {
	if s.gate == nil {
		return fn.Ok(guardrail.Pass{})
	}
	return fn.TracedStage("rag.guardrail", func(ctx context.Context, q string) fn.Result[guardrail.Pass] {
		return fn.FromPair(s.gate.Evaluate(ctx, q))
	})(ctx, query)
}

func (s *Service) retrieve(ctx context.Context, query string) fn.Result[[]string] {
	if s.retriever == nil {
		return fn.Ok([]string{})
	}
	return fn.TracedStage("rag.retrieve", func(ctx context.Context, q string) fn.Result[[]string] {
		docs := s.retriever.RetrieveTopK(ctx, q, s.topK)
		return fn.Ok(fn.Map(docs, func(d domain.Document) string { return d.Text }))
	})(ctx, query)
}

func (s *Service) plan(ctx context.Context, in planInput) fn.Result[domain.Plan] {
	return fn.TracedStage("rag.plan", func(ctx context.Context, in planInput) fn.Result[domain.Plan] {
		return fn.Ok(s.planner.Plan(ctx, in.query, in.docs))
	})(ctx, in)
}

func (s *Service) execute(ctx context.Context, in execInput) fn.Result[domain.Trace] {
	return fn.TracedStage("rag.execute", func(ctx context.Context, in execInput) fn.Result[domain.Trace] {
		return fn.Ok(s.executor.Execute(ctx, in.plan, in.query, in.docs))
	})(ctx, in)
}

func (s *Service) compose(ctx context.Context, in composeInput) fn.Result[string] {
	return fn.TracedStage("rag.compose", func(ctx context.Context, in composeInput) fn.Result[string] {
		return fn.Ok(s.composer.Compose(ctx, in.query, in.docs, in.trace))
	})(ctx, in)
}
