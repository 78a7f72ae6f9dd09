// Package planner turns a query and its retrieved context into an ordered
// plan of tool steps.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Planner plans with the completer when one is configured and falls back
// to the keyword rules otherwise.
type Planner struct {
	llm    Completer
	logger *slog.Logger
}

// New creates a Planner. llm may be nil.
func New(llm Completer, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: llm, logger: logger}
}

// Plan never fails and never returns an empty plan.
func (p *Planner) Plan(ctx context.Context, query string, docs []string) domain.Plan {
	if p.llm != nil {
		plan, err := p.generate(ctx, query, docs)
		if err == nil {
			return plan
		}
		p.logger.Warn("planner: generative plan rejected, using rules", "err", err)
	}
	return RulePlan(query)
}

func (p *Planner) generate(ctx context.Context, query string, docs []string) (plan domain.Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			plan, err = nil, fmt.Errorf("planner: panic: %v", r)
		}
	}()
	out, err := p.llm.Complete(ctx, buildPrompt(query, docs))
	if err != nil {
		return nil, fmt.Errorf("planner: complete: %w", err)
	}
	plan, err = ParsePlan(out)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("planner: empty plan: %w", domain.ErrPlanParse)
	}
	return plan, nil
}

const promptHeader = `You plan tool calls for a bus transit assistant.
Available tools:
- position: current location of a bus. params: {"bus_id": "B1"}
- weather: weather near a point. params: {"lat": 0.0, "lon": 0.0} or {"route_id": "R1"}; with no params it uses the last position.
- eta: arrival time of a bus at a stop. params: {"bus_id": "B1", "stop_id": "S1"}
- none: nothing to do.
Steps run in order and later steps may use earlier results.
Respond with JSON only, for example:
{"plan": [{"tool": "position", "params": {"bus_id": "B1"}}, {"tool": "eta", "params": {"bus_id": "B1", "stop_id": "S1"}}]}
`

func buildPrompt(query string, docs []string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	if len(docs) > 0 {
		b.WriteString("\nContext:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	return b.String()
}

type planJSON struct {
	Plan []domain.PlanStep `json:"plan"`
}

// ParsePlan reads a {"plan": [...]} object from model output. The whole
// text is tried first, then the first balanced {...} inside it.
func ParsePlan(text string) (domain.Plan, error) {
	var pj planJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &pj); err == nil && pj.Plan != nil {
		return domain.Plan(pj.Plan), nil
	}
	obj, ok := FirstJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("planner: no JSON object in output: %w", domain.ErrPlanParse)
	}
	pj = planJSON{}
	if err := json.Unmarshal([]byte(obj), &pj); err != nil {
		return nil, fmt.Errorf("planner: %v: %w", err, domain.ErrPlanParse)
	}
	if pj.Plan == nil {
		return nil, fmt.Errorf("planner: object has no plan: %w", domain.ErrPlanParse)
	}
	return domain.Plan(pj.Plan), nil
}

// FirstJSONObject returns the first balanced brace-delimited substring of s.
// Braces inside JSON strings are ignored.
func FirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
