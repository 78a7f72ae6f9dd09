// Package compose turns an executed plan into the sentence shown to the user.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

// LongETASec is the estimate at which an alternative is suggested.
const LongETASec = 30 * 60

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Registry is the part of the fleet registry used to find alternatives.
type Registry interface {
	BusRoute(ctx context.Context, busID string) (string, error)
	BusesOnRoute(ctx context.Context, routeID string) ([]string, error)
}

// Composer writes answers with the completer when configured and the
// deterministic ETA formatter otherwise.
type Composer struct {
	llm      Completer
	registry Registry
	logger   *slog.Logger
}

// New creates a Composer. llm and registry may be nil.
func New(llm Completer, registry Registry, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{llm: llm, registry: registry, logger: logger}
}

// Compose never returns an empty string.
func (c *Composer) Compose(ctx context.Context, query string, docs []string, trace domain.Trace) string {
	text := ""
	if c.llm != nil {
		out, err := c.generate(ctx, query, docs, trace)
		if err != nil {
			c.logger.Warn("compose: generative answer failed, using formatter", "err", err)
		} else {
			text = out
		}
	}
	if strings.TrimSpace(text) == "" {
		text = Format(trace)
	}
	if eta, ok := trace.FirstETA(); ok && eta.ETASec >= LongETASec {
		text += " " + c.alternative(ctx, eta)
	}
	text = domain.CollapseSpace(text)
	if text == "" {
		return domain.MsgEmptyAnswer
	}
	return text
}

func (c *Composer) generate(ctx context.Context, query string, docs []string, trace domain.Trace) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("compose: panic: %v", r)
		}
	}()
	prompt, err := buildPrompt(query, docs, trace)
	if err != nil {
		return "", err
	}
	out, err = c.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("compose: complete: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func buildPrompt(query string, docs []string, trace domain.Trace) (string, error) {
	ctxJSON, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("compose: encode context: %w", err)
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return "", fmt.Errorf("compose: encode trace: %w", err)
	}
	var b strings.Builder
	b.WriteString("You are a helpful transport assistant. Write a short, customer-friendly answer.\n\n")
	fmt.Fprintf(&b, "User: %s\n\n", query)
	fmt.Fprintf(&b, "Context: %s\n\n", ctxJSON)
	fmt.Fprintf(&b, "Tool results: %s\n\n", traceJSON)
	b.WriteString("Return only the final answer. Do not include reasoning, JSON or intermediate data.")
	return b.String(), nil
}

// Format renders the first ETA in trace as a sentence, or
// domain.MsgNoInformation when there is none.
func Format(trace domain.Trace) string {
	eta, ok := trace.FirstETA()
	if !ok {
		return domain.MsgNoInformation
	}
	subject := "The bus"
	if eta.BusID != "" {
		subject = "Bus " + eta.BusID
	}
	return fmt.Sprintf("%s is expected to reach stop %s in about %s.", subject, eta.StopID, Duration(eta.ETASec))
}

// Duration formats seconds as "X hour(s) Y minute(s)", dropping zero parts.
// Anything under a minute is "a few seconds".
func Duration(sec int) string {
	hours := sec / 3600
	minutes := (sec % 3600) / 60
	switch {
	case hours > 0 && minutes > 0:
		return plural(hours, "hour") + " " + plural(minutes, "minute")
	case hours > 0:
		return plural(hours, "hour")
	case minutes > 0:
		return plural(minutes, "minute")
	default:
		return "a few seconds"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// alternative suggests the first other bus on the primary bus's route, or a
// faster mode when there is none.
func (c *Composer) alternative(ctx context.Context, eta domain.ETAResult) string {
	if bus, route := c.firstAlternative(ctx, eta.BusID); bus != "" {
		return fmt.Sprintf("As an alternative, you could take bus %s on route %s, which may reach stop %s earlier depending on its schedule.",
			bus, route, eta.StopID)
	}
	return fmt.Sprintf("Since the current ETA is more than 30 minutes, consider a faster mode such as metro or a cab for most of the journey, then a short ride to stop %s.",
		eta.StopID)
}

func (c *Composer) firstAlternative(ctx context.Context, busID string) (string, string) {
	if c.registry == nil || busID == "" {
		return "", ""
	}
	route, err := c.registry.BusRoute(ctx, busID)
	if err != nil || route == "" {
		c.logger.Debug("compose: no route for alternative", "bus_id", busID, "err", err)
		return "", ""
	}
	buses, err := c.registry.BusesOnRoute(ctx, route)
	if err != nil {
		c.logger.Warn("compose: buses on route lookup failed", "route_id", route, "err", err)
		return "", ""
	}
	for _, b := range buses {
		if b != busID {
			return b, route
		}
	}
	return "", ""
}
