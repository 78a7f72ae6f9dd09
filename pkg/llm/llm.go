// Package llm provides text-completion clients for the planner and composer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/transit-mvp/pkg/resilience"
)

// ErrEmptyCompletion is returned when the backend answers with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Guarded bounds every call with a timeout and routes it through a breaker.
type Guarded struct {
	next    Completer
	breaker *resilience.Breaker
	timeout time.Duration
}

// Guard wraps c. A nil breaker disables breaking; timeout <= 0 disables the
// deadline.
func Guard(c Completer, breaker *resilience.Breaker, timeout time.Duration) *Guarded {
	return &Guarded{next: c, breaker: breaker, timeout: timeout}
}

func (g *Guarded) Complete(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.breaker == nil {
		return g.next.Complete(ctx, prompt)
	}
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("llm %s: %w", g.breaker.Name(), err)
	}
	return out, nil
}
