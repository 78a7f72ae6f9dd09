package fn

import (
	"context"
	"errors"
)

// Resolver produces a value or an error. Chains of resolvers express
// best-effort lookups that fall back from one source to the next.
type Resolver[T any] func(context.Context) Result[T]

// ErrNoResolvers is returned by FirstOk when called with no resolvers.
var ErrNoResolvers = errors.New("fn: no resolvers")

// FirstOk runs resolvers in order and returns the first success. If every
// resolver fails the errors are joined. A cancelled context stops the chain.
func FirstOk[T any](ctx context.Context, resolvers ...Resolver[T]) Result[T] {
	if len(resolvers) == 0 {
		return Err[T](ErrNoResolvers)
	}
	var errs []error
	for _, r := range resolvers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res := r(ctx)
		if res.IsOk() {
			return res
		}
		_, err := res.Unwrap()
		errs = append(errs, err)
	}
	return Err[T](errors.Join(errs...))
}
