// Package retry provides a flat, fixed-count retry combinator for outbound
// model calls. There is no backoff and no jitter: a failed attempt is followed
// immediately by the next one until the bound is reached.
package retry

import "context"

// DefaultMaxAttempts is the attempt bound used when callers have no opinion.
const DefaultMaxAttempts = 3

// Result is the outcome of a single attempt: either a value or an error.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure. A nil err is treated as a zero-value success.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// From adapts a conventional (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the attempt succeeded.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Error returns the failure, or nil on success.
func (r Result[T]) Error() error { return r.err }

// Unwrap returns the value and error as a Go pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// Attempt performs one try. n is the 1-based attempt number.
type Attempt[T any] func(ctx context.Context, n int) Result[T]

// Fixed runs attempt up to maxAttempts times and returns the first success.
// When every attempt fails, the error of the final attempt is returned as is;
// earlier errors are discarded. maxAttempts below 1 is treated as 1.
//
// A context cancelled between attempts ends the loop with ctx.Err(). An
// in-flight attempt is never interrupted by Fixed itself.
func Fixed[T any](ctx context.Context, maxAttempts int, attempt Attempt[T]) Result[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last Result[T]
	for n := 1; n <= maxAttempts; n++ {
		if n > 1 && ctx.Err() != nil {
			return Err[T](ctx.Err())
		}
		last = attempt(ctx, n)
		if last.IsOk() {
			return last
		}
	}
	return last
}
