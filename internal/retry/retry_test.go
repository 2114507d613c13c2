package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/apresai/storytime/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed_SucceedsAfterTwoFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	res := retry.Fixed(context.Background(), 3, func(_ context.Context, n int) retry.Result[string] {
		calls++
		if n < 3 {
			return retry.Err[string](fmt.Errorf("transient %d", n))
		}
		return retry.Ok("simplified")
	})

	v, err := res.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "simplified", v)
	assert.Equal(t, 3, calls)
}

func TestFixed_AlwaysFailingReturnsFinalError(t *testing.T) {
	t.Parallel()

	errs := []error{
		errors.New("first"),
		errors.New("second"),
		errors.New("third"),
	}
	res := retry.Fixed(context.Background(), 3, func(_ context.Context, n int) retry.Result[int] {
		return retry.Err[int](errs[n-1])
	})

	require.False(t, res.IsOk())
	assert.Same(t, errs[2], res.Error())
	assert.NotErrorIs(t, res.Error(), errs[0])
	assert.NotErrorIs(t, res.Error(), errs[1])
}

func TestFixed_StopsOnFirstSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	res := retry.Fixed(context.Background(), 5, func(_ context.Context, _ int) retry.Result[int] {
		calls++
		return retry.Ok(42)
	})

	assert.True(t, res.IsOk())
	assert.Equal(t, 1, calls)
}

func TestFixed_NonPositiveBoundRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("boom")
	res := retry.Fixed(context.Background(), 0, func(_ context.Context, _ int) retry.Result[int] {
		calls++
		return retry.Err[int](boom)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.Error(), boom)
}

func TestFixed_CancelledBetweenAttempts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := retry.Fixed(ctx, 3, func(_ context.Context, _ int) retry.Result[int] {
		calls++
		cancel()
		return retry.Err[int](errors.New("network"))
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.Error(), context.Canceled)
}

func TestFrom(t *testing.T) {
	t.Parallel()

	assert.True(t, retry.From("x", nil).IsOk())
	assert.False(t, retry.From("", errors.New("nope")).IsOk())
}
