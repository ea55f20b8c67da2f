package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
)

func TestGuard_ReplaysStoredResponse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())
	hash := RequestHash("user-1", []byte(`{"paymentMethod":"COD"}`))

	calls := 0
	handler := func(context.Context) Response {
		calls++
		return Response{Status: http.StatusCreated, Body: []byte(`{"orderId":"o-1"}`)}
	}

	first, replayed, err := guard.Do(ctx, "key-1", hash, handler)
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, http.StatusCreated, first.Status)

	second, replayed, err := guard.Do(ctx, "key-1", hash, handler)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestGuard_ReplaysFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())
	hash := RequestHash("user-1", nil)

	_, _, err := guard.Do(ctx, "key-2", hash, func(context.Context) Response {
		return Response{Status: http.StatusBadRequest, Body: []byte(`{"error":"cart is empty"}`)}
	})
	require.NoError(t, err)

	resp, replayed, err := guard.Do(ctx, "key-2", hash, func(context.Context) Response {
		t.Fatal("handler must not run twice")
		return Response{}
	})
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestGuard_RetriesAfterTransientFailure(t *testing.T) {
	t.Parallel()

	statuses := map[string]int{
		"server error":       http.StatusInternalServerError,
		"checkout in flight": http.StatusConflict,
		"rate limited":       http.StatusTooManyRequests,
	}
	for name, status := range statuses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			guard := NewGuard(memory.NewIdempotencyRepository())
			hash := RequestHash("user-1", nil)

			first, replayed, err := guard.Do(ctx, "key-5", hash, func(context.Context) Response {
				return Response{Status: status, Body: []byte(`{"error":"try again"}`)}
			})
			require.NoError(t, err)
			require.False(t, replayed)
			require.Equal(t, status, first.Status)

			calls := 0
			second, replayed, err := guard.Do(ctx, "key-5", hash, func(context.Context) Response {
				calls++
				return Response{Status: http.StatusCreated, Body: []byte(`{"orderId":"o-5"}`)}
			})
			require.NoError(t, err)
			require.False(t, replayed)
			require.Equal(t, 1, calls)
			require.Equal(t, http.StatusCreated, second.Status)

			third, replayed, err := guard.Do(ctx, "key-5", hash, func(context.Context) Response {
				t.Fatal("handler must not run after success")
				return Response{}
			})
			require.NoError(t, err)
			require.True(t, replayed)
			require.Equal(t, second, third)
		})
	}
}

func TestGuard_RejectsDifferentPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())

	_, _, err := guard.Do(ctx, "key-3", RequestHash("user-1", []byte("a")), func(context.Context) Response {
		return Response{Status: http.StatusCreated}
	})
	require.NoError(t, err)

	_, _, err = guard.Do(ctx, "key-3", RequestHash("user-1", []byte("b")), func(context.Context) Response {
		return Response{Status: http.StatusCreated}
	})
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestGuard_InFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())
	hash := RequestHash("user-1", nil)

	var inner error
	_, _, err := guard.Do(ctx, "key-4", hash, func(ctx context.Context) Response {
		_, _, inner = guard.Do(ctx, "key-4", hash, func(context.Context) Response {
			return Response{Status: http.StatusCreated}
		})
		return Response{Status: http.StatusCreated}
	})
	require.NoError(t, err)
	require.True(t, errors.Is(inner, ErrRequestInFlight))
}

func TestRequestHash_BindsActor(t *testing.T) {
	t.Parallel()

	body := []byte(`{"paymentMethod":"COD"}`)
	require.Equal(t, RequestHash("u1", body), RequestHash(" u1 ", body))
	require.NotEqual(t, RequestHash("u1", body), RequestHash("u2", body))
}
