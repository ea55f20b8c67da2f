package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

func TestTimelineRepository_OrdersByTimeThenInsertion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewTimelineRepository()
	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.EventReceiptReady, Occurred: at.Add(time.Second)}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.EventOrderPlaced, Occurred: at}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.EventReceiptPending, Occurred: at}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-2", Type: domain.EventOrderPlaced, Occurred: at}))

	events, err := repo.List(ctx, "o-1")
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	require.Equal(t, []string{domain.EventOrderPlaced, domain.EventReceiptPending, domain.EventReceiptReady}, types)

	empty, err := repo.List(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTimelineRepository_RejectsIncompleteEvent(t *testing.T) {
	t.Parallel()

	repo := NewTimelineRepository()
	require.ErrorIs(t, repo.Append(context.Background(), domain.TimelineEvent{OrderID: "o-1"}), domain.ErrTimelineEventInvalid)
	require.ErrorIs(t, repo.Append(context.Background(), domain.TimelineEvent{Type: domain.EventOrderPlaced}), domain.ErrTimelineEventInvalid)
}
