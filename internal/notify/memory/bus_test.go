package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/revloop/revloop/internal/notify"
)

func TestPublishReceive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := NewBus(4)

	id, err := bus.Publish(ctx, notify.TopicPageStored, notify.PageStored{URL: "https://example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	env, err := bus.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, notify.TopicPageStored, env.Topic)
	payload, ok := env.Payload.(notify.PageStored)
	require.True(t, ok)
	require.Equal(t, "https://example.com", payload.URL)
}

func TestPublishAssignsUniqueIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := NewBus(4)

	first, err := bus.Publish(ctx, "t", "a")
	require.NoError(t, err)
	second, err := bus.Publish(ctx, "t", "b")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestPublishFailsWhenBufferFull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := NewBus(1)

	_, err := bus.Publish(ctx, "t", "a")
	require.NoError(t, err)

	_, err = bus.Publish(ctx, "t", "b")
	require.ErrorContains(t, err, "buffer full")
}

func TestReceiveRespectsContext(t *testing.T) {
	t.Parallel()
	bus := NewBus(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bus.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedBusRejectsPublish(t *testing.T) {
	t.Parallel()
	bus := NewBus(1)
	bus.Close()

	_, err := bus.Publish(context.Background(), "t", "a")
	require.ErrorContains(t, err, "closed")
}

// Publishers racing a shutdown must get the closed error, never a send on
// the closed channel.
func TestPublishRacingCloseNeverPanics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		bus := NewBus(2)

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					_, _ = bus.Publish(ctx, "t", j)
				}
			}()
		}
		bus.Close()
		wg.Wait()

		_, err := bus.Publish(ctx, "t", "late")
		require.ErrorContains(t, err, "closed")
	}
}
