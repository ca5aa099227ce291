// internal/agent/event_bus_test.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func setupEventBus(t *testing.T, bufferSize int) *EventBus {
	t.Helper()
	bus := NewEventBus(zaptest.NewLogger(t), bufferSize)
	t.Cleanup(bus.Shutdown)
	return bus
}

func TestEventBus_PostSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := setupEventBus(t, 10)

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	require.NoError(t, bus.Post(context.Background(), Notice{Kind: NoticeActivity, Payload: "capturing"}))

	select {
	case n := <-ch:
		assert.Equal(t, NoticeActivity, n.Kind)
		assert.Equal(t, "capturing", n.Payload)
		assert.NotEmpty(t, n.ID, "bus should assign an ID")
		assert.False(t, n.Timestamp.IsZero(), "bus should stamp the notice")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notice")
	}
}

func TestEventBus_Filtering(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := setupEventBus(t, 10)
	ctx := context.Background()

	stateCh, unsubState := bus.Subscribe(NoticeState)
	defer unsubState()
	streamCh, unsubStream := bus.Subscribe(NoticeStream)
	defer unsubStream()

	require.NoError(t, bus.Post(ctx, Notice{Kind: NoticeState, Payload: StateIdle{}}))
	require.NoError(t, bus.Post(ctx, Notice{Kind: NoticeStream, Payload: "chunk"}))

	n := <-stateCh
	assert.Equal(t, StateIdle{}, n.Payload)
	n = <-streamCh
	assert.Equal(t, "chunk", n.Payload)

	assert.Empty(t, stateCh)
	assert.Empty(t, streamCh)
}

func TestEventBus_Backpressure(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := setupEventBus(t, 1)
	ctx := context.Background()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	require.NoError(t, bus.Post(ctx, Notice{Kind: NoticeActivity, Payload: "one"}))

	done := make(chan error, 1)
	go func() { done <- bus.Post(ctx, Notice{Kind: NoticeActivity, Payload: "two"}) }()

	select {
	case <-done:
		t.Fatal("second post should block while the buffer is full")
	case <-time.After(100 * time.Millisecond):
	}

	<-ch
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second post never completed")
	}
	<-ch
}

func TestEventBus_PostContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := setupEventBus(t, 1)

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	require.NoError(t, bus.Post(context.Background(), Notice{Kind: NoticeActivity}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- bus.Post(ctx, Notice{Kind: NoticeActivity}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("post ignored cancellation")
	}
	<-ch
}

func TestEventBus_NotifierDropsOnStalledSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := setupEventBus(t, 1)
	bus.postTimeout = 20 * time.Millisecond

	_, unsubscribe := bus.Subscribe(NoticeActivity)
	defer unsubscribe()

	require.NoError(t, bus.Activity("first"))
	err := bus.Activity("second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activity notice dropped")
}

func TestEventBus_ShutdownUnblocksPost(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewEventBus(zaptest.NewLogger(t), 1)

	_, _ = bus.Subscribe()
	require.NoError(t, bus.Post(context.Background(), Notice{Kind: NoticeState}))

	postDone := make(chan error, 1)
	go func() { postDone <- bus.Post(context.Background(), Notice{Kind: NoticeState}) }()
	time.Sleep(50 * time.Millisecond)

	bus.Shutdown()
	select {
	case err := <-postDone:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown did not release the blocked post")
	}

	assert.Error(t, bus.Post(context.Background(), Notice{Kind: NoticeState}))
	// A second Shutdown is a no-op.
	bus.Shutdown()
}

func TestEventBus_ConcurrentPosters(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := setupEventBus(t, 16)
	ctx := context.Background()

	const posters, perPoster, subscribers = 4, 25, 3
	total := posters * perPoster

	var wg sync.WaitGroup
	counts := make([]int, subscribers)
	for i := 0; i < subscribers; i++ {
		ch, unsubscribe := bus.Subscribe(NoticeActivity)
		defer unsubscribe()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			timeout := time.After(5 * time.Second)
			for counts[i] < total {
				select {
				case <-ch:
					counts[i]++
				case <-timeout:
					return
				}
			}
		}(i)
	}

	var posterWG sync.WaitGroup
	for p := 0; p < posters; p++ {
		posterWG.Add(1)
		go func(p int) {
			defer posterWG.Done()
			for m := 0; m < perPoster; m++ {
				assert.NoError(t, bus.Post(ctx, Notice{Kind: NoticeActivity, Payload: fmt.Sprintf("%d-%d", p, m)}))
			}
		}(p)
	}
	posterWG.Wait()
	wg.Wait()

	for i, c := range counts {
		assert.Equal(t, total, c, "subscriber %d missed notices", i)
	}
}
