package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
)

func TestNew(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := event.New(event.TypeRunStarted, "engine", map[string]any{"run_id": "r1"},
		event.WithCorrelationID("r1"),
		event.WithTenant("user:u1"),
		event.WithTimestamp(at),
	)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, event.TypeRunStarted, evt.Type)
	assert.Equal(t, "engine", evt.Source)
	assert.Equal(t, "r1", evt.CorrelationID)
	assert.Equal(t, "user:u1", evt.Tenant)
	assert.Equal(t, at, evt.Timestamp)
	assert.NotEqual(t, evt.ID, event.New("x", "y", nil).ID)
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var typed, all atomic.Int32
	bus.Subscribe(func(context.Context, event.Event) error {
		typed.Add(1)
		return nil
	}, event.TypeRunFinished)
	bus.Subscribe(func(context.Context, event.Event) error {
		all.Add(1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event.New(event.TypeRunStarted, "test", nil)))
	require.NoError(t, bus.Publish(ctx, event.New(event.TypeRunFinished, "test", nil)))

	require.Eventually(t, func() bool { return all.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), typed.Load())
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	bus.Subscribe(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		got = append(got, evt.Data.(string))
		mu.Unlock()
		return nil
	})

	want := []string{"a", "b", "c", "d"}
	for _, s := range want {
		require.NoError(t, bus.Publish(context.Background(), event.New("t", "test", s)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	var n atomic.Int32
	sub := bus.Subscribe(func(context.Context, event.Event) error {
		n.Add(1)
		return nil
	})
	require.NoError(t, bus.Publish(context.Background(), event.New("t", "test", nil)))
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), event.New("t", "test", nil)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestBus_OnError(t *testing.T) {
	errc := make(chan error, 1)
	bus := event.NewBus(event.BusConfig{
		OnError: func(_ event.Event, _ string, err error) { errc <- err },
	})
	defer bus.Close()

	boom := errors.New("boom")
	bus.Subscribe(func(context.Context, event.Event) error { return boom })
	require.NoError(t, bus.Publish(context.Background(), event.New("t", "test", nil)))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("OnError not called")
	}
}

func TestBus_NonBlockingDrops(t *testing.T) {
	release := make(chan struct{})
	var dropped atomic.Int32
	bus := event.NewBus(event.BusConfig{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop:      func(event.Event, string) { dropped.Add(1) },
	})
	defer bus.Close()
	defer close(release)

	bus.Subscribe(func(context.Context, event.Event) error {
		<-release
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), event.New("t", "test", i)))
	}
	assert.Positive(t, dropped.Load())
}

func TestBus_Closed(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), event.New("t", "test", nil)), event.ErrBusClosed)
	assert.Nil(t, bus.Subscribe(func(context.Context, event.Event) error { return nil }))
}
