package snd_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gen2brain/snd"
)

func TestDispatcherFIFO(t *testing.T) {
	d := snd.NewDispatcher()

	var got []int
	for i := range 5 {
		d.Enqueue(func() error {
			got = append(got, i)

			return nil
		})
	}

	assert.Empty(t, got, "Enqueue must not run work")
	assert.Equal(t, 5, d.Pending())

	assert.Equal(t, 5, d.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Zero(t, d.Pending())
	assert.Zero(t, d.Drain())
}

func TestDispatcherWorkQueuedWhileDraining(t *testing.T) {
	d := snd.NewDispatcher()

	var order []string
	d.Enqueue(func() error {
		order = append(order, "first")
		d.Enqueue(func() error {
			order = append(order, "later")

			return nil
		})
		assert.Zero(t, d.Drain(), "nested drain must not run anything")

		return nil
	})

	require.Equal(t, 1, d.Drain())
	assert.Equal(t, []string{"first"}, order)

	require.Equal(t, 1, d.Drain())
	assert.Equal(t, []string{"first", "later"}, order)
}

func TestDispatcherErrorsDoNotStopDrain(t *testing.T) {
	var reported []error
	d := snd.NewDispatcher(snd.WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))

	boom := errors.New("boom")
	ran := 0
	d.Enqueue(func() error { ran++; return boom })
	d.Enqueue(func() error { ran++; panic("bad callback") })
	d.Enqueue(func() error { ran++; return nil })

	assert.Equal(t, 3, d.Drain())
	assert.Equal(t, 3, ran)

	require.Len(t, reported, 2)
	assert.ErrorIs(t, reported[0], boom)
	assert.ErrorIs(t, reported[0], snd.ErrCallback)
	assert.ErrorIs(t, reported[1], snd.ErrCallback)
	assert.Contains(t, reported[1].Error(), "bad callback")
}

func TestDispatcherLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	d := snd.NewDispatcher(snd.WithDispatcherLogger(zap.New(core)))

	d.Enqueue(func() error { return errors.New("boom") })
	d.Drain()

	entries := logs.FilterMessage("deferred callback failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "boom")
}

func TestDispatcherConcurrentEnqueue(t *testing.T) {
	d := snd.NewDispatcher()

	const producers, perProducer = 8, 500

	var mu sync.Mutex
	seen := make(map[int]int)
	last := make(map[int]int)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				d.Enqueue(func() error {
					mu.Lock()
					defer mu.Unlock()
					if n, ok := last[p]; ok && n >= i {
						return errors.New("out of order")
					}
					last[p] = i
					seen[p]++

					return nil
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, d.Drain())
	for p := range producers {
		assert.Equal(t, perProducer, seen[p], "producer %d", p)
	}
}

func TestDispatcherServe(t *testing.T) {
	d := snd.NewDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- d.Serve(ctx)
	}()

	done := make(chan struct{})
	d.Enqueue(func() error {
		close(done)

		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not run queued work")
	}

	cancel()

	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
