package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTellThenAskSeesUpdatedState(t *testing.T) {
	var counter int
	a := New("counter", func(msg interface{}) (interface{}, error) {
		switch msg.(type) {
		case string:
			counter++
			return nil, nil
		case struct{ get bool }:
			return counter, nil
		}
		return nil, errors.New("unknown message")
	})
	a.Start()
	defer a.Stop()

	ctx := context.Background()
	require.NoError(t, a.Tell(ctx, "increment"))
	require.NoError(t, a.Tell(ctx, "increment"))

	val, err := a.Ask(ctx, struct{ get bool }{get: true})
	require.NoError(t, err)
	assert.Equal(t, 2, val)
}

func TestAskTimesOutWhenHandlerBlocks(t *testing.T) {
	unblock := make(chan struct{})
	a := New("slow", func(msg interface{}) (interface{}, error) {
		<-unblock
		return "done", nil
	})
	a.Start()
	defer func() {
		close(unblock)
		a.Stop()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Ask(ctx, "work")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHandlerPanicDoesNotKillActor(t *testing.T) {
	a := New("flaky", func(msg interface{}) (interface{}, error) {
		if msg == "boom" {
			panic("kaboom")
		}
		return "ok", nil
	})
	a.Start()
	defer a.Stop()

	ctx := context.Background()
	_, err := a.Ask(ctx, "boom")
	require.Error(t, err)

	val, err := a.Ask(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestAskAfterStopReturnsErrStopped(t *testing.T) {
	block := make(chan struct{})
	a := New("stoppable", func(msg interface{}) (interface{}, error) {
		<-block
		return nil, nil
	})
	a.Start()

	ctx := context.Background()
	// Park one message in a blocked handler, release it, then stop the
	// actor; an ask sent after Stop must fail with ErrStopped.
	go func() { _, _ = a.Ask(ctx, "first") }()
	time.Sleep(10 * time.Millisecond)
	close(block)
	a.Stop()

	_, err := a.Ask(ctx, "after-stop")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestTickRunsBetweenMailboxDrains(t *testing.T) {
	ticks := make(chan struct{}, 10)
	a := New("ticker", func(msg interface{}) (interface{}, error) {
		return nil, nil
	}, WithTick(5*time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}))
	a.Start()
	defer a.Stop()

	select {
	case <-ticks:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("tick never fired")
	}
}
