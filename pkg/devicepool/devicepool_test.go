package devicepool

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/eventbus"
)

func newTestPool(t *testing.T, deviceIDs ...string) (*Pool, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(50, zerolog.Nop())
	p := New(deviceIDs, bus, zerolog.Nop())
	p.Start()
	t.Cleanup(p.Stop)
	return p, bus
}

func TestRequestDeviceGrantsImmediatelyWhenFree(t *testing.T) {
	p, _ := newTestPool(t, "dev1")
	grant, err := p.RequestDevice(context.Background(), "dev1", "plateA")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
}

func TestRequestDeviceUnknown(t *testing.T) {
	p, _ := newTestPool(t, "dev1")
	_, err := p.RequestDevice(context.Background(), "nope", "plateA")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestSecondRequesterQueuesAndGetsNotifiedOnRelease(t *testing.T) {
	p, bus := newTestPool(t, "dev1")
	ctx := context.Background()

	var assigned []string
	bus.Subscribe(EventDeviceAssigned, func(e eventbus.Event) {
		assigned = append(assigned, e.Payload["plate_id"].(string))
	})

	_, err := p.RequestDevice(ctx, "dev1", "plateA")
	require.NoError(t, err)

	grantB, err := p.RequestDevice(ctx, "dev1", "plateB")
	require.NoError(t, err)
	assert.False(t, grantB.Granted)
	assert.Equal(t, 1, grantB.QueuePosition)

	require.NoError(t, p.ReleaseDevice(ctx, "dev1", "plateA"))
	require.Eventually(t, func() bool { return len(assigned) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "plateB", assigned[0])
}

func TestCancelRequestRemovesWaiter(t *testing.T) {
	p, _ := newTestPool(t, "dev1")
	ctx := context.Background()

	_, err := p.RequestDevice(ctx, "dev1", "plateA")
	require.NoError(t, err)
	_, err = p.RequestDevice(ctx, "dev1", "plateB")
	require.NoError(t, err)

	require.NoError(t, p.CancelRequest(ctx, "dev1", "plateB"))
	require.NoError(t, p.ReleaseDevice(ctx, "dev1", "plateA"))

	grantC, err := p.RequestDevice(ctx, "dev1", "plateC")
	require.NoError(t, err)
	assert.True(t, grantC.Granted)
}
