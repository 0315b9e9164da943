package station

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/eventbus"
)

func newTestManager(t *testing.T, stationIDs ...string) (*Manager, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(50, zerolog.Nop())
	configs := make([]StationConfig, len(stationIDs))
	for i, id := range stationIDs {
		configs[i] = StationConfig{ID: id, Slots: 1}
	}
	m := NewManager(configs, bus, zerolog.Nop())
	m.Start()
	t.Cleanup(m.Stop)
	return m, bus
}

func TestRequestAccessGrantsImmediatelyWhenFree(t *testing.T) {
	m, _ := newTestManager(t, "st1")
	ctx := context.Background()

	grant, err := m.RequestAccess(ctx, "st1", "plateA")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
}

func TestRequestAccessUnknownStation(t *testing.T) {
	m, _ := newTestManager(t, "st1")
	ctx := context.Background()

	_, err := m.RequestAccess(ctx, "unknown", "plateA")
	assert.ErrorIs(t, err, ErrUnknownStation)
}

func TestSecondRequesterQueuesAndIsGrantedOnRelease(t *testing.T) {
	m, bus := newTestManager(t, "st1")
	ctx := context.Background()

	var granted []string
	bus.Subscribe(EventAccessGranted, func(e eventbus.Event) {
		granted = append(granted, e.Payload["plate_id"].(string))
	})

	grantA, err := m.RequestAccess(ctx, "st1", "plateA")
	require.NoError(t, err)
	assert.True(t, grantA.Granted)

	grantB, err := m.RequestAccess(ctx, "st1", "plateB")
	require.NoError(t, err)
	assert.False(t, grantB.Granted)
	assert.Equal(t, 1, grantB.QueuePosition)

	require.NoError(t, m.ReleaseAccess(ctx, "st1", "plateA"))

	require.Eventually(t, func() bool { return len(granted) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "plateB", granted[0])
}

func TestCancelRequestRemovesFromQueue(t *testing.T) {
	m, _ := newTestManager(t, "st1")
	ctx := context.Background()

	_, err := m.RequestAccess(ctx, "st1", "plateA")
	require.NoError(t, err)
	grantB, err := m.RequestAccess(ctx, "st1", "plateB")
	require.NoError(t, err)
	require.False(t, grantB.Granted)

	require.NoError(t, m.CancelRequest(ctx, "st1", "plateB"))

	// plateA still holds the single slot, so plateC queues behind the
	// (now-cancelled) spot at position 1, not 2.
	grantC, err := m.RequestAccess(ctx, "st1", "plateC")
	require.NoError(t, err)
	assert.False(t, grantC.Granted)
	assert.Equal(t, 1, grantC.QueuePosition)

	require.NoError(t, m.ReleaseAccess(ctx, "st1", "plateA"))

	grantFinal, err := m.RequestAccess(ctx, "st1", "plateD")
	require.NoError(t, err)
	assert.False(t, grantFinal.Granted)
	assert.Equal(t, 1, grantFinal.QueuePosition) // plateC now holds, plateD queues behind it
}

func TestMultiSlotStationGrantsUpToCapacity(t *testing.T) {
	bus := eventbus.New(50, zerolog.Nop())
	m := NewManager([]StationConfig{{ID: "st1", Slots: 2}}, bus, zerolog.Nop())
	m.Start()
	t.Cleanup(m.Stop)
	ctx := context.Background()

	gA, err := m.RequestAccess(ctx, "st1", "plateA")
	require.NoError(t, err)
	assert.True(t, gA.Granted)

	gB, err := m.RequestAccess(ctx, "st1", "plateB")
	require.NoError(t, err)
	assert.True(t, gB.Granted)

	gC, err := m.RequestAccess(ctx, "st1", "plateC")
	require.NoError(t, err)
	assert.False(t, gC.Granted)
	assert.Equal(t, 1, gC.QueuePosition)
}

func TestReleaseByNonHolderFails(t *testing.T) {
	m, _ := newTestManager(t, "st1")
	ctx := context.Background()

	_, err := m.RequestAccess(ctx, "st1", "plateA")
	require.NoError(t, err)

	err = m.ReleaseAccess(ctx, "st1", "plateB")
	assert.ErrorIs(t, err, ErrNotHolder)
}
