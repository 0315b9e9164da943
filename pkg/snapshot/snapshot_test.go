package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/coordinator"
	"github.com/Boticus-OG/Titan/pkg/deck"
	"github.com/Boticus-OG/Titan/pkg/driverapi"
	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/types"
)

func testDeck() *deck.Deck {
	cfg := deck.Config{
		Tiles: []deck.TileConfig{
			{GridCol: 0, GridRow: 0, Enabled: true},
			{GridCol: 1, GridRow: 0, Enabled: true},
		},
		Tracks: []types.Track{
			{ID: "t1", Name: "main", Start: types.Position{X: 60, Y: 60}, End: types.Position{X: 300, Y: 60}},
		},
		Locations: []types.Location{
			{Name: "dock1", Type: types.LocationDevice, Position: types.Position{X: 300, Y: 60}, ParentTrackID: "t1", TrackDistance: 240},
			{Name: "queue1", Type: types.LocationQueue, Position: types.Position{X: 60, Y: 60}, ParentTrackID: "t1"},
		},
		Stations: []types.Station{
			{ID: "st1", DeviceType: "reader", DeviceActorID: "dev1", PrimaryLocation: "dock1", Slots: 1, QueueLocation: "queue1"},
		},
		Movers: []deck.MoverConfig{
			{ID: "mover1", StartLocation: "queue1"},
		},
		Devices: []deck.DeviceConfig{
			{ID: "dev1", Type: "reader"},
		},
	}
	return deck.FromConfig(cfg)
}

func newTestCoordinator(t *testing.T) (*coordinator.Coordinator, *eventbus.Bus) {
	t.Helper()
	d := testDeck()
	require.NoError(t, d.Validate())

	bus := eventbus.New(200, zerolog.Nop())
	drv := driverapi.NewSimulatedDriver(0, zerolog.Nop())
	for _, mc := range d.Movers {
		drv.SeedPosition(mc.ID, d.StartPosition(mc))
	}

	c := coordinator.New(d, drv, bus, zerolog.Nop())
	c.Start()
	t.Cleanup(c.Stop)
	return c, bus
}

func testWorkflow() types.Workflow {
	return types.Workflow{
		ID:   "wf1",
		Name: "single read",
		Steps: []types.WorkflowStep{
			{StepID: "step1", StationID: "st1", DeviceID: "dev1", DeviceType: "reader"},
		},
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	state := types.PlateState{PlateID: "plateA", Phase: types.PhaseProcessing, StepIndex: 1}
	require.NoError(t, store.Put("plateA", state))

	rec, err := store.Get("plateA")
	require.NoError(t, err)
	require.Equal(t, "plateA", rec.PlateID)
	require.Equal(t, 0, rec.Revision)
	require.Equal(t, types.PhaseProcessing, rec.State.Phase)
}

func TestStorePutIncrementsRevision(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("plateA", types.PlateState{PlateID: "plateA", StepIndex: 0}))
	require.NoError(t, store.Put("plateA", types.PlateState{PlateID: "plateA", StepIndex: 1}))
	require.NoError(t, store.Put("plateA", types.PlateState{PlateID: "plateA", StepIndex: 2}))

	rec, err := store.Get("plateA")
	require.NoError(t, err)
	require.Equal(t, 2, rec.Revision)
	require.Equal(t, 2, rec.State.StepIndex)
}

func TestStoreListReturnsAllPlates(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("plateA", types.PlateState{PlateID: "plateA"}))
	require.NoError(t, store.Put("plateB", types.PlateState{PlateID: "plateB"}))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestStoreGetMissingPlateErrors(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("nope")
	require.Error(t, err)
}

func TestWriterPersistsSnapshotsOnPlateEvents(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	w := NewWriter(store, c)
	w.Start()
	defer w.Stop()

	_, err = c.SpawnPlate(ctx, "plateA", testWorkflow(), nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := store.Get("plateA")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	rec, err := store.Get("plateA")
	require.NoError(t, err)
	require.Equal(t, "plateA", rec.PlateID)
}
