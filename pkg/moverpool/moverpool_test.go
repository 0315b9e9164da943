package moverpool

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/types"
)

func newTestPool(t *testing.T, moverIDs []string, positions map[string]types.Position, tiles []types.Tile, tracks []types.Track) (*Pool, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(50, zerolog.Nop())
	p := New(moverIDs, positions, tiles, tracks, bus, zerolog.Nop())
	p.Start()
	t.Cleanup(p.Stop)
	return p, bus
}

// floorTiles covers X in [0, 1200), Y in [0, 240) with enabled tiles, wide
// enough for every position the tests below place a mover or hint at.
func floorTiles() []types.Tile {
	tiles := make([]types.Tile, 0, 5)
	for col := 0; col < 5; col++ {
		minX := float64(col) * types.TileSizeMM
		tiles = append(tiles, types.Tile{
			GridCol: col,
			GridRow: 0,
			Enabled: true,
			Bounds:  types.Bounds{MinX: minX, MinY: 0, MaxX: minX + types.TileSizeMM, MaxY: types.TileSizeMM},
		})
	}
	return tiles
}

// mainChainTracks is a single navigable run from X=0 to X=1000, broken into
// segments at the exact X values the tests below use (0, 800, 900, 950,
// 1000) so resolveAnchor snaps every test position to an unambiguous
// endpoint instead of splitting distance on a tie.
func mainChainTracks() []types.Track {
	return []types.Track{
		{ID: "trackA", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 800, Y: 0}},
		{ID: "trackB", Start: types.Position{X: 800, Y: 0}, End: types.Position{X: 900, Y: 0}},
		{ID: "trackC", Start: types.Position{X: 900, Y: 0}, End: types.Position{X: 950, Y: 0}},
		{ID: "trackD", Start: types.Position{X: 950, Y: 0}, End: types.Position{X: 1000, Y: 0}},
	}
}

func TestRequestMoverPicksCheapestPlannedRoute(t *testing.T) {
	positions := map[string]types.Position{
		"m1": {X: 0, Y: 0},
		"m2": {X: 1000, Y: 0},
	}
	p, _ := newTestPool(t, []string{"m1", "m2"}, positions, floorTiles(), mainChainTracks())
	ctx := context.Background()

	assignment, err := p.RequestMover(ctx, "plateA", types.Position{X: 900, Y: 0})
	require.NoError(t, err)
	assert.True(t, assignment.Granted)
	assert.Equal(t, "m2", assignment.MoverID)
}

func TestRequestMoverSkipsUnreachableMoverEvenIfCloserInAStraightLine(t *testing.T) {
	// m1 sits 15mm from the hint in a straight line but on a track that
	// doesn't connect to the hint's track (no shared endpoint within
	// TrackConnectionEpsilonMM of any main-chain endpoint). m2 sits 100mm
	// away by air but on the reachable chain. The pool must pick m2.
	tracks := append(mainChainTracks(), types.Track{
		ID:    "isolatedDock",
		Start: types.Position{X: 910, Y: 0},
		End:   types.Position{X: 930, Y: 0},
	})
	positions := map[string]types.Position{
		"m1": {X: 915, Y: 0}, // on isolatedDock, 15mm from the hint
		"m2": {X: 1000, Y: 0},
	}
	p, _ := newTestPool(t, []string{"m1", "m2"}, positions, floorTiles(), tracks)
	ctx := context.Background()

	assignment, err := p.RequestMover(ctx, "plateA", types.Position{X: 900, Y: 0})
	require.NoError(t, err)
	assert.True(t, assignment.Granted)
	assert.Equal(t, "m2", assignment.MoverID)
}

func TestRequestMoverQueuesWhenNoneAvailable(t *testing.T) {
	p, bus := newTestPool(t, []string{"m1"}, map[string]types.Position{"m1": {}}, nil, nil)
	ctx := context.Background()

	var assigned []string
	bus.Subscribe(EventMoverAssigned, func(e eventbus.Event) {
		assigned = append(assigned, e.Payload["plate_id"].(string))
	})

	a1, err := p.RequestMover(ctx, "plateA", types.Position{})
	require.NoError(t, err)
	require.True(t, a1.Granted)

	a2, err := p.RequestMover(ctx, "plateB", types.Position{})
	require.NoError(t, err)
	assert.False(t, a2.Granted)
	assert.Equal(t, 1, a2.QueuePosition)

	require.NoError(t, p.ReleaseMover(ctx, a1.MoverID))
	require.Eventually(t, func() bool { return len(assigned) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "plateB", assigned[0])
}

func TestRequestMoverWithNoMoversConfigured(t *testing.T) {
	p, _ := newTestPool(t, nil, nil, nil, nil)
	_, err := p.RequestMover(context.Background(), "plateA", types.Position{})
	assert.ErrorIs(t, err, ErrNoMoversConfigured)
}

func TestCancelRequestRemovesWaiter(t *testing.T) {
	p, bus := newTestPool(t, []string{"m1"}, map[string]types.Position{"m1": {}}, nil, nil)
	ctx := context.Background()
	var assigned []string
	bus.Subscribe(EventMoverAssigned, func(e eventbus.Event) {
		assigned = append(assigned, e.Payload["plate_id"].(string))
	})

	a1, err := p.RequestMover(ctx, "plateA", types.Position{})
	require.NoError(t, err)
	require.True(t, a1.Granted)

	_, err = p.RequestMover(ctx, "plateB", types.Position{})
	require.NoError(t, err)

	require.NoError(t, p.CancelRequest(ctx, "plateB"))
	require.NoError(t, p.ReleaseMover(ctx, a1.MoverID))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, assigned)
}

func TestUpdatePositionAffectsNextSelection(t *testing.T) {
	positions := map[string]types.Position{
		"m1": {X: 0, Y: 0},
		"m2": {X: 1000, Y: 0},
	}
	p, _ := newTestPool(t, []string{"m1", "m2"}, positions, floorTiles(), mainChainTracks())
	ctx := context.Background()

	require.NoError(t, p.UpdatePosition(ctx, "m1", types.Position{X: 950, Y: 0}))

	assignment, err := p.RequestMover(ctx, "plateA", types.Position{X: 900, Y: 0})
	require.NoError(t, err)
	assert.Equal(t, "m1", assignment.MoverID)
}
