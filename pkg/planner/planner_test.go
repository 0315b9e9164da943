package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/types"
)

func tile(minX, minY, maxX, maxY float64, enabled bool) types.Tile {
	return types.Tile{Enabled: enabled, Bounds: types.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}}
}

func TestPlanWithinEpsilonSkipsWithoutError(t *testing.T) {
	req := Request{
		Source:      Anchor{Position: types.Position{X: 100, Y: 100}},
		Destination: Anchor{Position: types.Position{X: 100.5, Y: 100}},
		Tiles:       []types.Tile{tile(0, 0, 240, 240, true)},
	}
	plan, err := Plan(req)
	require.NoError(t, err)
	assert.True(t, plan.Skipped)
	assert.Empty(t, plan.Commands)
}

func TestPlanToDisabledTileIsUnreachable(t *testing.T) {
	req := Request{
		Source:      Anchor{Position: types.Position{X: 10, Y: 10}},
		Destination: Anchor{Position: types.Position{X: 300, Y: 10}},
		Tiles: []types.Tile{
			tile(0, 0, 240, 240, true),
			tile(240, 0, 480, 240, false),
		},
	}
	_, err := Plan(req)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPlanSameTrackFollowsToDistance(t *testing.T) {
	tr := types.Track{ID: "t1", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 0, Y: 1000}}
	req := Request{
		Source:      Anchor{Position: types.Position{X: 0, Y: 100}, TrackID: "t1", Distance: 100},
		Destination: Anchor{Position: types.Position{X: 0, Y: 800}, TrackID: "t1", Distance: 800},
		Tiles:       []types.Tile{tile(0, 0, 240, 2400, true)},
		Tracks:      []types.Track{tr},
	}
	plan, err := Plan(req)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Commands)
	last := plan.Commands[len(plan.Commands)-1]
	assert.Equal(t, CommandRotate, last.Kind)
	var followed bool
	for _, c := range plan.Commands {
		if c.Kind == CommandFollow && c.Distance == 800 {
			followed = true
		}
	}
	assert.True(t, followed)
}

func TestPlanAcrossConnectedTracksTransitions(t *testing.T) {
	t1 := types.Track{ID: "t1", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 0, Y: 1000}}
	t2 := types.Track{ID: "t2", Start: types.Position{X: 0, Y: 1000}, End: types.Position{X: 0, Y: 2000}}
	req := Request{
		Source:      Anchor{Position: types.Position{X: 0, Y: 100}, TrackID: "t1", Distance: 100},
		Destination: Anchor{Position: types.Position{X: 0, Y: 1900}, TrackID: "t2", Distance: 900},
		Tiles:       []types.Tile{tile(0, 0, 240, 2400, true)},
		Tracks:      []types.Track{t1, t2},
	}
	plan, err := Plan(req)
	require.NoError(t, err)

	var sawTransition bool
	for _, c := range plan.Commands {
		if c.Kind == CommandTransition {
			sawTransition = true
			assert.Equal(t, "t1", c.TrackID)
			assert.Equal(t, "t2", c.ToTrackID)
		}
	}
	assert.True(t, sawTransition)
}

func TestPlanDisconnectedTracksHasNoRoute(t *testing.T) {
	t1 := types.Track{ID: "t1", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 0, Y: 1000}}
	t2 := types.Track{ID: "t2", Start: types.Position{X: 5000, Y: 0}, End: types.Position{X: 5000, Y: 1000}}
	req := Request{
		Source:      Anchor{Position: types.Position{X: 0, Y: 100}, TrackID: "t1", Distance: 100},
		Destination: Anchor{Position: types.Position{X: 5000, Y: 900}, TrackID: "t2", Distance: 900},
		Tiles:       []types.Tile{tile(0, 0, 6000, 2400, true)},
		Tracks:      []types.Track{t1, t2},
	}
	_, err := Plan(req)
	assert.True(t, errors.Is(err, ErrNoRoute))
}

func TestPlanFreeMoveWithinSingleTile(t *testing.T) {
	req := Request{
		Source:      Anchor{Position: types.Position{X: 10, Y: 10}},
		Destination: Anchor{Position: types.Position{X: 200, Y: 200}},
		Tiles:       []types.Tile{tile(0, 0, 240, 240, true)},
	}
	plan, err := Plan(req)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Commands)
	assert.Equal(t, CommandFreeMove, plan.Commands[0].Kind)
}

func TestPlanInsertsHopOnHopOffForUnanchoredEndpoints(t *testing.T) {
	tr := types.Track{ID: "t1", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 0, Y: 1000}}
	req := Request{
		Source:      Anchor{Position: types.Position{X: 1, Y: 1}},
		Destination: Anchor{Position: types.Position{X: 1, Y: 999}},
		Tiles:       []types.Tile{tile(0, 0, 240, 2400, true)},
		Tracks:      []types.Track{tr},
	}
	plan, err := Plan(req)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Commands)
	assert.Equal(t, CommandHopOn, plan.Commands[0].Kind)
	assert.Equal(t, CommandHopOff, plan.Commands[len(plan.Commands)-2].Kind)
}

func TestPlanStaysOnSharedExplicitTrack(t *testing.T) {
	// Two routes from cluster A to cluster C: a direct track, and two tracks
	// via an intermediate junction B that are longer in total (1000 mm plus
	// about 5099 mm).
	direct := types.Track{ID: "direct", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 0, Y: 5000}}
	hopA := types.Track{ID: "hopA", Start: types.Position{X: 0, Y: 0}, End: types.Position{X: 1000, Y: 0}}
	hopB := types.Track{ID: "hopB", Start: types.Position{X: 1000, Y: 0}, End: types.Position{X: 0, Y: 5000}}

	req := Request{
		Source:      Anchor{Position: types.Position{X: 0, Y: 0}, TrackID: "direct", Distance: 0},
		Destination: Anchor{Position: types.Position{X: 0, Y: 5000}, TrackID: "direct", Distance: 5000},
		Tiles:       []types.Tile{tile(-1000, 0, 1000, 6000, true)},
		Tracks:      []types.Track{direct, hopA, hopB},
	}
	plan, err := Plan(req)
	require.NoError(t, err)
	// Source and destination are both explicitly on "direct" so the planner
	// should take the trivial same-track route without consulting the
	// junction graph, since it never leaves the anchor track.
	assert.Equal(t, 5000.0, plan.EstimatedCost)
}
