package mover

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/types"
)

type fakeDriver struct {
	pos       types.Position
	failAfter int
	calls     int
}

func (d *fakeDriver) ExecuteCommand(ctx context.Context, moverID string, cmd planner.Command) error {
	d.calls++
	if d.failAfter > 0 && d.calls >= d.failAfter {
		return assert.AnError
	}
	d.pos.X = cmd.X
	d.pos.Y = cmd.Y
	return nil
}

func (d *fakeDriver) GetPosition(ctx context.Context, moverID string) (types.Position, error) {
	return d.pos, nil
}

// floorTile covers every position these tests move a mover to or from, so
// TransportTo's internal planner.Plan call resolves with a single free_move.
var floorTile = types.Tile{GridCol: 0, GridRow: 0, Enabled: true, Bounds: types.Bounds{MinX: -100, MinY: -100, MaxX: 1000, MaxY: 1000}}

func TestTransportToExecutesPlanToCompletion(t *testing.T) {
	driver := &fakeDriver{}
	bus := eventbus.New(50, zerolog.Nop())
	m := New("m1", types.Position{}, []types.Tile{floorTile}, nil, driver, bus, zerolog.Nop())
	m.Start()
	defer m.Stop()

	var done bool
	bus.Subscribe(EventMoveDone, func(e eventbus.Event) { done = true })

	require.NoError(t, m.TransportTo(context.Background(), "plateA", planner.Anchor{Position: types.Position{X: 100, Y: 100}}))

	require.Eventually(t, func() bool { return done }, time.Second, time.Millisecond)

	state, err := m.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.MoverAssigned, state.RunState)
	assert.Equal(t, 2, state.CommandIndex) // free_move + rotate
}

func TestTransportToWhileBusyFails(t *testing.T) {
	driver := &fakeDriver{}
	bus := eventbus.New(50, zerolog.Nop())
	m := New("m1", types.Position{}, []types.Tile{floorTile}, nil, driver, bus, zerolog.Nop())
	m.Start()
	defer m.Stop()

	dest := planner.Anchor{Position: types.Position{X: 1, Y: 1}}
	require.NoError(t, m.TransportTo(context.Background(), "plateA", dest))

	err := m.TransportTo(context.Background(), "plateB", dest)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestTransportToUnreachableDestinationFails(t *testing.T) {
	driver := &fakeDriver{}
	bus := eventbus.New(50, zerolog.Nop())
	m := New("m1", types.Position{}, nil, nil, driver, bus, zerolog.Nop())
	m.Start()
	defer m.Stop()

	err := m.TransportTo(context.Background(), "plateA", planner.Anchor{Position: types.Position{X: 500, Y: 500}})
	assert.ErrorIs(t, err, planner.ErrUnreachable)
}

func TestReleaseFromPlateWithoutAssignmentFails(t *testing.T) {
	bus := eventbus.New(50, zerolog.Nop())
	m := New("m1", types.Position{}, []types.Tile{floorTile}, nil, &fakeDriver{}, bus, zerolog.Nop())
	m.Start()
	defer m.Stop()

	err := m.ReleaseFromPlate(context.Background())
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestDriverFailureReportsMoveFailed(t *testing.T) {
	driver := &fakeDriver{failAfter: 1}
	bus := eventbus.New(50, zerolog.Nop())
	m := New("m1", types.Position{}, []types.Tile{floorTile}, nil, driver, bus, zerolog.Nop())
	m.Start()
	defer m.Stop()

	var failed bool
	bus.Subscribe(EventMoveFailed, func(e eventbus.Event) { failed = true })

	require.NoError(t, m.TransportTo(context.Background(), "plateA", planner.Anchor{Position: types.Position{X: 1, Y: 1}}))

	require.Eventually(t, func() bool { return failed }, time.Second, time.Millisecond)
}
