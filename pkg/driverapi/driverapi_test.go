package driverapi

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/types"
)

func TestFreeMoveUpdatesPosition(t *testing.T) {
	d := NewSimulatedDriver(0, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, d.ExecuteCommand(ctx, "m1", planner.Command{Kind: planner.CommandFreeMove, X: 10, Y: 20}))
	pos, err := d.GetPosition(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.Position{X: 10, Y: 20}, pos)
}

func TestRotateUpdatesHeadingOnly(t *testing.T) {
	d := NewSimulatedDriver(0, zerolog.Nop())
	ctx := context.Background()
	d.SeedPosition("m1", types.Position{X: 5, Y: 5})

	require.NoError(t, d.ExecuteCommand(ctx, "m1", planner.Command{Kind: planner.CommandRotate, C: 180}))
	pos, err := d.GetPosition(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.Position{X: 5, Y: 5, C: 180}, pos)
}

func TestProcessInvokesCompletionListeners(t *testing.T) {
	d := NewSimulatedDriver(0, zerolog.Nop())
	var gotStep string
	d.RegisterCompletionListener(func(deviceID, plateID, stepID string) { gotStep = stepID })

	require.NoError(t, d.Process(context.Background(), "dev1", types.WorkflowStep{StepID: "s1"}))
	assert.Equal(t, "s1", gotStep)
}

func TestProcessRespectsContextCancellation(t *testing.T) {
	d := NewSimulatedDriver(time.Second, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Process(ctx, "dev1", types.WorkflowStep{StepID: "s1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
