// Package mover implements the mover actor: the physical transport state
// machine that executes a planner-produced route one primitive command at
// a time, ticking its simulated position forward and publishing mover.*
// events as it moves.
package mover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/actor"
	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// TickInterval is how often the mover advances its simulated position
// while a command is in flight, satisfying the sub-100ms position-polling
// cadence expected of mover state.
const TickInterval = 50 * time.Millisecond

// ErrBusy is returned when TransportTo is called while the mover already
// has a route in progress.
var ErrBusy = errors.New("mover: already transporting")

// ErrNotAssigned is returned when ReleaseFromPlate is called on a mover
// with no assigned plate.
var ErrNotAssigned = errors.New("mover: no plate currently assigned")

const (
	EventAssigned    = "mover.assigned"
	EventMoveStarted = "mover.transport_started"
	EventMoved       = "mover.position_changed"
	EventMoveDone    = "mover.transport_completed"
	EventMoveFailed  = "mover.transport_failed"
	EventReleased    = "mover.released"
)

// Driver is the physical transport contract a mover actor drives. A
// simulated implementation lives in pkg/driverapi; a real deployment
// would implement this against the PLC/conveyor network.
type Driver interface {
	ExecuteCommand(ctx context.Context, moverID string, cmd planner.Command) error
	GetPosition(ctx context.Context, moverID string) (types.Position, error)
}

type transportTo struct {
	destination planner.Anchor
}

type releaseFromPlate struct{}

type getState struct{}

type tickAdvance struct{}

// State is the externally-visible physical state of a mover, returned by
// GetState.
type State struct {
	Position      types.Position
	RunState      types.MoverRunState
	AssignedPlate string
	CommandIndex  int
	TotalCommands int
}

// Mover is a single transport unit's actor.
type Mover struct {
	id      string
	runtime *actor.Runtime
	driver  Driver
	pub     actor.EventPublisher
	logger  zerolog.Logger

	tiles  []types.Tile
	tracks []types.Track

	position      types.Position
	runState      types.MoverRunState
	assignedPlate string
	plan          *planner.Plan
	cmdIndex      int
}

// New constructs a mover actor with the given ID, starting position, and
// driver. tiles and tracks describe the deck the mover plans its own
// routes against. Call Start before issuing commands.
func New(id string, start types.Position, tiles []types.Tile, tracks []types.Track, driver Driver, pub actor.EventPublisher, logger zerolog.Logger) *Mover {
	m := &Mover{
		id:       id,
		driver:   driver,
		pub:      pub,
		logger:   logger,
		tiles:    tiles,
		tracks:   tracks,
		position: start,
		runState: types.MoverIdle,
	}
	m.runtime = actor.New(id, m.handle,
		actor.WithLogger(logger),
		actor.WithPublisher(pub),
		actor.WithTick(TickInterval, m.onTickAdvance),
	)
	return m
}

// ID returns the mover's identifier.
func (m *Mover) ID() string { return m.id }

// Start begins the mover's run loop.
func (m *Mover) Start() { m.runtime.Start() }

// Stop halts the mover.
func (m *Mover) Stop() { m.runtime.Stop() }

// TransportTo asks the mover to plan and drive a route to destination on
// behalf of plateID, one planner command at a time. The mover asks the
// path planner for the route itself, using its own current position as
// the source; a destination the planner can't reach (disconnected track,
// off the navigable surface) surfaces here as the planner's error.
func (m *Mover) TransportTo(ctx context.Context, plateID string, destination planner.Anchor) error {
	_, err := m.runtime.Ask(ctx, transportTo{destination: destination})
	if err != nil {
		return err
	}
	m.assignedPlate = plateID
	return nil
}

// ReleaseFromPlate clears the mover's plate assignment, used when a device
// takes over plate custody during processing (I5: the mover need not wait
// idle while its plate is being processed).
func (m *Mover) ReleaseFromPlate(ctx context.Context) error {
	_, err := m.runtime.Ask(ctx, releaseFromPlate{})
	return err
}

// GetState returns a snapshot of the mover's current physical state.
func (m *Mover) GetState(ctx context.Context) (State, error) {
	res, err := m.runtime.Ask(ctx, getState{})
	if err != nil {
		return State{}, err
	}
	return res.(State), nil
}

func (m *Mover) handle(msg interface{}) (interface{}, error) {
	switch req := msg.(type) {
	case transportTo:
		return nil, m.onTransportTo(req)
	case releaseFromPlate:
		return nil, m.onReleaseFromPlate()
	case getState:
		return m.onGetState(), nil
	case tickAdvance:
		m.onTickAdvance()
		return nil, nil
	default:
		return nil, fmt.Errorf("mover: unhandled message type %T", msg)
	}
}

func (m *Mover) onTransportTo(req transportTo) error {
	if m.plan != nil && m.cmdIndex < len(m.plan.Commands) {
		return ErrBusy
	}
	plan, err := planner.Plan(planner.Request{
		Source:      planner.Anchor{Position: m.position},
		Destination: req.destination,
		Tiles:       m.tiles,
		Tracks:      m.tracks,
	})
	if err != nil {
		return err
	}
	m.plan = plan
	m.cmdIndex = 0
	m.runState = types.MoverAssigned
	m.publish(EventMoveStarted, nil)
	if len(plan.Commands) == 0 {
		// Source and destination were already within TooCloseEpsilonMM:
		// nothing to drive, so the transport is complete as soon as it starts.
		m.runState = types.MoverAssigned
		m.publish(EventMoveDone, nil)
	}
	return nil
}

func (m *Mover) onReleaseFromPlate() error {
	if m.assignedPlate == "" {
		return ErrNotAssigned
	}
	plate := m.assignedPlate
	m.assignedPlate = ""
	if m.runState != types.MoverTransporting {
		m.runState = types.MoverIdle
	}
	m.publish(EventReleased, map[string]interface{}{"plate_id": plate})
	return nil
}

func (m *Mover) onGetState() State {
	total := 0
	if m.plan != nil {
		total = len(m.plan.Commands)
	}
	return State{
		Position:      m.position,
		RunState:      m.runState,
		AssignedPlate: m.assignedPlate,
		CommandIndex:  m.cmdIndex,
		TotalCommands: total,
	}
}

func (m *Mover) onTickAdvance() {
	if m.plan == nil || m.cmdIndex >= len(m.plan.Commands) {
		return
	}
	m.runState = types.MoverTransporting

	cmd := m.plan.Commands[m.cmdIndex]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.driver.ExecuteCommand(ctx, m.id, cmd); err != nil {
		m.runState = types.MoverAssigned
		m.publish(EventMoveFailed, map[string]interface{}{"error": err.Error(), "command_index": m.cmdIndex})
		return
	}

	pos, err := m.driver.GetPosition(ctx, m.id)
	if err == nil {
		m.position = pos
	}
	m.publish(EventMoved, map[string]interface{}{"x": m.position.X, "y": m.position.Y, "c": m.position.C})

	m.cmdIndex++
	if m.cmdIndex >= len(m.plan.Commands) {
		m.runState = types.MoverAssigned
		m.publish(EventMoveDone, nil)
	}
}

func (m *Mover) publish(eventType string, payload map[string]interface{}) {
	if m.pub == nil {
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["mover_id"] = m.id
	m.pub.Publish(eventType, payload)
}
