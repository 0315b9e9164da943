// Package plate implements the plate actor: the self-driving passenger
// that walks its assigned workflow from step to step, acquiring and
// releasing movers, stations, and devices along the way. It is the
// largest and most stateful actor in the system; every other actor
// package in Titan exists to be asked something by a plate.
package plate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/actor"
	"github.com/Boticus-OG/Titan/pkg/devicepool"
	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/moverpool"
	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/station"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// MaxHistory bounds the number of events retained directly on a plate
// actor for inspection.
const MaxHistory = 50

// DefaultAskTimeout bounds each sub-operation ask issued by the plate
// (mover/device/station pool calls), distinct from the much longer
// allowance given to device Process calls.
const DefaultAskTimeout = 10 * time.Second

// ErrUnknownControl is returned for unrecognized control messages; should
// never surface in practice since Plate only exposes typed methods.
var ErrUnknownControl = errors.New("plate: unknown control message")

const (
	EventCreated             = "plate.created"
	EventWorkflowAssigned    = "plate.workflow_assigned"
	EventMoverRequested      = "plate.mover_requested"
	EventMoverAssigned       = "plate.mover_assigned"
	EventTransportStarted    = "plate.transport_started"
	EventArrived             = "plate.arrived"
	EventDeviceRequested     = "plate.device_requested"
	EventLoading             = "plate.loading"
	EventMoverReleased       = "plate.mover_released"
	EventProcessingStarted   = "plate.processing_started"
	EventProcessingCompleted = "plate.processing_completed"
	EventUnloading           = "plate.unloading"
	EventStepCompleted       = "plate.step_completed"
	EventPaused              = "plate.paused"
	EventResumed             = "plate.resumed"
	EventError               = "plate.error"
	EventAborted             = "plate.aborted"
	EventWorkflowCompleted   = "plate.workflow_completed"
)

// MoverHandle is the subset of the mover actor's API a plate drives.
type MoverHandle interface {
	ID() string
	TransportTo(ctx context.Context, plateID string, destination planner.Anchor) error
	ReleaseFromPlate(ctx context.Context) error
}

// DeviceHandle is the subset of the device actor's API a plate drives.
type DeviceHandle interface {
	ID() string
	LoadPlate(ctx context.Context, plateID string) error
	Process(ctx context.Context, step types.WorkflowStep) error
	UnloadPlate(ctx context.Context) error
	Abort(ctx context.Context) error
}

// World resolves the live actor handles and named locations a plate needs
// in order to drive itself, decoupling the plate package from how the
// coordinator wires up movers, devices, and the deck. Deck geometry and
// routing are the mover's concern, not the plate's: a plate only ever
// names a destination and asks its mover to get there.
type World interface {
	GetMover(moverID string) (MoverHandle, bool)
	GetDevice(deviceID string) (DeviceHandle, bool)
	GetStation(stationID string) (types.Station, bool)
	ResolveLocation(name string) (planner.Anchor, error)
}

type controlMsg struct {
	kind   string // "retry", "skip", "getstate"
}

type continueWorkflow struct{}

// Plate is the passenger actor. Construct with New and call Start before
// AssignWorkflow.
type Plate struct {
	id      string
	runtime *actor.Runtime
	world   World
	stationMgr *station.Manager
	moverPool  *moverpool.Pool
	devicePool *devicepool.Pool
	bus     *eventbus.Bus
	logger  zerolog.Logger

	sampleIDs []string
	barcode   string
	workflow  types.Workflow
	stepIndex int
	phase     types.PlatePhase
	location  types.PlateLocation

	assignedMover string
	heldStation   string
	heldDevice    string
	pickupLeg     bool
	pausedFrom    types.PlatePhase

	startTime     time.Time
	stepStartTime time.Time
	lastError     string
	errorStep     int
	history       []types.HistoryEntry

	paused      atomic.Bool
	pauseReason atomic.Value
	aborted     atomic.Bool
	abortReason atomic.Value
}

// Deps bundles a plate's collaborators, grouped to keep New's signature
// manageable.
type Deps struct {
	World      World
	StationMgr *station.Manager
	MoverPool  *moverpool.Pool
	DevicePool *devicepool.Pool
	Bus        *eventbus.Bus
}

// New constructs a plate actor. It does not start running until Start is
// called, and does not begin its workflow until AssignWorkflow.
func New(id string, sampleIDs []string, barcode string, deps Deps, logger zerolog.Logger) *Plate {
	p := &Plate{
		id:         id,
		world:      deps.World,
		stationMgr: deps.StationMgr,
		moverPool:  deps.MoverPool,
		devicePool: deps.DevicePool,
		bus:        deps.Bus,
		logger:     logger,
		sampleIDs:  sampleIDs,
		barcode:    barcode,
		phase:      types.PhaseCreated,
		location:   types.PlateLocation{Kind: types.PlateLocUnassigned},
	}
	p.runtime = actor.New(id, p.handle,
		actor.WithLogger(logger),
		actor.WithPublisher(deps.Bus),
	)
	p.record(EventCreated, "")
	return p
}

// ID returns the plate's identifier.
func (p *Plate) ID() string { return p.id }

// Start begins the plate's run loop.
func (p *Plate) Start() { p.runtime.Start() }

// Stop halts the plate.
func (p *Plate) Stop() { p.runtime.Stop() }

// AssignWorkflow gives the plate its itinerary and kicks off autonomous
// driving. It is an error to call this more than once.
func (p *Plate) AssignWorkflow(ctx context.Context, wf types.Workflow) error {
	_, err := p.runtime.Ask(ctx, wf)
	return err
}

// Pause requests that the plate stop advancing at its next safe boundary.
// It does not go through the mailbox: it is a pure signal checked at the top
// of each phase transition. A transition already under way, such as a long
// device Process ask, runs to completion before the pause takes effect.
func (p *Plate) Pause(reason string) {
	p.pauseReason.Store(reason)
	p.paused.Store(true)
}

// Resume clears a pause and re-kicks the workflow loop from wherever it
// left off.
func (p *Plate) Resume(ctx context.Context) {
	p.paused.Store(false)
	_ = p.runtime.Tell(ctx, continueWorkflow{})
}

// Abort requests the plate release its held resources in reverse order and
// transition to aborted. Like Pause, it is a signal, not a mailbox
// message, seen at the next phase boundary, which can fall mid-step; it
// does not cancel a transition already under way, such as a device Process
// ask.
func (p *Plate) Abort(reason string) {
	p.abortReason.Store(reason)
	p.aborted.Store(true)
}

// RetryStep restarts the current step from scratch after an error.
func (p *Plate) RetryStep(ctx context.Context) error {
	_, err := p.runtime.Ask(ctx, controlMsg{kind: "retry"})
	return err
}

// SkipStep advances past the current step without executing it, after an
// error.
func (p *Plate) SkipStep(ctx context.Context) error {
	_, err := p.runtime.Ask(ctx, controlMsg{kind: "skip"})
	return err
}

// GetState returns an immutable snapshot of the plate's state.
func (p *Plate) GetState(ctx context.Context) (types.PlateState, error) {
	res, err := p.runtime.Ask(ctx, controlMsg{kind: "getstate"})
	if err != nil {
		return types.PlateState{}, err
	}
	return res.(types.PlateState), nil
}

func (p *Plate) handle(msg interface{}) (interface{}, error) {
	switch req := msg.(type) {
	case types.Workflow:
		return nil, p.onAssignWorkflow(req)
	case controlMsg:
		return p.onControl(req)
	case continueWorkflow:
		p.runWorkflowLoop(context.Background())
		return nil, nil
	default:
		return nil, fmt.Errorf("plate: unhandled message type %T", msg)
	}
}

func (p *Plate) onAssignWorkflow(wf types.Workflow) error {
	if p.phase != types.PhaseCreated {
		return fmt.Errorf("plate: workflow already assigned")
	}
	p.workflow = wf.Clone()
	p.startTime = time.Now()
	p.phase = types.PhaseReady
	p.record(EventWorkflowAssigned, wf.ID)
	_ = p.runtime.Tell(context.Background(), continueWorkflow{})
	return nil
}

func (p *Plate) onControl(req controlMsg) (interface{}, error) {
	switch req.kind {
	case "retry":
		if p.phase != types.PhaseError {
			return nil, fmt.Errorf("plate: cannot retry outside error phase")
		}
		p.releaseHeld(context.Background())
		p.lastError = ""
		p.pickupLeg = false
		p.phase = types.PhaseRequestingMover
		_ = p.runtime.Tell(context.Background(), continueWorkflow{})
		return nil, nil
	case "skip":
		if p.phase != types.PhaseError {
			return nil, fmt.Errorf("plate: cannot skip outside error phase")
		}
		p.releaseHeld(context.Background())
		p.lastError = ""
		p.stepIndex++
		p.phase = types.PhaseReady
		_ = p.runtime.Tell(context.Background(), continueWorkflow{})
		return nil, nil
	case "getstate":
		return p.snapshot(), nil
	default:
		return nil, ErrUnknownControl
	}
}

func (p *Plate) snapshot() types.PlateState {
	hist := make([]types.HistoryEntry, len(p.history))
	copy(hist, p.history)
	return types.PlateState{
		PlateID:       p.id,
		SampleIDs:     p.sampleIDs,
		Barcode:       p.barcode,
		Workflow:      p.workflow,
		StepIndex:     p.stepIndex,
		Phase:         p.phase,
		Location:      p.location,
		AssignedMover: p.assignedMover,
		StartTime:     p.startTime,
		StepStartTime: p.stepStartTime,
		LastError:     p.lastError,
		ErrorStep:     p.errorStep,
		History:       hist,
	}
}

func (p *Plate) currentStep() types.WorkflowStep {
	return p.workflow.Steps[p.stepIndex]
}

// runWorkflowLoop performs exactly one phase transition and, unless it hit a
// safe boundary (pause, abort, error, or workflow exhaustion), re-enqueues
// itself so the next transition runs after the mailbox has had a chance to
// drain anything else waiting for this plate — a GetState query in
// particular. This is what lets an operator poll a plate's progress mid-
// workflow instead of only between device Process calls.
func (p *Plate) runWorkflowLoop(ctx context.Context) {
	if p.aborted.Load() {
		p.doAbort(ctx)
		return
	}
	if p.paused.Load() {
		if p.phase != types.PhasePaused {
			p.pausedFrom = p.phase
			p.phase = types.PhasePaused
			p.record(EventPaused, fmt.Sprintf("%v", p.pauseReason.Load()))
		}
		return
	}
	if p.phase == types.PhasePaused {
		p.phase = p.pausedFrom
		p.record(EventResumed, "")
	}
	if p.phase.Terminal() || p.phase == types.PhaseError {
		return
	}

	done, err := p.advance(ctx)
	if err != nil {
		p.stepStartTime = time.Time{}
		p.errorStep = p.stepIndex
		p.lastError = err.Error()
		p.phase = types.PhaseError
		p.record(EventError, err.Error())
		return
	}
	if done {
		return
	}
	_ = p.runtime.Tell(ctx, continueWorkflow{})
}

// advance performs exactly one phase transition of a plate's per-step
// itinerary loop.
func (p *Plate) advance(ctx context.Context) (done bool, err error) {
	switch p.phase {
	case types.PhaseReady:
		if p.stepIndex >= len(p.workflow.Steps) {
			p.phase = types.PhaseCompleted
			p.record(EventWorkflowCompleted, "")
			return true, nil
		}
		p.stepStartTime = time.Now()
		p.pickupLeg = false
		p.phase = types.PhaseRequestingMover
		return false, nil

	case types.PhaseRequestingMover:
		return false, p.doRequestMover(ctx)

	case types.PhaseAwaitingMover:
		return false, p.doAwaitMover(ctx)

	case types.PhaseInTransit:
		return false, p.doInTransit(ctx)

	case types.PhaseRequestingDevice:
		return false, p.doRequestDevice(ctx)

	case types.PhaseLoading:
		return false, p.doLoading(ctx)

	case types.PhaseProcessing:
		return false, p.doProcessing(ctx)

	case types.PhaseUnloading:
		return false, p.doUnloading(ctx)

	default:
		return false, fmt.Errorf("plate: advance called in unexpected phase %q", p.phase)
	}
}

func (p *Plate) doRequestMover(ctx context.Context) error {
	step := p.currentStep()
	hint, err := p.pickupOrDockAnchor(step)
	if err != nil {
		return err
	}
	p.record(EventMoverRequested, step.StepID)

	askCtx, cancel := context.WithTimeout(ctx, DefaultAskTimeout)
	defer cancel()
	assignment, err := p.moverPool.RequestMover(askCtx, p.id, hint.Position)
	if err != nil {
		return err
	}
	if assignment.Granted {
		p.assignedMover = assignment.MoverID
		p.record(EventMoverAssigned, assignment.MoverID)
		if p.pickupLeg {
			p.phase = types.PhaseUnloading
		} else {
			p.phase = types.PhaseInTransit
		}
		return nil
	}
	p.phase = types.PhaseAwaitingMover
	return nil
}

func (p *Plate) doAwaitMover(ctx context.Context) error {
	event, err := awaitEvent(ctx, p.bus, moverpool.EventMoverAssigned, func(e eventbus.Event) bool {
		return e.Payload["plate_id"] == p.id
	})
	if err != nil {
		return fmt.Errorf("awaiting mover assignment: %w", err)
	}
	p.assignedMover = event.Payload["mover_id"].(string)
	p.record(EventMoverAssigned, p.assignedMover)
	if p.pickupLeg {
		p.phase = types.PhaseUnloading
	} else {
		p.phase = types.PhaseInTransit
	}
	return nil
}

func (p *Plate) doInTransit(ctx context.Context) error {
	step := p.currentStep()
	mv, ok := p.world.GetMover(p.assignedMover)
	if !ok {
		return fmt.Errorf("plate: unknown mover %q", p.assignedMover)
	}

	dest, err := p.world.ResolveLocation(p.dockLocationName(step))
	if err != nil {
		return err
	}
	p.record(EventTransportStarted, p.assignedMover)
	if err := mv.TransportTo(ctx, p.id, dest); err != nil {
		return err
	}
	if _, err := awaitEvent(ctx, p.bus, "mover.transport_completed", func(e eventbus.Event) bool {
		return e.Payload["mover_id"] == p.assignedMover
	}); err != nil {
		return fmt.Errorf("awaiting transport completion: %w", err)
	}
	p.location = types.PlateLocation{Kind: types.PlateLocOnMover, MoverID: p.assignedMover}
	p.record(EventArrived, p.assignedMover)
	p.phase = types.PhaseRequestingDevice
	return nil
}

func (p *Plate) doRequestDevice(ctx context.Context) error {
	step := p.currentStep()
	p.record(EventDeviceRequested, step.DeviceID)

	askCtx, cancel := context.WithTimeout(ctx, DefaultAskTimeout)
	defer cancel()

	stGrant, err := p.stationMgr.RequestAccess(askCtx, step.StationID, p.id)
	if err != nil {
		return err
	}
	if !stGrant.Granted {
		if _, err := awaitEvent(ctx, p.bus, station.EventAccessGranted, func(e eventbus.Event) bool {
			return e.Payload["plate_id"] == p.id && e.Payload["station_id"] == step.StationID
		}); err != nil {
			return fmt.Errorf("awaiting station access: %w", err)
		}
	}
	p.heldStation = step.StationID

	devGrant, err := p.devicePool.RequestDevice(askCtx, step.DeviceID, p.id)
	if err != nil {
		return err
	}
	if !devGrant.Granted {
		if _, err := awaitEvent(ctx, p.bus, devicepool.EventDeviceAssigned, func(e eventbus.Event) bool {
			return e.Payload["plate_id"] == p.id && e.Payload["device_id"] == step.DeviceID
		}); err != nil {
			return fmt.Errorf("awaiting device assignment: %w", err)
		}
	}
	p.heldDevice = step.DeviceID
	p.phase = types.PhaseLoading
	return nil
}

func (p *Plate) doLoading(ctx context.Context) error {
	step := p.currentStep()
	dev, ok := p.world.GetDevice(p.heldDevice)
	if !ok {
		return fmt.Errorf("plate: unknown device %q", p.heldDevice)
	}
	p.record(EventLoading, step.DeviceID)

	if err := dev.LoadPlate(ctx, p.id); err != nil {
		return err
	}
	p.location = types.PlateLocation{Kind: types.PlateLocInDevice, DeviceID: p.heldDevice}

	if mv, ok := p.world.GetMover(p.assignedMover); ok {
		_ = mv.ReleaseFromPlate(ctx)
	}
	if err := p.moverPool.ReleaseMover(ctx, p.assignedMover); err != nil {
		return err
	}
	p.record(EventMoverReleased, p.assignedMover)
	p.assignedMover = ""
	p.phase = types.PhaseProcessing
	return nil
}

func (p *Plate) doProcessing(ctx context.Context) error {
	step := p.currentStep()
	dev, ok := p.world.GetDevice(p.heldDevice)
	if !ok {
		return fmt.Errorf("plate: unknown device %q", p.heldDevice)
	}
	p.record(EventProcessingStarted, step.StepID)

	if err := dev.Process(ctx, step); err != nil {
		return err
	}
	p.record(EventProcessingCompleted, step.StepID)
	p.pickupLeg = true
	p.phase = types.PhaseRequestingMover
	return nil
}

func (p *Plate) doUnloading(ctx context.Context) error {
	step := p.currentStep()
	dev, ok := p.world.GetDevice(p.heldDevice)
	if !ok {
		return fmt.Errorf("plate: unknown device %q", p.heldDevice)
	}
	p.record(EventUnloading, step.DeviceID)

	if err := dev.UnloadPlate(ctx); err != nil {
		return err
	}
	p.location = types.PlateLocation{Kind: types.PlateLocOnMover, MoverID: p.assignedMover}

	if err := p.devicePool.ReleaseDevice(ctx, step.DeviceID, p.id); err != nil {
		return err
	}
	p.heldDevice = ""
	if err := p.stationMgr.ReleaseAccess(ctx, step.StationID, p.id); err != nil {
		return err
	}
	p.heldStation = ""

	p.record(EventStepCompleted, step.StepID)
	p.stepIndex++
	p.phase = types.PhaseReady
	return nil
}

// doAbort releases held resources in reverse order of acquisition: device
// unload (if held) → release device → release mover → release station.
func (p *Plate) doAbort(ctx context.Context) {
	p.releaseHeld(ctx)
	p.phase = types.PhaseAborted
	p.record(EventAborted, fmt.Sprintf("%v", p.abortReason.Load()))
}

func (p *Plate) releaseHeld(ctx context.Context) {
	if p.heldDevice != "" {
		if dev, ok := p.world.GetDevice(p.heldDevice); ok {
			// A device that cannot unload (latched error, nothing loaded)
			// is reset with Abort instead.
			if err := dev.UnloadPlate(ctx); err != nil {
				_ = dev.Abort(ctx)
			}
		}
		_ = p.devicePool.ReleaseDevice(ctx, p.heldDevice, p.id)
		p.heldDevice = ""
	}
	if p.assignedMover != "" {
		if mv, ok := p.world.GetMover(p.assignedMover); ok {
			_ = mv.ReleaseFromPlate(ctx)
		}
		_ = p.moverPool.ReleaseMover(ctx, p.assignedMover)
		p.assignedMover = ""
	}
	if p.heldStation != "" {
		step := p.currentStepSafe()
		stationID := p.heldStation
		if step.StationID != "" {
			stationID = step.StationID
		}
		_ = p.stationMgr.ReleaseAccess(ctx, stationID, p.id)
		p.heldStation = ""
	}
}

func (p *Plate) currentStepSafe() types.WorkflowStep {
	if p.stepIndex < len(p.workflow.Steps) {
		return p.currentStep()
	}
	return types.WorkflowStep{}
}

// pickupOrDockAnchor resolves the destination hint used for mover
// selection: the station's primary dock on the drop-off leg; on the pickup
// leg, the location named after the device when the deck has one, and the
// station's primary dock otherwise.
func (p *Plate) pickupOrDockAnchor(step types.WorkflowStep) (planner.Anchor, error) {
	if p.pickupLeg {
		if a, err := p.world.ResolveLocation(step.DeviceID); err == nil {
			return a, nil
		}
	}
	return p.world.ResolveLocation(p.dockLocationName(step))
}

func (p *Plate) dockLocationName(step types.WorkflowStep) string {
	if st, ok := p.world.GetStation(step.StationID); ok {
		return st.PrimaryLocation
	}
	return step.StationID
}

func (p *Plate) record(eventType, detail string) {
	entry := types.HistoryEntry{Timestamp: time.Now(), EventType: eventType, Detail: detail}
	p.history = append(p.history, entry)
	if len(p.history) > MaxHistory {
		p.history = p.history[len(p.history)-MaxHistory:]
	}
	if p.bus != nil {
		p.bus.Publish(eventType, map[string]interface{}{"plate_id": p.id, "detail": detail})
	}
}

func awaitEvent(ctx context.Context, bus *eventbus.Bus, pattern string, match func(eventbus.Event) bool) (eventbus.Event, error) {
	ch := make(chan eventbus.Event, 1)
	unsub := bus.Subscribe(pattern, func(e eventbus.Event) {
		if match(e) {
			select {
			case ch <- e:
			default:
			}
		}
	})
	defer unsub()

	select {
	case e := <-ch:
		return e, nil
	case <-ctx.Done():
		return eventbus.Event{}, ctx.Err()
	}
}
