// Package device implements the device actor: the state machine that
// drives a physical instrument (a reader, a sealer, a centrifuge) through
// load, process, and unload against the driver contract, publishing
// device.* events and transitioning to an error state on any driver
// failure.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/actor"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// ErrBusy is returned when a device operation is requested while the
// device is not in the expected state for it.
var ErrBusy = errors.New("device: not available for requested operation")

// ErrInError is returned when an operation is requested on a device
// currently in its error state; it must be reset via Abort first.
var ErrInError = errors.New("device: device is in error state")

// ErrAbortRefused is returned when Abort is called while the device is mid
// unload: that sequence has no cancellable driver call, so interrupting it
// would leave the physical instrument in an unknown state. A loaded plate
// waiting on Process, or an in-flight Process itself, can both be safely
// aborted.
var ErrAbortRefused = errors.New("device: abort refused, current operation cannot be safely cancelled")

const (
	EventLoadStarted        = "device.load_started"
	EventLoaded             = "device.loaded"
	EventProcessStarted     = "device.processing_started"
	EventProcessingProgress = "device.processing_progress"
	EventProcessed          = "device.processing_completed"
	EventUnloadStarted      = "device.unload_started"
	EventUnloaded           = "device.unloaded"
	EventError              = "device.error"
	EventReset              = "device.reset"
)

// DefaultProgressInterval is the cadence at which onProcess publishes
// device.processing_progress while a Process call is outstanding, unless
// overridden with WithProgressInterval.
const DefaultProgressInterval = 2 * time.Second

// Option configures optional Device behavior at construction time.
type Option func(*Device)

// WithProgressInterval overrides the cadence of device.processing_progress
// events published while a Process call is outstanding. Mainly useful in
// tests, where waiting out the default cadence would be wasteful.
func WithProgressInterval(interval time.Duration) Option {
	return func(d *Device) { d.progressInterval = interval }
}

// Driver is the physical instrument contract a device actor drives.
type Driver interface {
	Load(ctx context.Context, deviceID, plateID string) error
	Process(ctx context.Context, deviceID string, step types.WorkflowStep) error
	Unload(ctx context.Context, deviceID, plateID string) error
}

type loadPlate struct {
	plateID string
}

type process struct {
	step types.WorkflowStep
}

type unloadPlate struct{}

type abort struct{}

type getState struct{}

// State is the externally-visible state of a device, returned by GetState.
type State struct {
	RunState      types.DeviceRunState
	LoadedPlate   string
	LastError     string
}

// Device is a single instrument's actor.
type Device struct {
	id      string
	runtime *actor.Runtime
	driver  Driver
	pub     actor.EventPublisher
	logger  zerolog.Logger

	runState    types.DeviceRunState
	loadedPlate string
	lastError   string

	progressInterval time.Duration

	// cancelMu guards cancel, which Abort reads and calls from whatever
	// goroutine invokes it, outside the mailbox: onProcess's blocking
	// driver call has the mailbox pinned, so cancellation can't wait for
	// an abort message to reach the front of the queue.
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New constructs a device actor. Call Start before issuing commands.
func New(id string, driver Driver, pub actor.EventPublisher, logger zerolog.Logger, opts ...Option) *Device {
	d := &Device{
		id:               id,
		driver:           driver,
		pub:              pub,
		logger:           logger,
		runState:         types.DeviceIdle,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.runtime = actor.New(id, d.handle,
		actor.WithLogger(logger),
		actor.WithPublisher(pub),
	)
	return d
}

// ID returns the device's identifier.
func (d *Device) ID() string { return d.id }

// Start begins the device's run loop.
func (d *Device) Start() { d.runtime.Start() }

// Stop halts the device.
func (d *Device) Stop() { d.runtime.Stop() }

// LoadPlate drives the physical load sequence for plateID.
func (d *Device) LoadPlate(ctx context.Context, plateID string) error {
	_, err := d.runtime.Ask(ctx, loadPlate{plateID: plateID})
	return err
}

// Process runs a single workflow step against the currently loaded plate.
func (d *Device) Process(ctx context.Context, step types.WorkflowStep) error {
	_, err := d.runtime.Ask(ctx, process{step: step})
	return err
}

// UnloadPlate drives the physical unload sequence, freeing the device.
func (d *Device) UnloadPlate(ctx context.Context) error {
	_, err := d.runtime.Ask(ctx, unloadPlate{})
	return err
}

// Abort cancels an in-flight Process call if one is running, then resets
// the device to idle and clears any error state. Cancellation happens
// immediately, outside the mailbox, since onProcess holds the mailbox for
// the duration of its blocking driver call and couldn't otherwise see an
// abort message until that call returns on its own. If the device is mid
// unload instead, there is no cancellable driver call in flight, so Abort
// is refused rather than interrupting a sequence with no defined recovery
// point.
func (d *Device) Abort(ctx context.Context) error {
	d.cancelProcess()
	_, err := d.runtime.Ask(ctx, abort{})
	return err
}

func (d *Device) cancelProcess() {
	d.cancelMu.Lock()
	cancel := d.cancel
	d.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *Device) setCancel(cancel context.CancelFunc) {
	d.cancelMu.Lock()
	d.cancel = cancel
	d.cancelMu.Unlock()
}

// GetState returns a snapshot of the device's current state.
func (d *Device) GetState(ctx context.Context) (State, error) {
	res, err := d.runtime.Ask(ctx, getState{})
	if err != nil {
		return State{}, err
	}
	return res.(State), nil
}

func (d *Device) handle(msg interface{}) (interface{}, error) {
	switch req := msg.(type) {
	case loadPlate:
		return nil, d.onLoadPlate(req)
	case process:
		return nil, d.onProcess(req)
	case unloadPlate:
		return nil, d.onUnloadPlate()
	case abort:
		return nil, d.onAbort()
	case getState:
		return d.onGetState(), nil
	default:
		return nil, fmt.Errorf("device: unhandled message type %T", msg)
	}
}

func (d *Device) onLoadPlate(req loadPlate) error {
	if d.runState == types.DeviceError {
		return ErrInError
	}
	if d.runState != types.DeviceIdle {
		return ErrBusy
	}
	d.runState = types.DeviceLoading
	d.publish(EventLoadStarted, map[string]interface{}{"plate_id": req.plateID})

	ctx := context.Background()
	if err := d.driver.Load(ctx, d.id, req.plateID); err != nil {
		d.fail(err)
		return err
	}
	d.loadedPlate = req.plateID
	d.runState = types.DeviceLoading // remains loading until caller issues Process
	d.publish(EventLoaded, map[string]interface{}{"plate_id": req.plateID})
	return nil
}

func (d *Device) onProcess(req process) error {
	if d.runState == types.DeviceError {
		return ErrInError
	}
	if d.loadedPlate == "" {
		return ErrBusy
	}
	d.runState = types.DeviceProcessing
	d.publish(EventProcessStarted, map[string]interface{}{"plate_id": d.loadedPlate, "step_id": req.step.StepID})

	ctx, cancel := context.WithCancel(context.Background())
	d.setCancel(cancel)
	defer d.setCancel(nil)
	defer cancel()

	plateID, stepID := d.loadedPlate, req.step.StepID
	progressDone := make(chan struct{})
	go d.reportProgress(plateID, stepID, progressDone)
	err := d.driver.Process(ctx, d.id, req.step)
	close(progressDone)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			d.runState = types.DeviceLoading // plate still holds the device until Abort/UnloadPlate runs
			return err
		}
		d.fail(err)
		return err
	}
	d.publish(EventProcessed, map[string]interface{}{"plate_id": d.loadedPlate, "step_id": req.step.StepID})
	return nil
}

// reportProgress publishes device.processing_progress at the device's
// configured interval until done is closed, giving an observer visibility
// into a Process call that can run far longer than a single mailbox round
// trip.
func (d *Device) reportProgress(plateID, stepID string, done <-chan struct{}) {
	ticker := time.NewTicker(d.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.publish(EventProcessingProgress, map[string]interface{}{"plate_id": plateID, "step_id": stepID})
		}
	}
}

func (d *Device) onUnloadPlate() error {
	if d.runState == types.DeviceError {
		return ErrInError
	}
	if d.loadedPlate == "" {
		return ErrBusy
	}
	plate := d.loadedPlate
	d.runState = types.DeviceUnloading
	d.publish(EventUnloadStarted, map[string]interface{}{"plate_id": plate})

	ctx := context.Background()
	if err := d.driver.Unload(ctx, d.id, plate); err != nil {
		d.fail(err)
		return err
	}
	d.loadedPlate = ""
	d.runState = types.DeviceIdle
	d.publish(EventUnloaded, map[string]interface{}{"plate_id": plate})
	return nil
}

func (d *Device) onAbort() error {
	// Unload, unlike Process, has no cancellable driver call backing it: a
	// driver that takes real time to physically eject a plate gives us no
	// safe point to abandon the sequence. Process is handled above, before
	// onAbort ever runs, since its cancellation has to happen outside the
	// mailbox; by the time onAbort is dequeued, any Process is already
	// resolved one way or another.
	if d.runState == types.DeviceUnloading {
		return ErrAbortRefused
	}
	plate := d.loadedPlate
	d.loadedPlate = ""
	d.runState = types.DeviceIdle
	d.lastError = ""
	d.publish(EventReset, map[string]interface{}{"plate_id": plate})
	return nil
}

func (d *Device) onGetState() State {
	return State{RunState: d.runState, LoadedPlate: d.loadedPlate, LastError: d.lastError}
}

func (d *Device) fail(err error) {
	d.runState = types.DeviceError
	d.lastError = err.Error()
	d.publish(EventError, map[string]interface{}{"plate_id": d.loadedPlate, "error": err.Error()})
}

func (d *Device) publish(eventType string, payload map[string]interface{}) {
	if d.pub == nil {
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["device_id"] = d.id
	d.pub.Publish(eventType, payload)
}
