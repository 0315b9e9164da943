// Package devicepool dispatches exclusive access to individual devices. Each
// device has capacity 1 and its own FIFO wait queue; unlike moverpool there
// is no cost-based selection among alternatives, since a workflow step
// names the specific device (or a device resolved from a device type
// earlier in the pipeline) it needs.
package devicepool

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/actor"
)

// ErrUnknownDevice is returned for requests naming a device ID the pool
// wasn't configured with.
var ErrUnknownDevice = errors.New("devicepool: unknown device id")

// EventDeviceAssigned is published when a device is handed to a plate.
const EventDeviceAssigned = "devicepool.device_assigned"

type deviceState struct {
	holder string
	queue  []string // plate IDs, FIFO
}

type requestDevice struct {
	deviceID string
	plateID  string
}

type releaseDevice struct {
	deviceID string
	plateID  string
}

type cancelRequest struct {
	deviceID string
	plateID  string
}

// Grant describes the outcome of a RequestDevice call.
type Grant struct {
	Granted       bool
	QueuePosition int
}

// Pool is the device dispatch actor.
type Pool struct {
	runtime *actor.Runtime
	devices map[string]*deviceState
	pub     actor.EventPublisher
	logger  zerolog.Logger
}

// New builds a device pool for the given device IDs.
func New(deviceIDs []string, pub actor.EventPublisher, logger zerolog.Logger) *Pool {
	p := &Pool{
		devices: make(map[string]*deviceState, len(deviceIDs)),
		pub:     pub,
		logger:  logger,
	}
	for _, id := range deviceIDs {
		p.devices[id] = &deviceState{}
	}
	p.runtime = actor.New("device-pool", p.handle,
		actor.WithLogger(logger),
		actor.WithPublisher(pub),
	)
	return p
}

// Start begins processing requests.
func (p *Pool) Start() { p.runtime.Start() }

// Stop halts the pool.
func (p *Pool) Stop() { p.runtime.Stop() }

// RequestDevice asks for exclusive access to deviceID on behalf of
// plateID, FIFO queueing if it's already held.
func (p *Pool) RequestDevice(ctx context.Context, deviceID, plateID string) (Grant, error) {
	res, err := p.runtime.Ask(ctx, requestDevice{deviceID: deviceID, plateID: plateID})
	if err != nil {
		return Grant{}, err
	}
	return res.(Grant), nil
}

// ReleaseDevice gives up plateID's hold on deviceID, handing it to the next
// waiter if any.
func (p *Pool) ReleaseDevice(ctx context.Context, deviceID, plateID string) error {
	_, err := p.runtime.Ask(ctx, releaseDevice{deviceID: deviceID, plateID: plateID})
	return err
}

// CancelRequest removes plateID from deviceID's wait queue.
func (p *Pool) CancelRequest(ctx context.Context, deviceID, plateID string) error {
	_, err := p.runtime.Ask(ctx, cancelRequest{deviceID: deviceID, plateID: plateID})
	return err
}

func (p *Pool) handle(msg interface{}) (interface{}, error) {
	switch req := msg.(type) {
	case requestDevice:
		return p.onRequestDevice(req)
	case releaseDevice:
		return nil, p.onReleaseDevice(req)
	case cancelRequest:
		return nil, p.onCancelRequest(req)
	default:
		return nil, fmt.Errorf("devicepool: unhandled message type %T", msg)
	}
}

func (p *Pool) onRequestDevice(req requestDevice) (Grant, error) {
	st, ok := p.devices[req.deviceID]
	if !ok {
		return Grant{}, ErrUnknownDevice
	}
	if st.holder == "" {
		st.holder = req.plateID
		p.publishAssigned(req.deviceID, req.plateID)
		return Grant{Granted: true}, nil
	}
	st.queue = append(st.queue, req.plateID)
	return Grant{Granted: false, QueuePosition: len(st.queue)}, nil
}

func (p *Pool) onReleaseDevice(req releaseDevice) error {
	st, ok := p.devices[req.deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	if st.holder != req.plateID {
		return fmt.Errorf("devicepool: plate %s does not hold device %s", req.plateID, req.deviceID)
	}
	st.holder = ""
	if len(st.queue) > 0 {
		next := st.queue[0]
		st.queue = st.queue[1:]
		st.holder = next
		p.publishAssigned(req.deviceID, next)
	}
	return nil
}

func (p *Pool) onCancelRequest(req cancelRequest) error {
	st, ok := p.devices[req.deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	for i, id := range st.queue {
		if id == req.plateID {
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *Pool) publishAssigned(deviceID, plateID string) {
	if p.pub == nil {
		return
	}
	p.pub.Publish(EventDeviceAssigned, map[string]interface{}{
		"device_id": deviceID,
		"plate_id":  plateID,
	})
}
