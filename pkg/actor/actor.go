// Package actor implements Titan's actor runtime: a bounded mailbox, the
// tell/ask send primitives, a cooperative drain-then-tick loop, and
// lifecycle management. Every other runtime package (mover, device,
// station, moverpool, devicepool, plate) embeds a *Runtime and drives it
// with a closed-over message handler, rather than re-implementing mailbox
// plumbing.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMailboxSize is the bounded mailbox capacity used when callers don't
// override it.
const DefaultMailboxSize = 256

// DefaultDrainCap bounds how many queued messages a single loop iteration
// will process before yielding to Tick, so a bursty sender can never starve
// an actor's autonomous behavior.
const DefaultDrainCap = 64

// ErrTimeout is returned by Ask when the deadline elapses before a reply
// arrives. The handler is not cancelled; it discovers the reply channel is
// abandoned when it tries to send on it.
var ErrTimeout = errors.New("actor: ask timed out")

// ErrStopped is returned by Tell/Ask when the actor is no longer running.
var ErrStopped = errors.New("actor: stopped")

// Reply carries a handler's result back to an Ask caller.
type Reply struct {
	Value interface{}
	Err   error
}

type envelope struct {
	msg   interface{}
	reply chan Reply
}

// Handler processes one mailbox message and optionally returns a value
// and/or an error. A handler that panics is recovered by the runtime and
// reported exactly like a returned error.
type Handler func(msg interface{}) (interface{}, error)

// EventPublisher is the minimal surface the runtime needs to report
// actor.error events. pkg/eventbus satisfies it.
type EventPublisher interface {
	Publish(eventType string, payload map[string]interface{})
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithMailboxSize overrides DefaultMailboxSize.
func WithMailboxSize(n int) Option {
	return func(r *Runtime) { r.mailbox = make(chan envelope, n) }
}

// WithDrainCap overrides DefaultDrainCap.
func WithDrainCap(n int) Option {
	return func(r *Runtime) { r.drainCap = n }
}

// WithTick registers the actor's autonomous behavior, invoked once per loop
// iteration after the mailbox has been drained. If interval is zero the
// loop still calls tick once per iteration but only iterates when a message
// arrives (or Stop is called); pass a positive interval to also wake up on
// a fixed cadence with an empty mailbox.
func WithTick(interval time.Duration, tick func()) Option {
	return func(r *Runtime) {
		r.tick = tick
		r.tickInterval = interval
	}
}

// WithOnStop registers a hook run once, after the loop exits, to release
// any external resources the actor owns.
func WithOnStop(onStop func()) Option {
	return func(r *Runtime) { r.onStop = onStop }
}

// WithPublisher wires an event bus so handler panics and errors are
// reported as actor.error events in addition to being logged.
func WithPublisher(pub EventPublisher) Option {
	return func(r *Runtime) { r.publisher = pub }
}

// WithLogger overrides the runtime's logger (defaults to a disabled logger).
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// Runtime is the generic actor loop. It is embedded (by composition, not
// Go-embedding) inside domain actors: a domain actor owns a *Runtime and a
// Handler closure over its own state.
type Runtime struct {
	id           string
	mailbox      chan envelope
	stopCh       chan struct{}
	doneCh       chan struct{}
	drainCap     int
	tick         func()
	tickInterval time.Duration
	onStop       func()
	handler      Handler
	publisher    EventPublisher
	logger       zerolog.Logger

	started atomic.Bool
	stopped atomic.Bool
	stopOnce sync.Once
}

// New creates a Runtime with the given identity and message handler. The
// actor is not started until Start is called.
func New(id string, handler Handler, opts ...Option) *Runtime {
	r := &Runtime{
		id:       id,
		mailbox:  make(chan envelope, DefaultMailboxSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		drainCap: DefaultDrainCap,
		handler:  handler,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the actor's identity.
func (r *Runtime) ID() string { return r.id }

// Start launches the actor's loop in its own goroutine. Start is idempotent;
// calling it more than once has no effect after the first call.
func (r *Runtime) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.loop()
}

// Stop signals the loop to exit, runs the on_stop hook, and blocks until
// teardown is complete.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		close(r.stopCh)
	})
	<-r.doneCh
}

// Tell enqueues msg without waiting for a response. It blocks until mailbox
// space is available, the actor stops, or ctx is done.
func (r *Runtime) Tell(ctx context.Context, msg interface{}) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	select {
	case r.mailbox <- envelope{msg: msg}:
		return nil
	case <-r.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ask enqueues msg and blocks for a reply until one arrives, the actor
// stops, or ctx's deadline elapses. On deadline the reply channel is
// abandoned; the handler's eventual send into it is silently discarded.
func (r *Runtime) Ask(ctx context.Context, msg interface{}) (interface{}, error) {
	if r.stopped.Load() {
		return nil, ErrStopped
	}
	reply := make(chan Reply, 1)
	select {
	case r.mailbox <- envelope{msg: msg, reply: reply}:
	case <-r.stopCh:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ErrTimeout
	}
	select {
	case rep := <-reply:
		return rep.Value, rep.Err
	case <-r.stopCh:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

func (r *Runtime) loop() {
	var ticker *time.Ticker
	var tickC <-chan time.Time
	if r.tickInterval > 0 {
		ticker = time.NewTicker(r.tickInterval)
		tickC = ticker.C
		defer ticker.Stop()
	}

	for {
		drained := 0
		for drained < r.drainCap {
			select {
			case env := <-r.mailbox:
				r.process(env)
				drained++
				continue
			default:
			}
			break
		}

		if r.tick != nil {
			r.safeTick()
		}

		select {
		case <-r.stopCh:
			r.drainRemaining()
			if r.onStop != nil {
				r.onStop()
			}
			close(r.doneCh)
			return
		case env := <-r.mailbox:
			r.process(env)
		case <-tickC:
			// wake up purely to re-run Tick on the configured cadence
		}
	}
}

// drainRemaining processes any messages still queued at shutdown so callers
// blocked in Tell/Ask don't leak, replying ErrStopped to outstanding asks.
func (r *Runtime) drainRemaining() {
	for {
		select {
		case env := <-r.mailbox:
			if env.reply != nil {
				select {
				case env.reply <- Reply{Err: ErrStopped}:
				default:
				}
			}
		default:
			return
		}
	}
}

func (r *Runtime) safeTick() {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportError(fmt.Errorf("actor %s: tick panicked: %v", r.id, rec))
		}
	}()
	r.tick()
}

func (r *Runtime) process(env envelope) {
	var value interface{}
	var err error

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("actor %s: handler panicked: %v", r.id, rec)
			}
		}()
		value, err = r.handler(env.msg)
	}()

	if err != nil {
		r.reportError(err)
	}

	if env.reply != nil {
		select {
		case env.reply <- Reply{Value: value, Err: err}:
		default:
			// Ask caller already timed out and abandoned the channel.
		}
	}
}

func (r *Runtime) reportError(err error) {
	r.logger.Error().Err(err).Str("actor_id", r.id).Msg("actor error")
	if r.publisher != nil {
		r.publisher.Publish("actor.error", map[string]interface{}{
			"actor_id": r.id,
			"error":    err.Error(),
		})
	}
}
