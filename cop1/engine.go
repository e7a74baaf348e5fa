package cop1

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lucas-bremond/ccsds/common"
)

// Framer is the upstream interface spec section 6 describes: the engine
// calls back into it for the two BC-construction directives, and in turn is
// the sink the framer drives via Transmit.
type Framer interface {
	DispatchUnlock()
	DispatchSetVR(vr int)
}

// OutputFunc is the downstream lower-layer sink of spec section 6: it
// offers a frame for transmission and reports whether it was accepted.
// Implementations may block; the lower-layer worker, not the engine worker,
// calls it.
type OutputFunc func(Frame) bool

// Engine is one FOP-1 instance, bound to a single virtual channel. All of
// its scalars, queues and timer are owned exclusively by its engine worker
// goroutine (spec section 5); the stimulus methods (Directive, Transmit,
// LowerLayer, Clcw, TimerExpired) only ever enqueue a closure onto that
// worker. CurrentState, SetOutput, RegisterObserver and DeregisterObserver
// act directly and are safe to call from any goroutine; Abort and Dispose
// shut the workers down and block until they have stopped.
type Engine struct {
	logger common.Logger
	framer Framer

	vcid uint8

	vs                uint8
	nnr               uint8
	transmissionCount int
	transmissionLimit int
	t1Initial         time.Duration
	timeoutType       int
	fopSlidingWindow  int
	suspendState      int

	adOutReady atomic.Bool
	bcOutReady atomic.Bool
	bdOutReady atomic.Bool

	sent sentQueue
	wait waitQueue

	timer   *fopTimer
	tracker *stateTracker

	observers *observerSet

	// pendingInit is the INIT_AD_* directive that moved the engine into
	// S4/S5, confirmed once initialisation completes. clcwSatisfied tracks
	// S5's CLCW leg when it arrives before the BC-accept leg; see table.go.
	pendingInit   *Directive
	clcwSatisfied bool

	outputMu sync.RWMutex
	output   OutputFunc

	shim *lowerLayerShim

	cmds      chan func()
	running   atomic.Bool
	disposed  atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewEngine constructs an Engine in state S6 with the given options and
// starts its two workers. vcid is the virtual channel this instance binds;
// CLCWs for other virtual channels are silently discarded by Clcw.
func NewEngine(vcid uint8, framer Framer, opts Options, logger common.Logger) *Engine {
	if logger == nil {
		logger = common.NopLogger()
	}

	e := &Engine{
		logger:            logger,
		framer:            framer,
		vcid:              vcid,
		transmissionLimit: opts.TransmissionLimit,
		t1Initial:         opts.T1Initial,
		timeoutType:       opts.TimeoutType,
		fopSlidingWindow:  opts.FOPSlidingWindow,
		observers:         newObserverSet(),
		cmds:              make(chan func(), 64),
		done:              make(chan struct{}),
	}
	e.adOutReady.Store(true)
	e.bcOutReady.Store(true)
	e.bdOutReady.Store(true)

	e.tracker = newStateTracker(func(previous, current State) {
		e.logger.Debug("fop1 state change", "from", string(previous), "to", string(current))
		e.observers.stateChanged(previous, current)
	})
	e.timer = newFOPTimer(e.onTimerExpired)
	e.shim = newLowerLayerShim(e.forwardSync, e.onLowerLayer)

	e.running.Store(true)
	go e.run()
	e.shim.start()

	return e
}

// run is the engine worker: it drains cmds until closed, applying each
// stimulus to completion (spec section 4.3's tie-break rule: a transition
// is installed only after its full action sequence runs) before accepting
// the next one.
func (e *Engine) run() {
	defer close(e.done)
	for cmd := range e.cmds {
		cmd()
	}
}

// enqueue posts a stimulus closure to the engine worker. It is a silent
// no-op once the engine has been disposed, matching abort()'s "stop
// accepting new stimuli" contract.
func (e *Engine) enqueue(fn func()) {
	if e.disposed.Load() {
		return
	}
	select {
	case e.cmds <- fn:
	default:
		// The worker is behind; block the caller rather than drop a
		// stimulus, since stimulus loss would violate the ordering
		// guarantee of spec section 5.
		if !e.disposed.Load() {
			e.cmds <- fn
		}
	}
}

// CurrentState returns the engine's state. Safe for concurrent use; it
// reads through the same tracker the engine worker mutates, which is a
// plain field access guarded only by the fact that state-machine semantics
// are not expected to be read-consistent with an in-flight transition. For
// a strictly consistent read, observe StateChanged notifications instead.
func (e *Engine) CurrentState() State {
	return e.tracker.current()
}

// SetOutput installs the downstream sink. Per spec section 5, writes here
// happen-before the first Forward the lower-layer worker performs, which is
// guaranteed by outputMu.
func (e *Engine) SetOutput(fn OutputFunc) {
	e.outputMu.Lock()
	defer e.outputMu.Unlock()
	e.output = fn
}

func (e *Engine) currentOutput() OutputFunc {
	e.outputMu.RLock()
	defer e.outputMu.RUnlock()
	return e.output
}

func (e *Engine) RegisterObserver(o Observer) {
	e.observers.register(o)
}

func (e *Engine) DeregisterObserver(o Observer) {
	e.observers.deregister(o)
}

// Directive submits a higher-procedure request.
func (e *Engine) Directive(d Directive) {
	e.enqueue(func() { e.processDirective(d) })
}

// Transmit submits a request to send an AD or BD frame. BC frames are
// engine-internal (produced by directive processing) and are rejected here
// with ErrUnsupportedFrameType, matching spec section 4.1's "transmit(BC)
// bypasses the engine thread" rule: callers never construct BC frames
// themselves.
func (e *Engine) Transmit(f Frame) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	switch f.Type {
	case FrameTypeAD:
		e.enqueue(func() { e.processTransmitAD(f) })
		return nil
	case FrameTypeBD:
		e.enqueue(func() { e.processTransmitBD(f) })
		return nil
	default:
		return ErrUnsupportedFrameType
	}
}

// LowerLayer reports the lower layer's accept/reject response to a
// previously forwarded frame.
func (e *Engine) LowerLayer(f Frame, accepted bool) {
	e.enqueue(func() { e.processLowerLayer(f, accepted) })
}

// Clcw submits a received Communications Link Control Word. CLCWs for a
// different procedure or virtual channel are discarded without entering
// the engine worker at all.
func (e *Engine) Clcw(c CLCW) {
	if c.CopInEffect != CopEffectCOP1 || c.VCID != e.vcid {
		return
	}
	e.enqueue(func() { e.processClcw(c) })
}

// TimerExpired is invoked by the timer's own callback; it is exported so
// that an externally-driven clock (as opposed to fopTimer's time.Timer)
// could drive the same path, though fopTimer is the only caller in this
// package.
func (e *Engine) TimerExpired(epoch uint64) {
	e.enqueue(func() { e.processTimerExpired(epoch) })
}

func (e *Engine) onTimerExpired(epoch uint64) {
	e.TimerExpired(epoch)
}

func (e *Engine) onLowerLayer(f Frame, accepted bool) {
	e.LowerLayer(f, accepted)
}

// forward hands a frame to the lower-layer shim, per spec section 4.4's
// elementary transmit_* actions.
func (e *Engine) forward(f Frame) {
	e.shim.submit(f)
}

// forwardSync is the shim worker's view of the output sink: a direct,
// possibly blocking call, invoked off the engine worker.
func (e *Engine) forwardSync(f Frame) bool {
	out := e.currentOutput()
	if out == nil {
		return false
	}
	return out(f)
}

// Abort requests an orderly shutdown: stop accepting stimuli, cancel the
// timer, purge both queues, then join both workers. It blocks until both
// workers have stopped.
func (e *Engine) Abort() {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}
	// Winning the CompareAndSwap above means cmds is still open and the
	// worker still running, so this send always reaches it.
	done := make(chan struct{})
	e.cmds <- func() {
		e.timer.cancel()
		e.purgeSentQueue()
		e.purgeWaitQueue()
		close(done)
	}
	<-done
	e.shutdownWorkers()
}

// Dispose stops accepting stimuli and shuts down both workers; commands
// already queued to the engine worker still run before it exits. Idempotent.
// The engine is not deregistered from its upstream framer: Framer has no
// deregistration method.
func (e *Engine) Dispose() {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}
	e.shutdownWorkers()
}

func (e *Engine) shutdownWorkers() {
	e.closeOnce.Do(func() {
		close(e.cmds)
	})
	<-e.done
	e.shim.stop()
}
