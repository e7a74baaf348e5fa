package cop1

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordedTransfer struct {
	status OperationStatus
	frame  Frame
}

type recordedDirective struct {
	status    OperationStatus
	tag       interface{}
	directive DirectiveKind
}

type recordingObserver struct {
	mu         sync.Mutex
	transfers  []recordedTransfer
	directives []recordedDirective
	alerts     []AlertCode
	states     []State
}

func (o *recordingObserver) TransferNotification(status OperationStatus, frame Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transfers = append(o.transfers, recordedTransfer{status, frame})
}

func (o *recordingObserver) DirectiveNotification(status OperationStatus, tag interface{}, directive DirectiveKind, qualifier int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.directives = append(o.directives, recordedDirective{status, tag, directive})
}

func (o *recordingObserver) Alert(code AlertCode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alerts = append(o.alerts, code)
}

func (o *recordingObserver) StateChanged(previous, current State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, current)
}

func (o *recordingObserver) lastTransfer() (recordedTransfer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.transfers) == 0 {
		return recordedTransfer{}, false
	}
	return o.transfers[len(o.transfers)-1], true
}

func settle() { time.Sleep(20 * time.Millisecond) }

type fakeFramer struct {
	mu          sync.Mutex
	unlocks     int
	setVRCalls  []int
}

func (f *fakeFramer) DispatchUnlock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocks++
}

func (f *fakeFramer) DispatchSetVR(vr int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setVRCalls = append(f.setVRCalls, vr)
}

func newTestEngine(accept bool) (*Engine, *recordingObserver) {
	return newTestEngineWithLimit(accept, 3)
}

func newTestEngineWithLimit(accept bool, limit int) (*Engine, *recordingObserver) {
	obs := &recordingObserver{}
	e := NewEngine(1, &fakeFramer{}, Options{
		T1Initial:         time.Second,
		TransmissionLimit: limit,
		TimeoutType:       0,
		FOPSlidingWindow:  4,
	}, nil)
	e.RegisterObserver(obs)
	e.SetOutput(func(Frame) bool { return accept })
	return e, obs
}

// TestHappyPathSingleADFrame mirrors the S1 scenario of spec section 8: a
// single AD frame, accepted by the lower layer, fully acknowledged by the
// following CLCW.
func TestHappyPathSingleADFrame(t *testing.T) {
	e, obs := newTestEngine(true)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirInitADWithoutCLCW})
	settle()
	assert.Equal(t, StateInitializingWithoutCLCW, e.CurrentState())

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()
	assert.Equal(t, StateActive, e.CurrentState())

	err := e.Transmit(Frame{Type: FrameTypeAD, NS: 0})
	assert.NoError(t, err)
	settle()

	tr, ok := obs.lastTransfer()
	assert.True(t, ok)
	assert.Equal(t, StatusAccept, tr.status)

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 1})
	settle()

	tr, ok = obs.lastTransfer()
	assert.True(t, ok)
	assert.Equal(t, StatusPositiveConfirm, tr.status)
	assert.Equal(t, StateActive, e.CurrentState())
}

// TestRetransmissionLimitReached mirrors the S2 scenario: the lower layer
// accepts, but the CLCW keeps reporting retransmit=1 until the
// transmission limit is exhausted, at which point the engine alerts and
// returns to S6.
func TestRetransmissionLimitReached(t *testing.T) {
	e, obs := newTestEngineWithLimit(true, 2)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirInitADWithoutCLCW})
	settle()
	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()

	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 0}))
	settle()

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0, Retransmit: true})
	settle()
	assert.Equal(t, StateRetransmitWithoutWait, e.CurrentState())

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0, Retransmit: true})
	settle()

	assert.Equal(t, StateInitial, e.CurrentState())
	assert.Contains(t, obs.alerts, AlertLimit)

	tr, ok := obs.lastTransfer()
	assert.True(t, ok)
	assert.Equal(t, StatusNegativeConfirm, tr.status)
}

// TestLockoutAlerts mirrors the S3 scenario: a lockout CLCW always alerts
// and returns to S6, regardless of operating state.
func TestLockoutAlerts(t *testing.T) {
	e, obs := newTestEngine(true)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirInitADWithoutCLCW})
	settle()
	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Lockout: true})
	settle()

	assert.Equal(t, StateInitial, e.CurrentState())
	assert.Contains(t, obs.alerts, AlertLockout)
}

// TestWaitQueueBackpressure mirrors the S4 scenario: with a window of one,
// a second AD transmit request is held on the wait queue, and a third is
// rejected outright; once the first frame is acknowledged, the waiting
// frame is accepted into the sent queue.
func TestWaitQueueBackpressure(t *testing.T) {
	e, obs := newTestEngine(true)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirInitADWithoutCLCW})
	settle()
	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()
	e.SetOutput(func(Frame) bool { return true })
	e.Directive(Directive{Kind: DirSetFOPSlidingWindow, Qualifier: 1})
	settle()

	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 0}))
	settle()

	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 1}))
	settle()
	// AD(1) is held on the wait queue: no ACCEPT for it yet.
	tr, _ := obs.lastTransfer()
	assert.Equal(t, uint8(0), tr.frame.NS)

	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 2}))
	settle()
	tr, _ = obs.lastTransfer()
	assert.Equal(t, StatusReject, tr.status)
	assert.Equal(t, uint8(2), tr.frame.NS)

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 1})
	settle()

	tr, _ = obs.lastTransfer()
	assert.Equal(t, StatusAccept, tr.status)
	assert.Equal(t, uint8(1), tr.frame.NS)
}

// TestUnlockDirective mirrors the S5 scenario: INIT_AD_WITH_UNLOCK sends a
// BC frame and moves to S5; once the lower layer accepts it and a matching
// CLCW arrives, the engine completes initialisation into S1.
func TestUnlockDirective(t *testing.T) {
	e, obs := newTestEngine(true)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirInitADWithUnlock, Tag: "unlock-1"})
	settle()
	assert.Equal(t, StateInitializingWithCLCW, e.CurrentState())

	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()

	assert.Equal(t, StateActive, e.CurrentState())
	found := false
	for _, d := range obs.directives {
		if d.tag == "unlock-1" && d.status == StatusPositiveConfirm {
			found = true
		}
	}
	assert.True(t, found)
}

// TestTimerSuspendAndResume mirrors the S6 scenario: a timer expiry with
// timeout_type=1 and transmission_count below the limit suspends to S6
// rather than alerting; RESUME restores the pre-suspend state.
func TestTimerSuspendAndResume(t *testing.T) {
	e, _ := newTestEngine(true)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirSetTimeoutType, Qualifier: 1})
	settle()
	e.Directive(Directive{Kind: DirInitADWithoutCLCW})
	settle()
	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()
	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 0}))
	settle()
	assert.Equal(t, StateActive, e.CurrentState())

	// Drive the engine worker directly with a stale-epoch-free timer
	// firing, simulating T1 expiry while transmission_count (1) is still
	// below transmission_limit (3) and timeout_type=1, which per spec
	// section 4.2 classifies as E104 (suspend, not alert).
	done := make(chan struct{})
	epoch := e.timer.epoch.Load()
	e.cmds <- func() {
		e.processTimerExpired(epoch)
		close(done)
	}
	<-done

	assert.Equal(t, StateInitial, e.CurrentState())
	assert.Equal(t, 1, e.suspendState)

	e.Directive(Directive{Kind: DirResume})
	settle()
	assert.Equal(t, StateActive, e.CurrentState())
}

// TestTransmitADRejectedOutsideOperationalStates mirrors spec section 4.3's
// "S6 Initial accepts only INIT_*/SET_* directives and ignores frame
// stimuli": a freshly-constructed engine sits in S6 before any INIT, and an
// AD transmit request there must not ship a frame or advance V(S).
func TestTransmitADRejectedOutsideOperationalStates(t *testing.T) {
	e, obs := newTestEngine(true)
	defer e.Dispose()

	assert.Equal(t, StateInitial, e.CurrentState())

	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 0}))
	settle()

	tr, ok := obs.lastTransfer()
	assert.True(t, ok)
	assert.Equal(t, StatusReject, tr.status)
	assert.Equal(t, StateInitial, e.CurrentState())
}

// TestTransmitADRespectsOutReadyWhenPipelined mirrors the ad_out_ready
// discipline of spec section 4.4's look_for_frame: with a window wide
// enough to admit several outstanding frames, a second AD request arriving
// before the first's lower-layer accept must queue behind ad_out_ready
// rather than being forwarded as a second simultaneous outstanding
// transmit-request.
func TestTransmitADRespectsOutReadyWhenPipelined(t *testing.T) {
	e, obs := newTestEngine(true)
	defer e.Dispose()

	e.Directive(Directive{Kind: DirInitADWithoutCLCW})
	settle()
	e.Clcw(CLCW{CopInEffect: CopEffectCOP1, VCID: 1, Report: 0})
	settle()
	e.Directive(Directive{Kind: DirSetFOPSlidingWindow, Qualifier: 4})
	settle()

	// Block the lower-layer worker so ad_out_ready never clears, then fire
	// two AD requests back-to-back without letting the first settle.
	release := make(chan struct{})
	e.SetOutput(func(Frame) bool {
		<-release
		return true
	})

	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 0}))
	assert.NoError(t, e.Transmit(Frame{Type: FrameTypeAD, NS: 1}))
	settle()

	// AD(0) is in flight with the lower layer; AD(1) must be held on the
	// wait queue, not forwarded alongside it.
	assert.Equal(t, uint8(1), e.vs)
	assert.False(t, e.wait.isEmpty())

	close(release)
	settle()

	assert.Equal(t, uint8(2), e.vs)
	assert.True(t, e.wait.isEmpty())

	tr, ok := obs.lastTransfer()
	assert.True(t, ok)
	assert.Equal(t, StatusAccept, tr.status)
	assert.Equal(t, uint8(1), tr.frame.NS)
}
