package cop1

import "context"

// This file is the FOP-1 transition table of spec section 4.3: a set of
// per-stimulus dispatch functions, each classifying its stimulus into an
// event number and then switching on (current state, event) to run the
// named action sequence and install the next state. It is deliberately
// data/control-flow, not a per-state type hierarchy: every (state, event)
// cell a reader wants to audit is a single switch arm below, matching the
// CCSDS standard's own tabular presentation (232.1-B-2 Table 5-1).
//
// S1/S2/S3 share their behaviour: an event runs the same actions in all
// three, and which of S2/S3 a retransmission lands in is selected per-event
// by that event's own wait bit, never by which of S2/S3 the engine was
// already in. That shared behaviour lives in operationalCLCW and
// processTimerExpired below;
// S4, S5 and S6 get their own dedicated handlers because their event
// alphabets barely overlap with the operational one.

var ctxBackground = context.Background()

func (e *Engine) moveTo(next State) {
	e.tracker.moveTo(ctxBackground, next)
}

func (e *Engine) isOperational(s State) bool {
	return s == StateActive || s == StateRetransmitWithoutWait || s == StateRetransmitWithWait
}

// --- CLCW ------------------------------------------------------------------

func (e *Engine) processClcw(c CLCW) {
	state := e.tracker.current()
	ev := classifyCLCW(c, e.vs, e.nnr, e.transmissionCount, e.transmissionLimit)

	switch state {
	case StateActive, StateRetransmitWithoutWait, StateRetransmitWithWait:
		e.moveTo(e.operationalCLCW(state, ev, c))
	case StateInitializingWithoutCLCW:
		e.moveTo(e.initializingWithoutCLCWClcw(c))
	case StateInitializingWithCLCW:
		e.moveTo(e.initializingWithCLCWClcw(c))
	case StateInitial:
		// S6 ignores CLCW content entirely (spec section 4.3): nothing is
		// recorded and the state does not change.
	}
}

// operationalCLCW runs the shared S1/S2/S3 CLCW event handling and returns
// the next state. A retransmission lands in S3, without look_for_frame,
// whenever the triggering event's own wait bit is set (E9, E11), and in S2
// otherwise, regardless of which of S1/S2/S3 the engine was in when the
// event arrived.
func (e *Engine) operationalCLCW(state State, ev EventNumber, c CLCW) State {
	switch ev {
	case E1:
		// All acknowledged, no new information. Nothing to do.
		return StateActive
	case E2:
		e.removeAckFramesFromSentQueue(c.Report)
		e.lookForFrame()
		e.restartOrCancelTimer()
		return StateActive
	case E3:
		e.removeAckFramesFromSentQueue(c.Report)
		e.cancelTimer()
		return StateActive
	case E4:
		e.initiateRetransmission()
		e.lookForFrame()
		return StateRetransmitWithoutWait
	case E5:
		// Some unacknowledged, no new information.
		return state
	case E6:
		e.removeAckFramesFromSentQueue(c.Report)
		e.lookForFrame()
		e.restartOrCancelTimer()
		return StateActive
	case E7:
		e.removeAckFramesFromSentQueue(c.Report)
		e.restartOrCancelTimer()
		return state
	case E8:
		e.removeAckFramesFromSentQueue(c.Report)
		e.initiateRetransmission()
		e.lookForFrame()
		return StateRetransmitWithoutWait
	case E9:
		e.removeAckFramesFromSentQueue(c.Report)
		e.initiateRetransmission()
		return StateRetransmitWithWait
	case E10:
		e.initiateRetransmission()
		e.lookForFrame()
		return StateRetransmitWithoutWait
	case E11:
		e.initiateRetransmission()
		return StateRetransmitWithWait
	case E12, E103, E101, E102:
		e.alert(AlertLimit)
		return StateInitial
	case E13:
		e.alert(AlertNNR)
		return StateInitial
	case E14:
		e.alert(AlertLockout)
		return StateInitial
	default:
		return state
	}
}

// initializingWithoutCLCWClcw handles S4's single event class: any CLCW
// arrival is the completion signal.
func (e *Engine) initializingWithoutCLCWClcw(c CLCW) State {
	if !c.Lockout && c.Report == e.vs {
		e.confirmPendingInit()
		return StateActive
	}
	e.alert(AlertSynch)
	return StateInitial
}

// initializingWithCLCWClcw handles S5's CLCW leg: a CLCW only completes
// initialisation once the preceding BC frame has itself been accepted by
// the lower layer (tracked via bcOutReady / the sent-queue BC entry);
// until then it is evaluated the same way but the transition is driven by
// whichever of the two (BC accept, matching CLCW) arrives last. Since both
// must be satisfied, this handler only advances to S1 when the sent queue
// no longer holds a BC entry, i.e. the BC side already completed.
func (e *Engine) initializingWithCLCWClcw(c CLCW) State {
	if c.Lockout || c.Report != e.vs {
		e.alert(AlertCLCW)
		return StateInitial
	}
	if e.sent.hasBCEntry() {
		// BC leg not complete yet; remember and wait on E43/E44.
		e.clcwSatisfied = true
		return StateInitializingWithCLCW
	}
	e.confirmPendingInit()
	return StateActive
}

// confirmPendingInit positively confirms the INIT directive that put the
// engine into S4/S5, if one is outstanding.
func (e *Engine) confirmPendingInit() {
	if e.pendingInit != nil {
		e.confirmDirective(*e.pendingInit)
		e.pendingInit = nil
	}
}

// --- Timer expiry -----------------------------------------------------------

func (e *Engine) processTimerExpired(epoch uint64) {
	if !e.timer.valid(epoch) {
		return // stale firing from a since-cancelled/restarted arming.
	}
	state := e.tracker.current()
	if !e.isOperational(state) {
		return
	}
	ev := classifyTimerExpired(e.transmissionCount, e.transmissionLimit, e.timeoutType)
	switch ev {
	case E16:
		e.initiateRetransmission()
		e.lookForFrame()
		e.moveTo(StateRetransmitWithoutWait)
	case E104:
		e.suspend(suspendCodeFor(state))
		e.moveTo(StateInitial)
	case E17:
		e.alert(AlertLimit)
		e.moveTo(StateInitial)
	case E18:
		e.alert(AlertT1)
		e.moveTo(StateInitial)
	}
}

// suspendCodeFor maps the state a suspend occurs from onto the SS value
// RESUME later uses to restore it, per spec section 9's open-question
// decision: SS=1..3 name S1/S2/S3 respectively. S4/S5 never reach here
// since processTimerExpired only runs in operational states.
func suspendCodeFor(s State) int {
	switch s {
	case StateActive:
		return 1
	case StateRetransmitWithoutWait:
		return 2
	case StateRetransmitWithWait:
		return 3
	default:
		return 1
	}
}

func suspendStateFor(ss int) State {
	switch ss {
	case 1:
		return StateActive
	case 2:
		return StateRetransmitWithoutWait
	case 3:
		return StateRetransmitWithWait
	case 4:
		return StateInitializingWithoutCLCW
	default:
		return StateActive
	}
}

// --- Transmit requests -------------------------------------------------------

// processTransmitAD handles a request to transmit an AD frame. Per spec
// section 4.3, only the three operational states accept frame stimuli at
// all; S4/S5/S6 reject outright, matching the classifier-then-state-table
// discipline every other stimulus goes through.
func (e *Engine) processTransmitAD(f Frame) {
	if !e.isOperational(e.tracker.current()) {
		e.rejectFrame(f)
		return
	}

	ev := classifyTransmitAD(e.wait.isEmpty())
	switch ev {
	case E19:
		// add_to_wait_queue then look_for_frame, per spec section 4.4: never
		// hand the frame to transmitAD directly, since that would bypass the
		// ad_out_ready gate look_for_frame enforces.
		e.addToWaitQueue(f)
		e.lookForFrame()
	case E20:
		e.rejectFrame(f)
	}
}

func (e *Engine) processTransmitBD(f Frame) {
	ev := classifyTransmitBD(e.bdOutReady.Load())
	switch ev {
	case E21:
		e.transmitBD(f)
		e.acceptFrame(f)
	case E22:
		e.rejectFrame(f)
	}
}

// --- Lower-layer responses ---------------------------------------------------

func (e *Engine) processLowerLayer(f Frame, accepted bool) {
	ev := classifyLowerLayer(f.Type, accepted)
	state := e.tracker.current()

	switch ev {
	case E41: // AD accept
		e.adOutReady.Store(true)
		e.lookForFrame()
	case E42: // AD reject
		e.adOutReady.Store(true)
		e.alert(AlertLLIF)
		e.moveTo(StateInitial)
		return
	case E43: // BC accept
		e.bcOutReady.Store(true)
		e.lookForDirective()
		if state == StateInitializingWithCLCW {
			e.moveTo(e.handleBCCompletionInS5())
			return
		}
	case E44: // BC reject
		e.bcOutReady.Store(true)
		if state == StateInitializingWithCLCW {
			if f2, ok := e.sent.removeBCEntry(); ok {
				e.negativeConfirmFrame(f2)
			}
			e.alert(AlertLLIF)
			e.moveTo(StateInitial)
			return
		}
		e.alert(AlertLLIF)
		e.moveTo(StateInitial)
		return
	case E45: // BD accept
		e.bdOutReady.Store(true)
	case E46: // BD reject
		e.bdOutReady.Store(true)
		e.rejectFrame(f)
	}
	e.moveTo(state)
}

// handleBCCompletionInS5 resolves the BC leg of S5's dual completion
// condition (spec section 4.3's representative S5 transition): once the BC
// frame itself has been accepted by the lower layer, check whether a
// satisfying CLCW already arrived (recorded in clcwSatisfied, since
// initializingWithCLCWClcw refuses to advance past a present BC entry); if
// so, finish initialisation now, otherwise keep waiting in S5.
func (e *Engine) handleBCCompletionInS5() State {
	e.sent.removeBCEntry()
	if e.clcwSatisfied {
		e.confirmPendingInit()
		return StateActive
	}
	return StateInitializingWithCLCW
}

// --- Directives ---------------------------------------------------------------

func (e *Engine) processDirective(d Directive) {
	state := e.tracker.current()
	ev, err := classifyDirective(d, e.bcOutReady.Load(), e.suspendState)
	if err != nil {
		e.logger.Error("fop1 directive misclassified", "error", err.Error())
		return
	}

	switch ev {
	case E26, E28:
		e.rejectDirective(d)
		e.moveTo(state)
		return
	case E23, E24, E25, E27:
		e.moveTo(e.handleInitDirective(d, ev))
		return
	case E29:
		e.handleTerminate(d)
		e.moveTo(StateInitial)
		return
	case E30, E31, E32, E33, E34:
		e.moveTo(e.handleResume(d, ev, state))
		return
	case E35:
		e.setVS(uint8(d.Qualifier))
		e.confirmDirective(d)
	case E36:
		e.setFOPSlidingWindow(d.Qualifier)
		e.confirmDirective(d)
	case E37:
		e.setT1Initial(d.Qualifier)
		e.confirmDirective(d)
	case E38:
		e.setTransmissionLimit(d.Qualifier)
		e.confirmDirective(d)
	case E39:
		e.setTimeoutType(d.Qualifier)
		e.confirmDirective(d)
	default:
		e.rejectDirective(d)
	}
	e.moveTo(state)
}

// handleInitDirective implements the four INIT_AD_* directive branches
// that actually commit to a reset (the Unlock/SetV(R) !bc_out_ready
// rejects are handled directly in processDirective, ahead of this call,
// since a reject must never run initialise()'s destructive reset).
func (e *Engine) handleInitDirective(d Directive, ev EventNumber) State {
	e.initialise()
	e.setPendingInit(d)

	switch ev {
	case E23: // INIT_AD_WITHOUT_CLCW
		return StateInitializingWithoutCLCW
	case E24: // INIT_AD_WITH_CLCW
		return StateInitializingWithCLCW
	case E25: // INIT_AD_WITH_UNLOCK, bc_out_ready
		e.transmitBC(Frame{Type: FrameTypeBC})
		e.dispatchUnlock()
		return StateInitializingWithCLCW
	case E27: // INIT_AD_WITH_SET_V_R, bc_out_ready
		e.transmitBC(Frame{Type: FrameTypeBC})
		e.dispatchSetVR(d.Qualifier)
		return StateInitializingWithCLCW
	default:
		return StateInitial
	}
}

func (e *Engine) setPendingInit(d Directive) {
	tag := d
	e.pendingInit = &tag
}

func (e *Engine) dispatchSetVR(vr int) {
	e.vs = uint8(vr)
	if e.framer != nil {
		e.framer.DispatchSetVR(vr)
	}
}

// handleTerminate implements TERMINATE: an orderly, observable alert, not
// a silent reset, per spec section 7's TERM alert code.
func (e *Engine) handleTerminate(d Directive) {
	e.alert(AlertTerm)
	e.confirmDirective(d)
}

// handleResume implements RESUME, legal only from S6 with a recorded
// suspend state (E31..E34); E30 (SS=0, nothing suspended) is accepted but
// a no-op confirm, matching the source standard's treatment of a
// redundant RESUME as harmless.
func (e *Engine) handleResume(d Directive, ev EventNumber, current State) State {
	if ev == E30 {
		e.confirmDirective(d)
		return current
	}
	target := suspendStateFor(e.suspendState)
	e.resume()
	e.confirmDirective(d)
	return target
}
