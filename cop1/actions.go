package cop1

import "time"

// This file is the FOP-1 action library of spec section 4.4. Each method
// is one elementary action named by the standard; table.go runs them per
// (state, event) cell in the order each switch arm lists them. Observer
// notifications and lower-layer emissions happen at the point an action
// reaches them: for example, look_for_frame hands a frame to the shim
// before emitting its ACCEPT, and alert notifies observers before purging
// the queues and cancelling the timer.

// purgeSentQueue clears the sent queue, issuing NEGATIVE_CONFIRM for every
// frame that was on it.
func (e *Engine) purgeSentQueue() {
	for _, f := range e.sent.purgeAll() {
		e.observers.transferNotification(StatusNegativeConfirm, f)
	}
}

// purgeWaitQueue clears the wait queue, issuing REJECT for the frame that
// was on it, if any.
func (e *Engine) purgeWaitQueue() {
	if f, ok := e.wait.take(); ok {
		e.observers.transferNotification(StatusReject, f)
	}
}

// transmitAD prepares a Type-AD frame for transmission.
func (e *Engine) transmitAD(f Frame) {
	e.vs = f.NS + 1 // V(S) := N(S)+1 mod 256, via uint8 wraparound.
	wasEmpty := e.sent.isEmpty()
	e.sent.append(f)
	if wasEmpty {
		e.transmissionCount = 1
	}
	e.timer.restart(e.t1Initial)
	e.adOutReady.Store(false)
	e.forward(f)
}

// transmitBC prepares a Type-BC frame for transmission.
func (e *Engine) transmitBC(f Frame) {
	e.sent.append(f)
	e.transmissionCount = 1
	e.timer.restart(e.t1Initial)
	e.bcOutReady.Store(false)
	e.forward(f)
}

// transmitBD prepares a Type-BD frame for transmission. BD frames never
// enter the sent queue.
func (e *Engine) transmitBD(f Frame) {
	e.bdOutReady.Store(false)
	e.forward(f)
}

// initiateRetransmission bumps the retransmission bookkeeping and flags
// every sent-queue entry for resend.
func (e *Engine) initiateRetransmission() {
	e.transmissionCount++
	e.timer.restart(e.t1Initial)
	e.sent.markAllToBeRetransmitted()
}

// removeAckFramesFromSentQueue pops every acknowledged AD entry from the
// head of the sent queue, confirming each, and advances NN(R).
func (e *Engine) removeAckFramesFromSentQueue(nr uint8) {
	for _, f := range e.sent.removeAckedPrefix(nr) {
		e.observers.transferNotification(StatusPositiveConfirm, f)
	}
	e.nnr = nr
}

// lookForFrame offers the next Type-AD frame to the lower layer, if the
// lower layer is ready to accept one: a flagged retransmission takes
// priority, otherwise the wait queue is drained into the sent queue as a
// new transmission if window space allows.
func (e *Engine) lookForFrame() {
	if !e.adOutReady.Load() {
		return
	}
	if entry, ok := e.sent.firstToBeRetransmitted(FrameTypeAD); ok {
		entry.toBeRetransmitted = false
		e.adOutReady.Store(false)
		e.forward(entry.frame)
		return
	}
	if e.sent.adCount() < e.fopSlidingWindow {
		if f, ok := e.wait.take(); ok {
			e.transmitAD(f)
			e.observers.transferNotification(StatusAccept, f)
		}
	}
}

// lookForDirective is look_for_frame's BC counterpart: it re-offers the
// single pending BC entry to the lower layer once it is flagged for
// retransmission and the lower layer is ready.
func (e *Engine) lookForDirective() {
	if !e.bcOutReady.Load() {
		return
	}
	if entry, ok := e.sent.firstToBeRetransmitted(FrameTypeBC); ok {
		entry.toBeRetransmitted = false
		e.bcOutReady.Store(false)
		e.forward(entry.frame)
	}
}

// addToWaitQueue places f on the wait queue. The caller must have already
// established the wait queue is empty.
func (e *Engine) addToWaitQueue(f Frame) {
	e.wait.put(f)
}

func (e *Engine) acceptFrame(f Frame) {
	e.observers.transferNotification(StatusAccept, f)
}

func (e *Engine) rejectFrame(f Frame) {
	e.observers.transferNotification(StatusReject, f)
}

func (e *Engine) negativeConfirmFrame(f Frame) {
	e.observers.transferNotification(StatusNegativeConfirm, f)
}

func (e *Engine) acceptDirective(d Directive) {
	e.observers.directiveNotification(StatusAccept, d.Tag, d.Kind, d.Qualifier)
}

func (e *Engine) rejectDirective(d Directive) {
	e.observers.directiveNotification(StatusReject, d.Tag, d.Kind, d.Qualifier)
}

func (e *Engine) confirmDirective(d Directive) {
	e.observers.directiveNotification(StatusPositiveConfirm, d.Tag, d.Kind, d.Qualifier)
}

func (e *Engine) negativeConfirmDirective(d Directive) {
	e.observers.directiveNotification(StatusNegativeConfirm, d.Tag, d.Kind, d.Qualifier)
}

// initialise resets every scalar and both queues to their post-construction
// values, as performed by an INIT_AD_* directive.
func (e *Engine) initialise() {
	e.vs = 0
	e.nnr = 0
	e.transmissionCount = 0
	e.suspendState = 0
	e.timer.cancel()
	e.purgeSentQueue()
	e.purgeWaitQueue()
	e.adOutReady.Store(true)
	e.bcOutReady.Store(true)
	e.bdOutReady.Store(true)
	e.clcwSatisfied = false
}

// alert reports a protocol alert and drives the queues and timer to their
// post-alert state, per spec section 4.4 and the idempotence law of
// spec section 8: a second alert before recovery still leaves queues empty.
func (e *Engine) alert(code AlertCode) {
	e.logger.Error("fop1 alert", "code", code.String(), "state", string(e.tracker.current()))
	e.observers.alert(code)
	e.purgeSentQueue()
	e.purgeWaitQueue()
	e.timer.cancel()
}

// suspend records the pre-suspend state and cancels the timer. No queue is
// touched.
func (e *Engine) suspend(ss int) {
	e.suspendState = ss
	e.timer.cancel()
}

// resume restarts the timer. Bookkeeping for which state to return to is
// driven by the caller (table.go), since that decision is table data, not
// an action.
func (e *Engine) resume() {
	e.suspendState = 0
	e.timer.restart(e.t1Initial)
}

func (e *Engine) restartTimer() {
	e.timer.restart(e.t1Initial)
}

func (e *Engine) cancelTimer() {
	e.timer.cancel()
}

// restartOrCancelTimer restarts the timer if the sent queue still holds
// frames awaiting acknowledgement, or cancels it otherwise. This captures
// the common "restart timer if sent queue not empty, else cancel" clause
// that recurs across the ack-progress transitions of spec section 4.3.
func (e *Engine) restartOrCancelTimer() {
	if e.sent.isEmpty() {
		e.timer.cancel()
	} else {
		e.timer.restart(e.t1Initial)
	}
}

func (e *Engine) setVS(vs uint8) {
	e.vs = vs
	if e.framer != nil {
		e.framer.DispatchSetVR(int(vs))
	}
}

func (e *Engine) setFOPSlidingWindow(w int) {
	e.fopSlidingWindow = w
}

// setT1Initial sets T1_initial from a directive qualifier expressed in
// nanoseconds, matching time.Duration's own unit.
func (e *Engine) setT1Initial(nanos int) {
	e.t1Initial = time.Duration(nanos)
}

func (e *Engine) setTransmissionLimit(limit int) {
	e.transmissionLimit = limit
}

func (e *Engine) setTimeoutType(t int) {
	e.timeoutType = t
}

func (e *Engine) dispatchUnlock() {
	if e.framer != nil {
		e.framer.DispatchUnlock()
	}
}
