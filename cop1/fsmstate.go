package cop1

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// stateTracker wraps a looplab/fsm.FSM purely for state bookkeeping and
// state_changed notification, following the same pattern the teacher corpus
// uses for its (much smaller) HSMS connection state machine: the FSM is not
// asked to decide transitions, only to record one and fire enter/leave
// callbacks for it. The decision of which state to move to is made by the
// hand-rolled table in table.go, which is the actual authority over which
// (state, event) combinations are legal; the tracker is told the outcome
// after the fact via apply.
//
// Every fsm event name is simply the destination state's own name, with
// Src listing every other state plus itself. looplab/fsm answers a
// self-transition with NoTransitionError instead of entering the state
// again, so staying in a state fires no state_changed notification; moveTo
// treats that error as a no-op. This keeps the fsm table generic
// instead of needing one event name per (state, event) cell -- that
// decision already lives in table.go.
type stateTracker struct {
	fsm      *fsm.FSM
	onChange func(previous, current State)
}

func newStateTracker(onChange func(previous, current State)) *stateTracker {
	st := &stateTracker{onChange: onChange}

	events := make(fsm.Events, 0, len(allStates))
	for _, dst := range allStates {
		src := make([]string, 0, len(allStates))
		for _, s := range allStates {
			src = append(src, string(s))
		}
		events = append(events, fsm.EventDesc{
			Name: string(dst),
			Src:  src,
			Dst:  string(dst),
		})
	}

	st.fsm = fsm.NewFSM(
		string(StateInitial),
		events,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if st.onChange != nil && e.Src != e.Dst {
					st.onChange(State(e.Src), State(e.Dst))
				}
			},
		},
	)

	return st
}

// current returns the tracked state.
func (st *stateTracker) current() State {
	return State(st.fsm.Current())
}

// moveTo installs next as the current state, firing state_changed if it
// differs from the state already recorded. moveTo never fails: every
// (State, State) pair is wired as a legal fsm transition in newStateTracker,
// and the NoTransitionError fsm.Event returns for a self-transition is
// ignored, so any other error would indicate a programming mistake in the
// event table construction above.
func (st *stateTracker) moveTo(ctx context.Context, next State) {
	if err := st.fsm.Event(ctx, string(next)); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return // next is already the current state.
		}
		// Every cross-state move is pre-wired; reaching here means
		// allStates and the event table above have drifted apart.
		panic(fmt.Sprintf("cop1: state tracker rejected transition to %s: %v", next, err))
	}
}
