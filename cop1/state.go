package cop1

// State names the six FOP-1 states of CCSDS 232.1-B-2 Table 5-1. These are
// strings, not a plain int enum, so they can be fed directly to the
// looplab/fsm state tracker below and printed verbatim in logs and observer
// notifications.
type State string

const (
	StateActive                   State = "S1-ACTIVE"
	StateRetransmitWithoutWait    State = "S2-RETRANSMIT-WITHOUT-WAIT"
	StateRetransmitWithWait       State = "S3-RETRANSMIT-WITH-WAIT"
	StateInitializingWithoutCLCW  State = "S4-INITIALIZING-WITHOUT-CLCW"
	StateInitializingWithCLCW     State = "S5-INITIALIZING-WITH-CLCW"
	StateInitial                  State = "S6-INITIAL"
)

// allStates lists the six states in the order CCSDS numbers them, used to
// build the fsm.Events table in fsmstate.go.
var allStates = []State{
	StateActive,
	StateRetransmitWithoutWait,
	StateRetransmitWithWait,
	StateInitializingWithoutCLCW,
	StateInitializingWithCLCW,
	StateInitial,
}
