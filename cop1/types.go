// Package cop1 implements the FOP-1 (Frame Operation Procedure, sending
// side) of the COP-1 telecommand link-layer protocol, as standardized in
// CCSDS 232.1. It converts an unreliable downstream frame transport into a
// sliding-window, acknowledged stream of Type-AD frames, interleaved with
// unacknowledged Type-BD frames and Type-BC control frames, using feedback
// supplied by the receiver through Communications Link Control Words
// (CLCWs).
package cop1

import (
	"errors"
	"time"
)

// Errors returned synchronously from the public entry points. Per the
// engine-misuse class of fault, these never enter the state machine: they
// are programmer errors, not protocol events.
var (
	// ErrUnsupportedFrameType is returned by Transmit when the frame's Type
	// is not AD or BD. BC frames are not accepted by Transmit either: the
	// engine builds and forwards its own BC frames.
	ErrUnsupportedFrameType = errors.New("cop1: unsupported frame type")
	// ErrInvalidSuspendState is returned when the engine's internal
	// suspend-state bookkeeping holds a value outside 0..4. This should be
	// unreachable in normal operation; it guards against programmer error
	// in future edits to the suspend/resume bookkeeping.
	ErrInvalidSuspendState = errors.New("cop1: invalid suspend state")
	// ErrDisposed is returned by Transmit once Dispose or Abort has run; the
	// other stimulus entry points silently drop their stimulus instead.
	ErrDisposed = errors.New("cop1: engine disposed")
)

// FrameType identifies the three Type-A/B frame kinds COP-1 operates on.
type FrameType int

const (
	FrameTypeAD FrameType = iota // Type-A Data: acknowledged, sequence-numbered.
	FrameTypeBC                  // Type-B Control: carries Unlock / SetV(R).
	FrameTypeBD                  // Type-B Data: unacknowledged.
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeAD:
		return "AD"
	case FrameTypeBC:
		return "BC"
	case FrameTypeBD:
		return "BD"
	default:
		return "UNKNOWN"
	}
}

// Frame is the engine's view of a TC transfer frame. The engine never
// inspects Payload; frame construction and virtual-channel framing live
// above this package.
type Frame struct {
	Type FrameType
	// NS is the Frame Sequence Number, meaningful for AD frames only.
	NS uint8
	// Payload is opaque to the engine.
	Payload []byte
}

// CopEffectType distinguishes which on-board control procedure a CLCW's
// report describes. The engine only consumes reports where this is COP1.
type CopEffectType int

const (
	CopEffectNone CopEffectType = iota
	CopEffectCOP1
)

// CLCW is the sender's decoded view of a Communications Link Control Word,
// per CCSDS 232.0. Bit-level decoding from the wire OCF is out of scope for
// this package. Report is the CLCW's Report Value field, i.e. N(R).
type CLCW struct {
	CopInEffect CopEffectType
	VCID        uint8
	Lockout     bool
	Wait        bool
	Retransmit  bool
	Report      uint8
}

// DirectiveKind enumerates the directives the higher procedures may issue.
type DirectiveKind int

const (
	DirInitADWithoutCLCW DirectiveKind = iota
	DirInitADWithCLCW
	DirInitADWithUnlock
	DirInitADWithSetVR
	DirTerminate
	DirResume
	DirSetVS
	DirSetFOPSlidingWindow
	DirSetT1Initial
	DirSetTransmissionLimit
	DirSetTimeoutType
)

func (k DirectiveKind) String() string {
	switch k {
	case DirInitADWithoutCLCW:
		return "INIT_AD_WITHOUT_CLCW"
	case DirInitADWithCLCW:
		return "INIT_AD_WITH_CLCW"
	case DirInitADWithUnlock:
		return "INIT_AD_WITH_UNLOCK"
	case DirInitADWithSetVR:
		return "INIT_AD_WITH_SET_V_R"
	case DirTerminate:
		return "TERMINATE"
	case DirResume:
		return "RESUME"
	case DirSetVS:
		return "SET_V_S"
	case DirSetFOPSlidingWindow:
		return "SET_FOP_SLIDING_WINDOW"
	case DirSetT1Initial:
		return "SET_T1_INITIAL"
	case DirSetTransmissionLimit:
		return "SET_TRANSMISSION_LIMIT"
	case DirSetTimeoutType:
		return "SET_TIMEOUT_TYPE"
	default:
		return "UNKNOWN_DIRECTIVE"
	}
}

// Directive is a request from a higher procedure, identified by an
// arbitrary caller-supplied Tag that is echoed back in the matching
// ACCEPT/REJECT/confirm notification.
type Directive struct {
	Tag       interface{}
	Kind      DirectiveKind
	Qualifier int
}

// Options carries the four runtime-mutable engine parameters named in
// CCSDS 232.1-B-2 section 5.1. All four are also settable at runtime via the
// matching SET_* directive.
type Options struct {
	T1Initial        time.Duration
	TransmissionLimit int
	TimeoutType       int // 0 or 1
	FOPSlidingWindow  int // 1..255
}

// DefaultOptions returns conservative defaults matching common ground
// station practice: a five second retransmission timer, one retry, alert
// (not suspend) on limit exhaustion, and a window of one.
func DefaultOptions() Options {
	return Options{
		T1Initial:         5 * time.Second,
		TransmissionLimit: 2,
		TimeoutType:       0,
		FOPSlidingWindow:  1,
	}
}
