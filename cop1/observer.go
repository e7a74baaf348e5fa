package cop1

import (
	"sync"
	"sync/atomic"
)

// Observer receives FOP-1 notifications. Implementations must be
// non-blocking: callbacks run on the engine worker (spec section 5).
type Observer interface {
	// TransferNotification reports the outcome of an AD or BD frame offered
	// via Transmit.
	TransferNotification(status OperationStatus, frame Frame)
	// DirectiveNotification reports the outcome of a directive.
	DirectiveNotification(status OperationStatus, tag interface{}, directive DirectiveKind, qualifier int)
	// Alert reports a protocol alert.
	Alert(code AlertCode)
	// StateChanged reports a state transition.
	StateChanged(previous, current State)
}

// observerSet holds the registered observers behind a copy-on-write
// snapshot, so that notification delivery never blocks register/deregister
// and never observes a slice being mutated mid-iteration. This is the same
// shape as the teacher's common.Event broadcaster, adapted to use an
// immutable snapshot instead of a held lock, matching the original source's
// own use of a CopyOnWriteArrayList for its observer list and spec section
// 5's explicit snapshot-on-write requirement.
type observerSet struct {
	mu       sync.Mutex // serializes register/deregister only
	snapshot atomic.Value
}

func newObserverSet() *observerSet {
	s := &observerSet{}
	s.snapshot.Store([]Observer{})
	return s
}

func (s *observerSet) register(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot.Load().([]Observer)
	next := make([]Observer, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = o
	s.snapshot.Store(next)
}

func (s *observerSet) deregister(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot.Load().([]Observer)
	next := make([]Observer, 0, len(cur))
	for _, existing := range cur {
		if existing != o {
			next = append(next, existing)
		}
	}
	s.snapshot.Store(next)
}

func (s *observerSet) list() []Observer {
	return s.snapshot.Load().([]Observer)
}

func (s *observerSet) transferNotification(status OperationStatus, frame Frame) {
	for _, o := range s.list() {
		o.TransferNotification(status, frame)
	}
}

func (s *observerSet) directiveNotification(status OperationStatus, tag interface{}, directive DirectiveKind, qualifier int) {
	for _, o := range s.list() {
		o.DirectiveNotification(status, tag, directive, qualifier)
	}
}

func (s *observerSet) alert(code AlertCode) {
	for _, o := range s.list() {
		o.Alert(code)
	}
}

func (s *observerSet) stateChanged(previous, current State) {
	for _, o := range s.list() {
		o.StateChanged(previous, current)
	}
}
