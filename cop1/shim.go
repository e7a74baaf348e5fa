package cop1

// lowerLayerShim is the single-threaded forwarder of spec section 4.5: it
// is disjoint from the engine worker so that a blocking call into the
// output sink never stalls classification or timer/CLCW processing on the
// engine worker.
type lowerLayerShim struct {
	call     func(Frame) bool
	deliver  func(Frame, bool)
	frames   chan Frame
	done     chan struct{}
}

func newLowerLayerShim(call func(Frame) bool, deliver func(Frame, bool)) *lowerLayerShim {
	return &lowerLayerShim{
		call:    call,
		deliver: deliver,
		frames:  make(chan Frame, 64),
		done:    make(chan struct{}),
	}
}

func (s *lowerLayerShim) start() {
	go s.run()
}

func (s *lowerLayerShim) run() {
	defer close(s.done)
	for f := range s.frames {
		accepted := s.call(f)
		s.deliver(f, accepted)
	}
}

// submit offers f to the shim worker. It is the "hand frame to lower-layer
// shim" step referenced throughout the action library.
func (s *lowerLayerShim) submit(f Frame) {
	s.frames <- f
}

func (s *lowerLayerShim) stop() {
	close(s.frames)
	<-s.done
}
