package vframe

import "vwalk/pkg/debuginfo"

// New starts a walk of thread at its most recent logical frame.
//
// For a thread that is currently running a mounted virtual thread the walk
// starts at the virtual thread's top frame, or at the carrier's top frame with
// WithCarrier(true). A nil thread yields a stream that is already at end.
func New(thread Thread, opts ...Option) *Stream {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	s := newStream(thread, cfg)
	if thread == nil || !thread.HasLastFrame() {
		return s
	}

	mounted := thread.IsVirtualThreadMounted()
	if mounted {
		if cfg.carrier {
			s.frame = thread.CarrierLastFrame(s.regMap)
		} else {
			s.frame = thread.VirtualThreadLastFrame(s.regMap)
		}
		if s.frame != nil && s.frame.IsContinuationEntry() {
			// Caught while the virtual thread is frozen: every frame of the
			// continuation is in its stack chunks, not on the thread stack.
			if cont := thread.VirtualThreadContinuation(); cont != nil {
				s.frame = cont.LastFrame(s.regMap)
			}
		}
	} else {
		s.frame = thread.LastFrame(s.regMap)
	}

	s.contEntry = thread.LastContinuation()
	if mounted && cfg.carrier {
		// Carrier frames start below the virtual thread's entry, past any
		// continuations the virtual thread entered itself.
		for e := s.contEntry; e != nil; e = e.Parent() {
			if e.IsVirtualThread() {
				s.contEntry = e.Parent()
				break
			}
		}
	}

	s.start()
	return s
}

// NewForContinuation walks the frames of an unmounted continuation. The walk
// ends at the continuation's entry frame. A nil thread or continuation yields a
// stream that is already at end.
func NewForContinuation(thread Thread, cont Continuation, opts ...Option) *Stream {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.scope == nil && cont != nil {
		cfg.scope = cont.Scope()
	}

	s := newStream(thread, cfg)
	if thread == nil || cont == nil {
		return s
	}

	s.frame = cont.LastFrame(s.regMap)
	s.start()
	return s
}

func newStream(thread Thread, cfg config) *Stream {
	s := &Stream{
		thread:             thread,
		scope:              cfg.scope,
		stopAtCallStub:     cfg.stopAtCallStub,
		mode:               ModeAtEnd,
		decodeOffset:       debuginfo.SerializedNull,
		senderDecodeOffset: debuginfo.SerializedNull,
	}
	if thread != nil {
		s.regMap = thread.NewRegisterMap(cfg.mapOpts)
	}
	return s
}

// start decodes the first logical frame. There is no pending inlining state
// yet, so it goes straight to the physical walk.
func (s *Stream) start() {
	if s.frame == nil {
		s.setAtEnd()
		return
	}
	if s.fillFromFrame() {
		return
	}
	s.unwind()
}
