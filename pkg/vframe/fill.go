package vframe

import (
	"github.com/charmbracelet/log"

	"vwalk/pkg/debuginfo"
)

// fillFromFrame decodes the current physical frame. It returns false when the
// frame carries no logical frame and the walk has to continue with its sender.
func (s *Stream) fillFromFrame() bool {
	if s.frame.IsInterpretedFrame() {
		s.fillFromInterpreterFrame()
		return true
	}

	if nm := s.frame.CompiledMethod(); nm != nil {
		s.code = nm
		if nm.IsNativeMethod() {
			// The pc of a native frame may be imprecise, so the scopes are
			// not consulted.
			s.fillFromCompiledNativeFrame()
			return true
		}

		decodeOffset, ok := nm.PcDescAt(s.frame.PC())
		if !ok {
			// Only expected when the thread is walked without being stopped.
			// A thread caught executing managed code yields the method with
			// bci 0 and no inlining, and the walk goes no further than this
			// frame. Otherwise the missing descriptor is a defect and the
			// null offset makes fillFromCompiledFrame degrade.
			if s.threadState() == StateInManaged {
				s.fillFromCompiledNativeFrame()
				s.stopAfterFrame = true
				return true
			}
			decodeOffset = debuginfo.SerializedNull
		}
		s.fillFromCompiledFrame(decodeOffset)
		s.vframeID = 0
		return true
	}

	// end of stack?
	if s.frame.IsFirstFrame() || (s.stopAtCallStub && s.frame.IsEntryFrame()) {
		s.setAtEnd()
		return true
	}

	return false
}

func (s *Stream) threadState() ThreadState {
	if s.thread == nil {
		return StateInManaged
	}
	return s.thread.State()
}

func (s *Stream) fillFromCompiledFrame(decodeOffset int) {
	s.mode = ModeCompiled
	s.decodeOffset = decodeOffset

	// Asynchronous samples can hand us wild frames. Decoding at the null
	// offset or outside the table would produce garbage methods, so those
	// frames are reported like native compiled frames instead.
	if !debuginfo.Valid(decodeOffset, s.code.ScopesDataSize()) {
		s.foundBadMethodFrame("pc descriptor missing or invalid", "offset", decodeOffset)
		s.fillFromCompiledNativeFrame()
		return
	}

	rs := debuginfo.NewReadStream(s.code.ScopesData(), decodeOffset)
	sc, err := rs.ReadScope()
	if err != nil {
		s.foundBadMethodFrame("undecodable scope", "offset", decodeOffset, "err", err)
		s.fillFromCompiledNativeFrame()
		return
	}

	method, ok := s.code.MetadataAt(sc.MethodIndex)
	if !ok || method == nil {
		s.foundBadMethodFrame("scope method out of range", "offset", decodeOffset, "index", sc.MethodIndex)
		s.fillFromCompiledNativeFrame()
		return
	}

	// Senders are recorded before the scopes that inline them. A racy offset
	// that lands inside a record can decode a sender at or after itself,
	// which would never terminate.
	if sc.SenderOffset != debuginfo.SerializedNull && sc.SenderOffset >= decodeOffset {
		s.foundBadMethodFrame("sender scope does not precede scope", "offset", decodeOffset, "sender", sc.SenderOffset)
		s.fillFromCompiledNativeFrame()
		return
	}

	s.senderDecodeOffset = sc.SenderOffset
	s.method = method
	s.bci = sc.BCI

	contract(s.method.IsMethod(), "decoded method is malformed", s.mode)
}

func (s *Stream) fillFromCompiledNativeFrame() {
	s.mode = ModeCompiled
	s.senderDecodeOffset = debuginfo.SerializedNull
	s.decodeOffset = debuginfo.SerializedNull
	s.vframeID = 0
	s.method = s.code.Method()
	s.bci = 0
}

func (s *Stream) fillFromInterpreterFrame() {
	var (
		method Method
		bcp    uintptr
	)
	if !s.regMap.InContinuation() {
		method = s.frame.InterpreterFrameMethod()
		bcp = s.frame.InterpreterFrameBCP()
	} else {
		method = s.regMap.InterpreterFrameMethod(s.frame)
		bcp = s.regMap.InterpreterFrameBCP(s.frame)
	}

	bci := -1
	if method != nil {
		bci = method.ValidateBCIFromBCP(bcp)
	}
	// An asynchronous sample can catch a frame that is still being built and
	// has no bytecode position yet. Pretend it is entering the method.
	if bci < 0 {
		s.foundBadMethodFrame("invalid bcp", "bcp", bcp)
		bci = 0
	}

	s.code = nil
	s.mode = ModeInterpreted
	s.method = method
	s.bci = bci
	s.senderDecodeOffset = debuginfo.SerializedNull
}

func (s *Stream) foundBadMethodFrame(msg string, keyvals ...any) {
	kv := append([]any{"pc", s.frame.PC(), "frame", s.FrameID()}, keyvals...)
	if debugChecks {
		log.Error("bad method frame: "+msg, kv...)
		return
	}
	log.Debug("bad method frame: "+msg, kv...)
}
