package vframe

import "vwalk/pkg/debuginfo"

// Next advances to the next logical frame, or to the end of the walk. Calling
// Next at the end is a no-op.
func (s *Stream) Next() {
	if s.mode == ModeAtEnd {
		return
	}

	// frames with inlining
	if s.mode == ModeCompiled && s.fillInCompiledInlinedSender() {
		return
	}

	if s.stopAfterFrame {
		s.setAtEnd()
		return
	}

	s.unwind()
}

// unwind walks to sender physical frames until one of them decodes to a
// logical frame or the walk ends.
func (s *Stream) unwind() {
	for {
		enterSpecial := false
		if s.frame.IsContinuationEntry() {
			contract(!s.regMap.InContinuation(), "continuation entry inside a chunk", s.mode)
			contract(s.contEntry != nil, "continuation entry without entry record", s.mode)
			contract(!s.regMap.ProcessFrames() || s.contEntry == nil || s.contEntry.Continuation() != nil,
				"continuation entry without continuation", s.mode)
			enterSpecial = true

			if s.contEntry != nil && (s.contEntry.IsVirtualThread() || s.inScope(s.contEntry.Scope())) {
				s.setAtEnd()
				return
			}
		} else if s.regMap.InContinuation() && s.regMap.IsContinuationEntryFrame(s.frame) {
			cont := s.regMap.Continuation()
			contract(cont != nil, "chunk walk without continuation", s.mode)
			if cont != nil {
				scope := cont.Scope()
				if scope != nil && (scope == s.thread.VirtualThreadScope() || s.inScope(scope)) {
					s.setAtEnd()
					return
				}
			}
		}

		sender := s.frame.Sender(s.regMap)
		if sender == nil {
			s.setAtEnd()
			return
		}
		s.frame = sender

		if enterSpecial && s.contEntry != nil {
			s.contEntry = s.contEntry.Parent()
		}

		if s.fillFromFrame() {
			return
		}
	}
}

func (s *Stream) inScope(scope *Scope) bool {
	return s.scope != nil && scope == s.scope
}

func (s *Stream) fillInCompiledInlinedSender() bool {
	if s.senderDecodeOffset == debuginfo.SerializedNull {
		return false
	}
	s.fillFromCompiledFrame(s.senderDecodeOffset)
	s.vframeID++
	return true
}
