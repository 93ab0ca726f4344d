package simrt

import "vwalk/pkg/vframe"

// RegisterMap tracks which stack chunk, if any, a walk is in.
type RegisterMap struct {
	thread *Thread
	opts   vframe.MapOptions

	cont       *Continuation
	chunk      *StackChunk
	chunkIndex int
}

func (m *RegisterMap) enterChunk(c *Continuation, ch *StackChunk) {
	m.cont = c
	m.chunk = ch
	m.chunkIndex = 0
}

func (m *RegisterMap) nextChunk(ch *StackChunk) {
	m.chunk = ch
	m.chunkIndex++
}

func (m *RegisterMap) leaveChunks() {
	m.cont = nil
	m.chunk = nil
	m.chunkIndex = 0
}

// Options returns the options the map was created with.
func (m *RegisterMap) Options() vframe.MapOptions {
	return m.opts
}

func (m *RegisterMap) Thread() vframe.Thread {
	if m.thread == nil {
		return nil
	}
	return m.thread
}

func (m *RegisterMap) Continuation() vframe.Continuation {
	if m.cont == nil {
		return nil
	}
	return m.cont
}

func (m *RegisterMap) InContinuation() bool {
	return m.chunk != nil
}

func (m *RegisterMap) StackChunkIndex() int {
	return m.chunkIndex
}

func (m *RegisterMap) InterpreterFrameMethod(f vframe.Frame) vframe.Method {
	fr, ok := f.(*Frame)
	if !ok || fr.chunk == nil || fr.spec.Method == nil {
		return nil
	}
	return fr.chunk.frames[fr.index].spec.Method
}

func (m *RegisterMap) InterpreterFrameBCP(f vframe.Frame) uintptr {
	fr, ok := f.(*Frame)
	if !ok || fr.chunk == nil {
		return 0
	}
	return fr.chunk.frames[fr.index].spec.BCP
}

func (m *RegisterMap) IsContinuationEntryFrame(f vframe.Frame) bool {
	fr, ok := f.(*Frame)
	if !ok || fr.chunk == nil {
		return false
	}
	return fr.chunk.parent == nil && fr.index == len(fr.chunk.frames)-1
}

func (m *RegisterMap) ProcessFrames() bool {
	return m.opts.ProcessFrames
}
