// Package vframe walks a thread's physical stack as a sequence of logical
// method activations.
//
// A Stream yields one logical frame per interpreted physical frame and one per
// inlining level of a compiled physical frame, innermost first. It crosses
// into continuation stack chunks and stops at virtual-thread boundaries. The
// walk tolerates a target thread that is still running: racy or inconsistent
// frame data degrades to bci 0 or to the method of the compiled frame instead
// of failing.
package vframe

import (
	"fmt"
	"iter"

	"vwalk/pkg/debuginfo"
)

// Mode selects which logical frame fields are meaningful.
type Mode int

const (
	ModeAtEnd Mode = iota
	ModeInterpreted
	ModeCompiled
)

func (m Mode) String() string {
	switch m {
	case ModeInterpreted:
		return "interpreted"
	case ModeCompiled:
		return "compiled"
	default:
		return "at_end"
	}
}

// LogicalFrame is a copy of the stream's current logical frame.
type LogicalFrame struct {
	Mode   Mode
	Method Method
	BCI    int

	// compiled mode only
	VFrameID     int
	DecodeOffset int

	FrameID     uintptr
	Interpreted bool
}

func (f LogicalFrame) String() string {
	switch f.Mode {
	case ModeCompiled:
		return fmt.Sprintf("compiled %v bci=%d vframe=%d", f.Method, f.BCI, f.VFrameID)
	case ModeInterpreted:
		return fmt.Sprintf("interpreted %v bci=%d", f.Method, f.BCI)
	default:
		return "at_end"
	}
}

// Stream is a cursor over the logical frames of one thread. It is owned by a
// single goroutine and must not be shared.
type Stream struct {
	thread    Thread
	regMap    RegisterMap
	frame     Frame
	contEntry ContinuationEntry
	scope     *Scope

	stopAtCallStub bool

	mode   Mode
	method Method
	bci    int
	code   CompiledMethod

	vframeID           int
	decodeOffset       int
	senderDecodeOffset int

	// set when a compiled frame of a running thread had no pc descriptor
	stopAfterFrame bool
}

// Option configures a Stream.
type Option func(*config)

type config struct {
	mapOpts        MapOptions
	stopAtCallStub bool
	carrier        bool
	scope          *Scope
}

func defaultConfig() config {
	return config{
		mapOpts: MapOptions{
			UpdateMap:        true,
			ProcessFrames:    true,
			WalkContinuation: true,
		},
	}
}

// WithStopAtCallStub ends the walk at the first call stub entry frame.
func WithStopAtCallStub(stop bool) Option {
	return func(c *config) { c.stopAtCallStub = stop }
}

// WithProcessFrames controls whether frames are processed before being read.
// Asynchronous samplers turn this off.
func WithProcessFrames(process bool) Option {
	return func(c *config) { c.mapOpts.ProcessFrames = process }
}

// WithUpdateMap controls whether the register map tracks callee-saved
// locations.
func WithUpdateMap(update bool) Option {
	return func(c *config) { c.mapOpts.UpdateMap = update }
}

// WithWalkContinuation controls whether the walk descends into continuation
// stack chunks.
func WithWalkContinuation(walk bool) Option {
	return func(c *config) { c.mapOpts.WalkContinuation = walk }
}

// WithCarrier walks a mounted virtual thread's carrier frames instead of the
// virtual thread's own frames.
func WithCarrier(carrier bool) Option {
	return func(c *config) { c.carrier = carrier }
}

// WithScope stops the walk at the entry of the innermost continuation of scope.
func WithScope(scope *Scope) Option {
	return func(c *config) { c.scope = scope }
}

// AtEnd reports whether the walk is over.
func (s *Stream) AtEnd() bool {
	return s.mode == ModeAtEnd
}

// Mode returns the mode of the current logical frame.
func (s *Stream) Mode() Mode {
	return s.mode
}

// Method returns the method of the current logical frame.
func (s *Stream) Method() Method {
	return s.method
}

// BCI returns the bytecode index of the current logical frame.
func (s *Stream) BCI() int {
	return s.bci
}

// IsInterpretedFrame reports whether the current physical frame is interpreted.
func (s *Stream) IsInterpretedFrame() bool {
	return s.frame != nil && s.frame.IsInterpretedFrame()
}

// VFrameID returns the inlining ordinal of the current logical frame within
// its physical frame: 0 for the first frame decoded, counting outwards.
// Only valid in compiled mode.
func (s *Stream) VFrameID() int {
	contract(s.mode == ModeCompiled, "VFrameID", s.mode)
	return s.vframeID
}

// DecodeOffset returns the debug-table offset the current logical frame was
// decoded from. Only valid in compiled mode.
func (s *Stream) DecodeOffset() int {
	contract(s.mode == ModeCompiled, "DecodeOffset", s.mode)
	return s.decodeOffset
}

// FrameID returns an identity for the current physical frame that is stable
// across calls. Heap frames can be moved by the collector, so their identity
// is derived from the chunk index and the offset inside the chunk.
func (s *Stream) FrameID() uintptr {
	if s.frame == nil {
		return 0
	}
	if s.frame.IsHeapFrame() {
		id := uintptr(s.regMap.StackChunkIndex()) << 16
		id += uintptr(s.frame.OffsetUnextendedSP())
		return id
	}
	return s.frame.ID()
}

// Continuation returns the continuation the current frame belongs to, or nil.
func (s *Stream) Continuation() Continuation {
	if s.regMap != nil {
		if c := s.regMap.Continuation(); c != nil {
			return c
		}
	}
	if s.contEntry != nil {
		return s.contEntry.Continuation()
	}
	return nil
}

// Frame returns a copy of the current logical frame.
func (s *Stream) Frame() LogicalFrame {
	f := LogicalFrame{Mode: s.mode}
	if s.mode == ModeAtEnd {
		return f
	}

	f.Method = s.method
	f.BCI = s.bci
	f.FrameID = s.FrameID()
	f.Interpreted = s.mode == ModeInterpreted
	if s.mode == ModeCompiled {
		f.VFrameID = s.vframeID
		f.DecodeOffset = s.decodeOffset
	}
	return f
}

// All yields the current logical frame and every remaining one, advancing the
// stream as it goes.
func (s *Stream) All() iter.Seq[LogicalFrame] {
	return func(yield func(LogicalFrame) bool) {
		for ; !s.AtEnd(); s.Next() {
			if !yield(s.Frame()) {
				return
			}
		}
	}
}

func (s *Stream) setAtEnd() {
	s.mode = ModeAtEnd
	s.method = nil
	s.bci = 0
	s.code = nil
	s.senderDecodeOffset = debuginfo.SerializedNull
}
