package simrt

import (
	"fmt"

	"vwalk/pkg/vframe"
)

// Kind classifies a physical frame.
type Kind int

const (
	KindInterpreted Kind = iota
	KindCompiled
	KindStub     // runtime stub or adapter, no logical frame
	KindCallStub // entry from native code into managed code
	KindContinuationEntry
	KindFirst
)

func (k Kind) String() string {
	switch k {
	case KindInterpreted:
		return "interpreted"
	case KindCompiled:
		return "compiled"
	case KindStub:
		return "stub"
	case KindCallStub:
		return "call_stub"
	case KindContinuationEntry:
		return "continuation_entry"
	case KindFirst:
		return "first"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FrameSpec describes a frame to push onto a thread or freeze into a chunk.
type FrameSpec struct {
	Kind   Kind
	Method *Method
	BCP    uintptr
	Code   *CompiledMethod
	PC     uintptr
}

// Interpreted describes an interpreted frame of m executing bci.
func Interpreted(m *Method, bci int) FrameSpec {
	return FrameSpec{Kind: KindInterpreted, Method: m, BCP: m.BCP(bci)}
}

// InterpretedRaw describes an interpreted frame with an arbitrary bytecode
// pointer, like a frame caught while it is being built.
func InterpretedRaw(m *Method, bcp uintptr) FrameSpec {
	return FrameSpec{Kind: KindInterpreted, Method: m, BCP: bcp}
}

// Compiled describes a frame of nm stopped at pc.
func Compiled(nm *CompiledMethod, pc uintptr) FrameSpec {
	return FrameSpec{Kind: KindCompiled, Code: nm, PC: pc}
}

func Stub() FrameSpec { return FrameSpec{Kind: KindStub} }
func CallStub() FrameSpec { return FrameSpec{Kind: KindCallStub} }

// Frame is a physical frame, on a thread stack or in a stack chunk.
type Frame struct {
	spec FrameSpec

	thread *Thread
	pos    int // thread stack position, 0 is the outermost frame
	sp     uintptr

	chunk  *StackChunk
	index  int // chunk position, 0 is the chunk's top frame
	offset int

	entry *ContinuationEntry

	senders int
}

// Spec returns the description f was created from.
func (f *Frame) Spec() FrameSpec {
	return f.spec
}

func (f *Frame) Kind() Kind {
	return f.spec.Kind
}

// Senders counts the calls to Sender on f.
func (f *Frame) Senders() int {
	return f.senders
}

func (f *Frame) String() string {
	switch f.spec.Kind {
	case KindInterpreted:
		return fmt.Sprintf("interpreted %v bcp=%#x", f.spec.Method, f.spec.BCP)
	case KindCompiled:
		return fmt.Sprintf("compiled %v pc=%#x", f.spec.Code.method, f.spec.PC)
	default:
		return f.spec.Kind.String()
	}
}

func (f *Frame) IsInterpretedFrame() bool {
	return f.spec.Kind == KindInterpreted
}

func (f *Frame) IsFirstFrame() bool {
	return f.spec.Kind == KindFirst
}

func (f *Frame) IsEntryFrame() bool {
	return f.spec.Kind == KindCallStub
}

func (f *Frame) IsHeapFrame() bool {
	return f.chunk != nil
}

func (f *Frame) IsContinuationEntry() bool {
	return f.spec.Kind == KindContinuationEntry
}

// OffsetUnextendedSP is the frame's offset in words from the start of its
// chunk, or from the stack base for thread frames.
func (f *Frame) OffsetUnextendedSP() int {
	return f.offset
}

func (f *Frame) PC() uintptr {
	if f.spec.Kind == KindCompiled {
		return f.spec.PC
	}
	return 0
}

// ID is the frame's current address. Heap frames change address when their
// chunk is relocated.
func (f *Frame) ID() uintptr {
	if f.chunk != nil {
		return f.chunk.addr + uintptr(f.offset)*8
	}
	return f.sp
}

func (f *Frame) CompiledMethod() vframe.CompiledMethod {
	if f.spec.Kind != KindCompiled || f.spec.Code == nil {
		return nil
	}
	return f.spec.Code
}

func (f *Frame) InterpreterFrameMethod() vframe.Method {
	if f.spec.Method == nil {
		return nil
	}
	return f.spec.Method
}

func (f *Frame) InterpreterFrameBCP() uintptr {
	return f.spec.BCP
}

// Sender returns the caller of f, moving m across chunk boundaries. m must be
// a map created by Thread.NewRegisterMap; Sender panics on any other map.
func (f *Frame) Sender(m vframe.RegisterMap) vframe.Frame {
	f.senders++

	rm, ok := m.(*RegisterMap)
	if !ok {
		panic(fmt.Sprintf("simrt: %v: register map %T not created by a simrt thread", f, m))
	}

	var s *Frame
	if f.chunk != nil {
		s = f.chunk.sender(f, rm)
	} else if f.thread != nil {
		s = f.thread.sender(f, rm)
	}
	if s == nil {
		return nil
	}
	return s
}
