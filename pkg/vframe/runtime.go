package vframe

// Scope identifies a continuation scope. Scopes compare by pointer identity.
type Scope struct {
	Name string
}

// NewScope returns a new scope identity.
func NewScope(name string) *Scope {
	return &Scope{Name: name}
}

func (s *Scope) String() string {
	if s == nil {
		return "<none>"
	}
	return s.Name
}

// ThreadState is the execution state last published by a thread.
type ThreadState int

const (
	StateUninitialized ThreadState = iota
	StateNew
	StateInNative
	StateInVM
	StateInManaged
	StateBlocked
	StateExited
)

func (s ThreadState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInNative:
		return "in_native"
	case StateInVM:
		return "in_vm"
	case StateInManaged:
		return "in_managed"
	case StateBlocked:
		return "blocked"
	case StateExited:
		return "exited"
	default:
		return "uninitialized"
	}
}

// MapOptions configures the register map a stream owns.
type MapOptions struct {
	UpdateMap        bool // track callee-saved locations (needed to read oops)
	ProcessFrames    bool // fix up frames before they are read
	WalkContinuation bool // descend into continuation stack chunks
}

// Method is a managed method.
type Method interface {
	// ValidateBCIFromBCP maps a raw bytecode pointer to a bci, or -1 when bcp
	// does not point into the method's bytecode.
	ValidateBCIFromBCP(bcp uintptr) int
	// IsMethod reports whether the reference is a well-formed method.
	IsMethod() bool
}

// CompiledMethod is the code blob of a compiled frame.
type CompiledMethod interface {
	Method() Method
	IsNativeMethod() bool
	// PcDescAt returns the scope decode offset recorded for pc.
	PcDescAt(pc uintptr) (decodeOffset int, ok bool)
	ScopesDataSize() int
	ScopesData() []byte
	MetadataAt(index int) (Method, bool)
}

// Frame is a read-only view of one physical activation. It may be backed by
// the thread's stack or by a heap-resident stack chunk.
type Frame interface {
	IsInterpretedFrame() bool
	IsFirstFrame() bool
	// IsEntryFrame reports a call stub entering managed code from native code.
	IsEntryFrame() bool
	IsHeapFrame() bool
	// IsContinuationEntry reports the marker frame where a continuation's
	// frames begin on the thread stack.
	IsContinuationEntry() bool
	OffsetUnextendedSP() int
	PC() uintptr
	ID() uintptr
	// CompiledMethod returns nil unless the frame's code blob is a compiled method.
	CompiledMethod() CompiledMethod
	InterpreterFrameMethod() Method
	InterpreterFrameBCP() uintptr
	// Sender resolves the caller frame, advancing m.
	Sender(m RegisterMap) Frame
}

// RegisterMap is the mutable walk state threaded through Frame.Sender.
type RegisterMap interface {
	Thread() Thread
	// Continuation returns the continuation whose chunk is being walked, or nil.
	Continuation() Continuation
	InContinuation() bool
	StackChunkIndex() int
	// InterpreterFrameMethod and InterpreterFrameBCP read a heap frame through
	// the chunk that holds it.
	InterpreterFrameMethod(f Frame) Method
	InterpreterFrameBCP(f Frame) uintptr
	// IsContinuationEntryFrame reports whether f is the bottom frame of the
	// continuation being walked.
	IsContinuationEntryFrame(f Frame) bool
	ProcessFrames() bool
}

// Continuation is a suspendable execution context.
type Continuation interface {
	Scope() *Scope
	// LastFrame returns the continuation's top frame and positions m in its
	// newest stack chunk.
	LastFrame(m RegisterMap) Frame
}

// ContinuationEntry is one node of a thread's chain of entered continuations.
type ContinuationEntry interface {
	Parent() ContinuationEntry
	Continuation() Continuation
	IsVirtualThread() bool
	Scope() *Scope
}

// Thread is the walked thread.
type Thread interface {
	HasLastFrame() bool
	LastFrame(m RegisterMap) Frame
	IsVirtualThreadMounted() bool
	CarrierLastFrame(m RegisterMap) Frame
	VirtualThreadLastFrame(m RegisterMap) Frame
	VirtualThreadContinuation() Continuation
	LastContinuation() ContinuationEntry
	State() ThreadState
	VirtualThreadScope() *Scope
	NewRegisterMap(opts MapOptions) RegisterMap
}
