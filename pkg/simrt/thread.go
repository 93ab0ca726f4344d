package simrt

import (
	"errors"
	"fmt"

	"vwalk/pkg/stack"
	"vwalk/pkg/vframe"
)

var (
	ErrNotMounted     = errors.New("continuation is not mounted")
	ErrNotVirtual     = errors.New("continuation is not a virtual thread")
	ErrAlreadyEntered = errors.New("continuation already entered")
)

// Thread is a platform thread with a physical stack. The stack always holds
// the thread's first frame at the bottom.
type Thread struct {
	rt   *Runtime
	name string
	base uintptr

	frames *stack.Stack[*Frame]

	state    vframe.ThreadState
	walkable bool

	lastCont *ContinuationEntry
	mounted  *Continuation
}

// NewThread starts a thread with an empty stack in managed state.
func (r *Runtime) NewThread(name string) *Thread {
	t := &Thread{
		rt:       r,
		name:     name,
		base:     stackBaseStart + uintptr(len(r.threads))*stackStride,
		frames:   stack.NewStack[*Frame](),
		state:    vframe.StateInManaged,
		walkable: true,
	}
	t.push(FrameSpec{Kind: KindFirst})
	r.threads = append(r.threads, t)
	return t
}

func (t *Thread) Name() string {
	return t.name
}

func (t *Thread) String() string {
	return fmt.Sprintf("thread %q", t.name)
}

// SetState publishes a new thread state.
func (t *Thread) SetState(s vframe.ThreadState) {
	t.state = s
}

// SetWalkable marks whether the thread's last frame can be reconstructed.
func (t *Thread) SetWalkable(w bool) {
	t.walkable = w
}

// Frames returns the thread stack frames, outermost first.
func (t *Thread) Frames() []*Frame {
	return t.frames.Array()
}

// Push adds frames on top of the stack, outermost first, and returns them.
func (t *Thread) Push(specs ...FrameSpec) []*Frame {
	out := make([]*Frame, 0, len(specs))
	for _, spec := range specs {
		out = append(out, t.push(spec))
	}
	return out
}

func (t *Thread) push(spec FrameSpec) *Frame {
	pos := t.frames.Size()
	f := &Frame{
		spec:   spec,
		thread: t,
		pos:    pos,
		sp:     t.base - uintptr(pos)*frameSize,
		offset: pos * (frameSize / 8),
	}
	t.frames.Push(f)
	return f
}

// Pop removes the top frame. The first frame is never removed.
func (t *Thread) Pop() (*Frame, bool) {
	if t.frames.Size() <= 1 {
		return nil, false
	}
	return t.frames.Pop()
}

// EnterContinuation pushes the entry frame of c and links c into the thread's
// chain of continuations.
func (t *Thread) EnterContinuation(c *Continuation) (*ContinuationEntry, error) {
	if c.entry != nil {
		return nil, fmt.Errorf("%v: %w", c, ErrAlreadyEntered)
	}
	e := &ContinuationEntry{parent: t.lastCont, cont: c}
	e.frame = t.push(FrameSpec{Kind: KindContinuationEntry})
	e.frame.entry = e
	c.entry = e
	t.lastCont = e
	return e, nil
}

// Mount enters the virtual thread vt. Frames already frozen in vt's chunks
// stay there until the walk reaches them.
func (t *Thread) Mount(vt *Continuation) (*ContinuationEntry, error) {
	if !vt.virtual {
		return nil, fmt.Errorf("%v: %w", vt, ErrNotVirtual)
	}
	e, err := t.EnterContinuation(vt)
	if err != nil {
		return nil, err
	}
	t.mounted = vt
	return e, nil
}

// Freeze moves the frames above c's entry frame into a new stack chunk of c.
// The continuation stays entered, so the thread stack ends in a bare entry
// frame, the state a sampler observes in the middle of a yield.
func (t *Thread) Freeze(c *Continuation) (*StackChunk, error) {
	e := c.entry
	if e == nil || e.frame.thread != t {
		return nil, fmt.Errorf("%v: %w", c, ErrNotMounted)
	}

	var specs []FrameSpec
	for t.frames.Size()-1 > e.frame.pos {
		f, _ := t.frames.Pop()
		specs = append(specs, f.spec)
	}
	// popped top first, Freeze wants outermost first
	for i, j := 0, len(specs)-1; i < j; i, j = i+1, j-1 {
		specs[i], specs[j] = specs[j], specs[i]
	}
	return c.Freeze(specs...), nil
}

// Yield freezes c and returns from its entry frame. c must be the innermost
// entered continuation.
func (t *Thread) Yield(c *Continuation) (*StackChunk, error) {
	if c.entry == nil || c.entry != t.lastCont {
		return nil, fmt.Errorf("%v: %w", c, ErrNotMounted)
	}
	chunk, err := t.Freeze(c)
	if err != nil {
		return nil, err
	}
	t.frames.Pop()
	t.lastCont = c.entry.parent
	c.entry = nil
	if t.mounted == c {
		t.mounted = nil
	}
	return chunk, nil
}

func (t *Thread) sender(f *Frame, m *RegisterMap) *Frame {
	if f.pos == 0 {
		return nil
	}
	below := t.frames.Array()[f.pos-1]
	if below.spec.Kind == KindContinuationEntry && m.opts.WalkContinuation {
		// return barrier: the rest of the continuation is frozen
		if c := below.entry.cont; c.newest != nil {
			m.enterChunk(c, c.newest)
			return c.newest.frames[0]
		}
	}
	return below
}

func (t *Thread) HasLastFrame() bool {
	return t.walkable && t.frames.Size() > 1
}

func (t *Thread) LastFrame(m vframe.RegisterMap) vframe.Frame {
	if t.frames.Size() <= 1 {
		return nil
	}
	f, _ := t.frames.Peek()
	return f
}

func (t *Thread) IsVirtualThreadMounted() bool {
	return t.mounted != nil
}

// CarrierLastFrame returns the carrier's frame that entered the mounted
// virtual thread.
func (t *Thread) CarrierLastFrame(m vframe.RegisterMap) vframe.Frame {
	if t.mounted == nil || t.mounted.entry == nil {
		return t.LastFrame(m)
	}
	pos := t.mounted.entry.frame.pos
	if pos == 0 {
		return nil
	}
	return t.frames.Array()[pos-1]
}

func (t *Thread) VirtualThreadLastFrame(m vframe.RegisterMap) vframe.Frame {
	return t.LastFrame(m)
}

func (t *Thread) VirtualThreadContinuation() vframe.Continuation {
	if t.mounted == nil {
		return nil
	}
	return t.mounted
}

func (t *Thread) LastContinuation() vframe.ContinuationEntry {
	if t.lastCont == nil {
		return nil
	}
	return t.lastCont
}

func (t *Thread) State() vframe.ThreadState {
	return t.state
}

func (t *Thread) VirtualThreadScope() *vframe.Scope {
	return t.rt.vthreadScope
}

func (t *Thread) NewRegisterMap(opts vframe.MapOptions) vframe.RegisterMap {
	return &RegisterMap{thread: t, opts: opts}
}
