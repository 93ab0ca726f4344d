package simrt

import (
	"fmt"

	"vwalk/pkg/vframe"
)

// Continuation is a delimited continuation. Its frames live on the stack of
// the thread that entered it or, once frozen, in a list of stack chunks.
type Continuation struct {
	rt      *Runtime
	name    string
	scope   *vframe.Scope
	virtual bool

	newest *StackChunk
	entry  *ContinuationEntry
}

// NewContinuation creates an unmounted continuation of scope.
func (r *Runtime) NewContinuation(name string, scope *vframe.Scope) *Continuation {
	return &Continuation{rt: r, name: name, scope: scope}
}

// NewVirtualThread creates the continuation backing a virtual thread.
func (r *Runtime) NewVirtualThread(name string) *Continuation {
	c := r.NewContinuation(name, r.vthreadScope)
	c.virtual = true
	return c
}

func (c *Continuation) Name() string {
	return c.name
}

func (c *Continuation) IsVirtual() bool {
	return c.virtual
}

func (c *Continuation) String() string {
	return fmt.Sprintf("continuation %q (%v)", c.name, c.scope)
}

// Chunks returns the continuation's stack chunks, newest first.
func (c *Continuation) Chunks() []*StackChunk {
	var out []*StackChunk
	for ch := c.newest; ch != nil; ch = ch.parent {
		out = append(out, ch)
	}
	return out
}

// Freeze stores frames, outermost first, in a new chunk that becomes the
// continuation's newest. An empty freeze is a no-op and returns nil.
func (c *Continuation) Freeze(specs ...FrameSpec) *StackChunk {
	if len(specs) == 0 {
		return nil
	}

	ch := &StackChunk{cont: c, parent: c.newest, addr: c.rt.allocChunk()}
	ch.frames = make([]*Frame, len(specs))
	for i := range specs {
		idx := len(specs) - 1 - i
		ch.frames[idx] = &Frame{
			spec:   specs[i],
			chunk:  ch,
			index:  idx,
			offset: idx * (frameSize / 8),
		}
	}
	c.newest = ch
	return ch
}

func (c *Continuation) Scope() *vframe.Scope {
	return c.scope
}

// LastFrame positions m at the top of the newest chunk. Without frozen frames
// it returns the entry frame, or nil when c is not entered.
func (c *Continuation) LastFrame(m vframe.RegisterMap) vframe.Frame {
	if c.newest != nil {
		if rm, ok := m.(*RegisterMap); ok {
			rm.enterChunk(c, c.newest)
		}
		return c.newest.frames[0]
	}
	if c.entry != nil {
		return c.entry.frame
	}
	return nil
}

// ContinuationEntry records one entered continuation on a thread stack.
type ContinuationEntry struct {
	parent *ContinuationEntry
	cont   *Continuation
	frame  *Frame
}

// Frame returns the entry's marker frame on the thread stack.
func (e *ContinuationEntry) Frame() *Frame {
	return e.frame
}

func (e *ContinuationEntry) Parent() vframe.ContinuationEntry {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *ContinuationEntry) Continuation() vframe.Continuation {
	if e.cont == nil {
		return nil
	}
	return e.cont
}

func (e *ContinuationEntry) IsVirtualThread() bool {
	return e.cont != nil && e.cont.virtual
}

func (e *ContinuationEntry) Scope() *vframe.Scope {
	if e.cont == nil {
		return nil
	}
	return e.cont.scope
}

// StackChunk is a heap object holding frozen frames, top frame first.
type StackChunk struct {
	cont   *Continuation
	parent *StackChunk
	frames []*Frame
	addr   uintptr
}

// Frames returns the chunk's frames, top first.
func (ch *StackChunk) Frames() []*Frame {
	return ch.frames
}

// Addr is the chunk's current heap address.
func (ch *StackChunk) Addr() uintptr {
	return ch.addr
}

// Relocate moves the chunk to a new heap address, as a moving collector would.
func (ch *StackChunk) Relocate() {
	ch.addr = ch.cont.rt.allocChunk()
}

func (ch *StackChunk) sender(f *Frame, m *RegisterMap) *Frame {
	if f.index+1 < len(ch.frames) {
		return ch.frames[f.index+1]
	}
	if ch.parent != nil {
		m.nextChunk(ch.parent)
		return ch.parent.frames[0]
	}

	m.leaveChunks()
	if e := ch.cont.entry; e != nil {
		return e.frame
	}
	return nil
}
