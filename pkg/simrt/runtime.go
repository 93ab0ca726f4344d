// Package simrt is an in-memory managed runtime: methods, compiled code with
// inlining descriptors, threads with physical stacks, and continuations whose
// frames can be frozen into heap stack chunks. It implements the interfaces
// consumed by package vframe and lets callers inject the inconsistencies an
// asynchronous sampler can observe.
package simrt

import (
	"fmt"

	"vwalk/pkg/vframe"
)

const (
	codeBaseStart   = 0x0040_0000
	methodBaseStart = 0x1000_0000
	stackBaseStart  = 0x7ff0_0000_0000
	stackStride     = 0x10_0000
	heapBaseStart   = 0x6000_0000_0000
	chunkStride     = 0x1_0000
	frameSize       = 0x40
	pcStride        = 4
)

var (
	_ vframe.Method            = (*Method)(nil)
	_ vframe.CompiledMethod    = (*CompiledMethod)(nil)
	_ vframe.Frame             = (*Frame)(nil)
	_ vframe.RegisterMap       = (*RegisterMap)(nil)
	_ vframe.Thread            = (*Thread)(nil)
	_ vframe.Continuation      = (*Continuation)(nil)
	_ vframe.ContinuationEntry = (*ContinuationEntry)(nil)
)

// Runtime owns the methods, code and threads of one simulated VM.
type Runtime struct {
	methods []*Method
	code    []*CompiledMethod
	threads []*Thread

	vthreadScope *vframe.Scope

	nextMethodBase uintptr
	nextCodeBase   uintptr
	nextHeapBase   uintptr
}

// New returns an empty runtime.
func New() *Runtime {
	return &Runtime{
		vthreadScope:   vframe.NewScope("VirtualThreads"),
		nextMethodBase: methodBaseStart,
		nextCodeBase:   codeBaseStart,
		nextHeapBase:   heapBaseStart,
	}
}

// VirtualThreadScope is the scope shared by every virtual thread continuation.
func (r *Runtime) VirtualThreadScope() *vframe.Scope {
	return r.vthreadScope
}

// MethodByID looks a method up by the id handed out to profilers.
func (r *Runtime) MethodByID(id uint64) (*Method, bool) {
	if id == 0 || id > uint64(len(r.methods)) {
		return nil, false
	}
	return r.methods[id-1], true
}

// Threads returns the threads created so far.
func (r *Runtime) Threads() []*Thread {
	return r.threads
}

// Thread finds a thread by name.
func (r *Runtime) Thread(name string) (*Thread, error) {
	for _, t := range r.threads {
		if t.name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no thread named %q", name)
}

func (r *Runtime) allocChunk() uintptr {
	addr := r.nextHeapBase
	r.nextHeapBase += chunkStride
	return addr
}

func align(n uintptr) uintptr {
	return (n + 15) &^ 15
}
