package simrt

import (
	"fmt"
	"sort"

	"vwalk/pkg/debuginfo"
	"vwalk/pkg/vframe"
)

// ScopeDesc is one inlining level recorded at a pc.
type ScopeDesc struct {
	Method *Method
	BCI    int
}

type pcDesc struct {
	pc     uintptr
	offset int
}

// CompiledMethod is the compiled code of one method.
type CompiledMethod struct {
	method *Method
	native bool
	entry  uintptr
	size   uintptr

	pcs      []pcDesc
	rec      *debuginfo.Recorder
	metadata []*Method

	scopesReads int
}

// Compile creates compiled code for m. Pcs are added with AddPC.
func (r *Runtime) Compile(m *Method) *CompiledMethod {
	nm := &CompiledMethod{
		method: m,
		native: m.native,
		entry:  r.nextCodeBase,
		rec:    debuginfo.NewRecorder(),
	}
	r.nextCodeBase += 0x1000
	r.code = append(r.code, nm)
	return nm
}

func (nm *CompiledMethod) Entry() uintptr { return nm.entry }
func (nm *CompiledMethod) Owner() *Method { return nm.method }
func (nm *CompiledMethod) ScopesReads() int { return nm.scopesReads }
func (nm *CompiledMethod) ResetScopesReads() { nm.scopesReads = 0 }
func (nm *CompiledMethod) Contains(pc uintptr) bool {
	return pc >= nm.entry && pc < nm.entry+0x1000
}

func (nm *CompiledMethod) nextPC() uintptr {
	nm.size += pcStride
	return nm.entry + nm.size
}

// AddPC records a safepoint pc whose inlining chain is scopes, innermost
// first. The last scope must be the compiled method itself.
func (nm *CompiledMethod) AddPC(scopes ...ScopeDesc) (uintptr, error) {
	if len(scopes) == 0 {
		return 0, fmt.Errorf("%v: pc without scopes", nm.method)
	}
	if outer := scopes[len(scopes)-1].Method; outer != nm.method {
		return 0, fmt.Errorf("%v: outermost scope is %v", nm.method, outer)
	}

	chain := make([]debuginfo.Scope, len(scopes))
	for i, sc := range scopes {
		if sc.Method == nil {
			return 0, fmt.Errorf("%v: scope %d has no method", nm.method, i)
		}
		chain[i] = debuginfo.Scope{MethodIndex: nm.metadataIndex(sc.Method), BCI: sc.BCI}
	}

	offset, err := nm.rec.DescribeScopes(chain)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", nm.method, err)
	}

	pc := nm.nextPC()
	nm.pcs = append(nm.pcs, pcDesc{pc: pc, offset: offset})
	return pc, nil
}

// AddRawPC records a pc whose descriptor points at offset, valid or not.
func (nm *CompiledMethod) AddRawPC(offset int) uintptr {
	pc := nm.nextPC()
	nm.pcs = append(nm.pcs, pcDesc{pc: pc, offset: offset})
	return pc
}

// UnrecordedPC returns a pc inside the method that has no descriptor, as seen
// when a running thread is interrupted between safepoints.
func (nm *CompiledMethod) UnrecordedPC() uintptr {
	return nm.nextPC()
}

func (nm *CompiledMethod) metadataIndex(m *Method) int {
	for i, md := range nm.metadata {
		if md == m {
			return i
		}
	}
	nm.metadata = append(nm.metadata, m)
	return len(nm.metadata) - 1
}

// Method implements vframe.CompiledMethod.
func (nm *CompiledMethod) Method() vframe.Method {
	return nm.method
}

// IsNativeMethod implements vframe.CompiledMethod.
func (nm *CompiledMethod) IsNativeMethod() bool {
	return nm.native
}

// PcDescAt implements vframe.CompiledMethod. Only exact pcs match.
func (nm *CompiledMethod) PcDescAt(pc uintptr) (int, bool) {
	i := sort.Search(len(nm.pcs), func(i int) bool { return nm.pcs[i].pc >= pc })
	if i < len(nm.pcs) && nm.pcs[i].pc == pc {
		return nm.pcs[i].offset, true
	}
	return debuginfo.SerializedNull, false
}

// ScopesDataSize implements vframe.CompiledMethod.
func (nm *CompiledMethod) ScopesDataSize() int {
	return nm.rec.Size()
}

// ScopesData implements vframe.CompiledMethod. Every call is counted.
func (nm *CompiledMethod) ScopesData() []byte {
	nm.scopesReads++
	return nm.rec.Data()
}

// MetadataAt implements vframe.CompiledMethod.
func (nm *CompiledMethod) MetadataAt(index int) (vframe.Method, bool) {
	if index < 0 || index >= len(nm.metadata) {
		return nil, false
	}
	return nm.metadata[index], true
}

// ScopesAt decodes the inlining chain recorded for pc, innermost first. It
// does not count as a debug table read.
func (nm *CompiledMethod) ScopesAt(pc uintptr) ([]ScopeDesc, error) {
	offset, ok := nm.PcDescAt(pc)
	if !ok {
		return nil, fmt.Errorf("%v: no descriptor at %#x", nm.method, pc)
	}
	chain, err := debuginfo.Scopes(nm.rec.Data(), offset)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", nm.method, err)
	}

	out := make([]ScopeDesc, len(chain))
	for i, sc := range chain {
		if sc.MethodIndex >= len(nm.metadata) {
			return nil, fmt.Errorf("%v: method index %d: %w", nm.method, sc.MethodIndex, debuginfo.ErrOutOfBounds)
		}
		out[i] = ScopeDesc{Method: nm.metadata[sc.MethodIndex], BCI: sc.BCI}
	}
	return out, nil
}
