package snapshot

import (
	"fmt"

	"github.com/charmbracelet/log"

	"vwalk/pkg/simrt"
	"vwalk/pkg/vframe"
)

// Snapshot is a built runtime together with the names it was declared with.
type Snapshot struct {
	Runtime       *simrt.Runtime
	Threads       []*simrt.Thread
	Continuations map[string]*simrt.Continuation
	Scopes        map[string]*vframe.Scope
}

type builder struct {
	rt      *simrt.Runtime
	methods map[string]*simrt.Method
	code    map[string]*simrt.CompiledMethod
	pcs     map[string]map[string]uintptr
	snap    *Snapshot
}

func build(f *File) (*Snapshot, error) {
	rt := simrt.New()
	b := &builder{
		rt:      rt,
		methods: make(map[string]*simrt.Method),
		code:    make(map[string]*simrt.CompiledMethod),
		pcs:     make(map[string]map[string]uintptr),
		snap: &Snapshot{
			Runtime:       rt,
			Continuations: make(map[string]*simrt.Continuation),
			Scopes:        make(map[string]*vframe.Scope),
		},
	}

	for _, m := range f.Methods {
		b.addMethod(m)
	}
	for _, c := range f.Compiled {
		if err := b.addCompiled(c); err != nil {
			return nil, err
		}
	}
	for _, c := range f.Continuations {
		b.addContinuation(c)
	}
	for _, t := range f.Threads {
		if err := b.addThread(t); err != nil {
			return nil, err
		}
	}

	log.Debug("snapshot built",
		"methods", len(b.methods),
		"compiled", len(b.code),
		"continuations", len(b.snap.Continuations),
		"threads", len(b.snap.Threads))
	return b.snap, nil
}

func (b *builder) addMethod(spec MethodSpec) {
	if spec.Native {
		b.methods[spec.ref()] = b.rt.NewNativeMethod(spec.Holder, spec.Name)
		return
	}
	lines := make([]simrt.LineEntry, len(spec.Lines))
	for i, l := range spec.Lines {
		lines[i] = simrt.LineEntry{BCI: l[0], Line: l[1]}
	}
	b.methods[spec.ref()] = b.rt.NewMethod(spec.Holder, spec.Name, spec.File, spec.Size, lines...)
}

func (b *builder) addCompiled(spec CompiledSpec) error {
	nm := b.rt.Compile(b.methods[spec.Method])
	pcs := make(map[string]uintptr)

	for _, pc := range spec.PCs {
		if pc.Offset != nil {
			pcs[pc.Name] = nm.AddRawPC(*pc.Offset)
			continue
		}

		scopes := make([]simrt.ScopeDesc, len(pc.Scopes))
		for i, sc := range pc.Scopes {
			scopes[i] = simrt.ScopeDesc{Method: b.methods[sc.Method], BCI: sc.BCI}
		}
		addr, err := nm.AddPC(scopes...)
		if err != nil {
			return fmt.Errorf("%w: compiled code %q pc %q: %w", ErrInvalid, spec.Name, pc.Name, err)
		}
		pcs[pc.Name] = addr
	}
	pcs[PCUnrecorded] = nm.UnrecordedPC()

	b.code[spec.Name] = nm
	b.pcs[spec.Name] = pcs
	return nil
}

func (b *builder) scope(name string) *vframe.Scope {
	if name == "" {
		return nil
	}
	if s, ok := b.snap.Scopes[name]; ok {
		return s
	}
	s := vframe.NewScope(name)
	b.snap.Scopes[name] = s
	return s
}

func (b *builder) addContinuation(spec ContinuationSpec) {
	var c *simrt.Continuation
	if spec.Virtual {
		c = b.rt.NewVirtualThread(spec.Name)
		b.snap.Scopes[c.Scope().Name] = c.Scope()
	} else {
		c = b.rt.NewContinuation(spec.Name, b.scope(spec.Scope))
	}

	for _, chunk := range spec.Chunks {
		frames := make([]simrt.FrameSpec, len(chunk))
		for i, fr := range chunk {
			frames[i] = b.frame(fr)
		}
		c.Freeze(frames...)
	}
	b.snap.Continuations[spec.Name] = c
}

func (b *builder) frame(spec FrameSpec) simrt.FrameSpec {
	switch spec.Kind {
	case KindInterpreted:
		m := b.methods[spec.Method]
		if spec.BCP != nil {
			return simrt.InterpretedRaw(m, *spec.BCP)
		}
		return simrt.Interpreted(m, spec.BCI)
	case KindCompiled:
		return simrt.Compiled(b.code[spec.Code], b.pcs[spec.Code][spec.PC])
	case KindCallStub:
		return simrt.CallStub()
	default:
		return simrt.Stub()
	}
}

func (b *builder) addThread(spec ThreadSpec) error {
	state, _ := parseState(spec.State)
	t := b.rt.NewThread(spec.Name)

	for i, fr := range spec.Frames {
		var err error
		c := b.snap.Continuations[fr.Continuation]
		switch fr.Kind {
		case KindEnter:
			_, err = t.EnterContinuation(c)
		case KindMount:
			_, err = t.Mount(c)
		case KindFreeze:
			_, err = t.Freeze(c)
		case KindYield:
			_, err = t.Yield(c)
		default:
			t.Push(b.frame(fr))
		}
		if err != nil {
			return fmt.Errorf("%w: thread %q frame %d: %w", ErrInvalid, spec.Name, i, err)
		}
	}

	t.SetState(state)
	if spec.Walkable != nil {
		t.SetWalkable(*spec.Walkable)
	}
	b.snap.Threads = append(b.snap.Threads, t)
	return nil
}

var states = map[string]vframe.ThreadState{
	"":              vframe.StateInManaged,
	"new":           vframe.StateNew,
	"in_native":     vframe.StateInNative,
	"in_vm":         vframe.StateInVM,
	"in_managed":    vframe.StateInManaged,
	"blocked":       vframe.StateBlocked,
	"exited":        vframe.StateExited,
	"uninitialized": vframe.StateUninitialized,
}

func parseState(s string) (vframe.ThreadState, error) {
	state, ok := states[s]
	if !ok {
		return 0, invalid("unknown thread state %q", s)
	}
	return state, nil
}

// Thread finds a thread by name.
func (s *Snapshot) Thread(name string) (*simrt.Thread, error) {
	return s.Runtime.Thread(name)
}
