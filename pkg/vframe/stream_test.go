package vframe_test

import (
	"slices"
	"testing"

	"vwalk/pkg/simrt"
	"vwalk/pkg/vframe"
)

type want struct {
	mode vframe.Mode
	m    *simrt.Method
	bci  int
}

func walk(s *vframe.Stream) []vframe.LogicalFrame {
	return slices.Collect(s.All())
}

// walkN collects at most n frames, so a walk that fails to advance ends the
// test instead of hanging it.
func walkN(s *vframe.Stream, n int) []vframe.LogicalFrame {
	var out []vframe.LogicalFrame
	for ; !s.AtEnd() && len(out) < n; s.Next() {
		out = append(out, s.Frame())
	}
	return out
}

func check(t *testing.T, got []vframe.LogicalFrame, wants ...want) {
	t.Helper()
	if len(got) != len(wants) {
		t.Fatalf("got %d logical frames %v, want %d", len(got), got, len(wants))
	}
	for i, w := range wants {
		g := got[i]
		if g.Mode != w.mode || g.Method != w.m || g.BCI != w.bci {
			t.Errorf("frame %d = %v, want %v %v bci=%d", i, g, w.mode, w.m, w.bci)
		}
	}
}

func checkSenders(t *testing.T, frames []*simrt.Frame) {
	t.Helper()
	for _, f := range frames {
		if f.Senders() > 1 {
			t.Errorf("%v: Sender called %d times", f, f.Senders())
		}
	}
}

type fixture struct {
	rt    *simrt.Runtime
	th    *simrt.Thread
	a, b  *simrt.Method
	inner *simrt.Method
	outer *simrt.Method
	nat   *simrt.Method
}

func newFixture() *fixture {
	rt := simrt.New()
	return &fixture{
		rt:    rt,
		th:    rt.NewThread("main"),
		a:     rt.NewMethod("app.A", "a", "A.java", 32),
		b:     rt.NewMethod("app.B", "b", "B.java", 32),
		inner: rt.NewMethod("app.C", "inner", "C.java", 32),
		outer: rt.NewMethod("app.C", "outer", "C.java", 32),
		nat:   rt.NewNativeMethod("java.lang.Thread", "sleep0"),
	}
}

func TestAtEndIsIdempotent(t *testing.T) {
	fx := newFixture()

	s := vframe.New(fx.th)
	if !s.AtEnd() {
		t.Fatal("stream over an empty stack is not at end")
	}
	for range 3 {
		s.Next()
		if !s.AtEnd() || s.Mode() != vframe.ModeAtEnd {
			t.Fatalf("Next at end moved to %v", s.Mode())
		}
	}

	fx.th.Push(simrt.Interpreted(fx.a, 1))
	fx.th.SetWalkable(false)
	if s := vframe.New(fx.th); !s.AtEnd() {
		t.Error("stream over a non-walkable thread is not at end")
	}
}

func TestInlinedAndNativeFrames(t *testing.T) {
	fx := newFixture()

	nmC := fx.rt.Compile(fx.outer)
	pc, err := nmC.AddPC(
		simrt.ScopeDesc{Method: fx.inner, BCI: 4},
		simrt.ScopeDesc{Method: fx.outer, BCI: 9},
	)
	if err != nil {
		t.Fatalf("AddPC: %v", err)
	}
	nmN := fx.rt.Compile(fx.nat)

	frames := fx.th.Push(
		simrt.Compiled(nmN, nmN.UnrecordedPC()),
		simrt.Compiled(nmC, pc),
		simrt.Interpreted(fx.a, 5),
	)

	s := vframe.New(fx.th)
	if !s.IsInterpretedFrame() {
		t.Error("top frame is not interpreted")
	}

	var ids []int
	var got []vframe.LogicalFrame
	for ; !s.AtEnd(); s.Next() {
		got = append(got, s.Frame())
		if s.Mode() == vframe.ModeCompiled {
			ids = append(ids, s.VFrameID())
		}
	}
	check(t, got,
		want{vframe.ModeInterpreted, fx.a, 5},
		want{vframe.ModeCompiled, fx.inner, 4},
		want{vframe.ModeCompiled, fx.outer, 9},
		want{vframe.ModeCompiled, fx.nat, 0},
	)
	if !slices.Equal(ids, []int{0, 1, 0}) {
		t.Errorf("vframe ids = %v, want [0 1 0]", ids)
	}
	if got[1].FrameID != got[2].FrameID {
		t.Errorf("inlined levels of one frame have ids %#x and %#x", got[1].FrameID, got[2].FrameID)
	}
	if got[3].DecodeOffset != 0 {
		t.Errorf("native frame decode offset = %d, want 0", got[3].DecodeOffset)
	}
	checkSenders(t, frames)
}

func TestDegradedCompiledDecode(t *testing.T) {
	tests := []struct {
		name   string
		offset func(nm *simrt.CompiledMethod) int
	}{
		{"null offset", func(*simrt.CompiledMethod) int { return 0 }},
		{"past the table", func(nm *simrt.CompiledMethod) int { return nm.ScopesDataSize() + 100 }},
		{"negative", func(*simrt.CompiledMethod) int { return -8 }},
		{"table end", func(nm *simrt.CompiledMethod) int { return nm.ScopesDataSize() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			nm := fx.rt.Compile(fx.outer)
			if _, err := nm.AddPC(simrt.ScopeDesc{Method: fx.inner, BCI: 1}, simrt.ScopeDesc{Method: fx.outer, BCI: 2}); err != nil {
				t.Fatalf("AddPC: %v", err)
			}
			pc := nm.AddRawPC(tt.offset(nm))
			fx.th.Push(simrt.Interpreted(fx.b, 3), simrt.Compiled(nm, pc))

			s := vframe.New(fx.th)
			if s.Mode() != vframe.ModeCompiled || s.Method() != fx.outer || s.BCI() != 0 {
				t.Errorf("got %v, want compiled %v bci=0", s.Frame(), fx.outer)
			}
			if s.DecodeOffset() != 0 {
				t.Errorf("decode offset = %d, want 0", s.DecodeOffset())
			}
			if n := nm.ScopesReads(); n != 0 {
				t.Errorf("debug table read %d times", n)
			}

			// no inlined sender, the walk moves on to the caller
			s.Next()
			if s.Mode() != vframe.ModeInterpreted || s.Method() != fx.b {
				t.Errorf("caller = %v, want interpreted %v", s.Frame(), fx.b)
			}
		})
	}
}

func TestTruncatedScopeRecord(t *testing.T) {
	fx := newFixture()
	nm := fx.rt.Compile(fx.outer)
	if _, err := nm.AddPC(simrt.ScopeDesc{Method: fx.outer, BCI: 2}); err != nil {
		t.Fatalf("AddPC: %v", err)
	}
	// starts on the last byte of the only record and runs off the table
	pc := nm.AddRawPC(nm.ScopesDataSize() - 1)
	fx.th.Push(simrt.Compiled(nm, pc))

	s := vframe.New(fx.th)
	if s.Method() != fx.outer || s.BCI() != 0 {
		t.Errorf("got %v, want %v bci=0", s.Frame(), fx.outer)
	}
	s.Next()
	if !s.AtEnd() {
		t.Errorf("walk continued to %v", s.Frame())
	}
}

func TestInvalidBCP(t *testing.T) {
	fx := newFixture()
	frames := fx.th.Push(
		simrt.Interpreted(fx.b, 7),
		simrt.InterpretedRaw(fx.a, 0xdead),
	)

	check(t, walk(vframe.New(fx.th)),
		want{vframe.ModeInterpreted, fx.a, 0},
		want{vframe.ModeInterpreted, fx.b, 7},
	)
	checkSenders(t, frames)
}

func TestInterpretedFrameWithoutMethod(t *testing.T) {
	fx := newFixture()
	fx.th.Push(simrt.InterpretedRaw(nil, 0x1234))

	s := vframe.New(fx.th)
	if s.Mode() != vframe.ModeInterpreted || s.BCI() != 0 || s.Method() != nil {
		t.Errorf("got %v, want interpreted <nil> bci=0", s.Frame())
	}
}

func TestStubFramesAreSkipped(t *testing.T) {
	fx := newFixture()
	frames := fx.th.Push(
		simrt.Interpreted(fx.b, 2),
		simrt.Stub(),
		simrt.Stub(),
		simrt.Interpreted(fx.a, 1),
	)

	check(t, walk(vframe.New(fx.th)),
		want{vframe.ModeInterpreted, fx.a, 1},
		want{vframe.ModeInterpreted, fx.b, 2},
	)
	checkSenders(t, frames)
}

func TestStopAtCallStub(t *testing.T) {
	fx := newFixture()
	fx.th.Push(
		simrt.Interpreted(fx.b, 2),
		simrt.CallStub(),
		simrt.Interpreted(fx.a, 1),
	)

	check(t, walk(vframe.New(fx.th, vframe.WithStopAtCallStub(true))),
		want{vframe.ModeInterpreted, fx.a, 1},
	)
	check(t, walk(vframe.New(fx.th)),
		want{vframe.ModeInterpreted, fx.a, 1},
		want{vframe.ModeInterpreted, fx.b, 2},
	)
}

func TestStopAtCallStubOnTop(t *testing.T) {
	fx := newFixture()
	fx.th.Push(simrt.Interpreted(fx.b, 2), simrt.CallStub())

	if s := vframe.New(fx.th, vframe.WithStopAtCallStub(true)); !s.AtEnd() {
		t.Errorf("walk starting at a call stub yielded %v", s.Frame())
	}
}

func TestMissingPcDescInManagedCode(t *testing.T) {
	fx := newFixture()
	nm := fx.rt.Compile(fx.outer)
	pc := nm.UnrecordedPC()
	fx.th.Push(simrt.Interpreted(fx.b, 2), simrt.Compiled(nm, pc))

	s := vframe.New(fx.th)
	check(t, walk(s),
		want{vframe.ModeCompiled, fx.outer, 0},
	)
	if !s.AtEnd() {
		t.Error("stream not at end")
	}

	// a thread stopped in the VM should have had a descriptor; the frame
	// degrades but the walk goes on
	fx.th.SetState(vframe.StateInVM)
	check(t, walk(vframe.New(fx.th)),
		want{vframe.ModeCompiled, fx.outer, 0},
		want{vframe.ModeInterpreted, fx.b, 2},
	)
}

func TestVirtualThreadBoundary(t *testing.T) {
	fx := newFixture()
	carrier := fx.rt.NewMethod("jdk.Carrier", "run", "Carrier.java", 16)
	fx.th.Push(simrt.Interpreted(carrier, 3))
	vt := fx.rt.NewVirtualThread("vt-1")
	if _, err := fx.th.Mount(vt); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	fx.th.Push(simrt.Interpreted(fx.b, 4), simrt.Interpreted(fx.a, 5))

	s := vframe.New(fx.th)
	if s.Continuation() != vt {
		t.Errorf("continuation = %v, want %v", s.Continuation(), vt)
	}
	check(t, walk(s),
		want{vframe.ModeInterpreted, fx.a, 5},
		want{vframe.ModeInterpreted, fx.b, 4},
	)

	check(t, walk(vframe.New(fx.th, vframe.WithCarrier(true))),
		want{vframe.ModeInterpreted, carrier, 3},
	)
}

func TestScopeFilter(t *testing.T) {
	fx := newFixture()
	scope := vframe.NewScope("generators")
	gen := fx.rt.NewContinuation("gen", scope)

	fx.th.Push(simrt.Interpreted(fx.b, 1))
	if _, err := fx.th.EnterContinuation(gen); err != nil {
		t.Fatalf("EnterContinuation: %v", err)
	}
	fx.th.Push(simrt.Interpreted(fx.a, 2))

	s := vframe.New(fx.th, vframe.WithScope(scope))
	if s.Continuation() != gen {
		t.Errorf("continuation = %v, want %v", s.Continuation(), gen)
	}
	check(t, walk(s),
		want{vframe.ModeInterpreted, fx.a, 2},
	)

	// without the filter the walk crosses into the parent
	s = vframe.New(fx.th)
	s.Next()
	if s.Method() != fx.b {
		t.Fatalf("second frame = %v, want %v", s.Frame(), fx.b)
	}
	if c := s.Continuation(); c != nil {
		t.Errorf("continuation of the parent frame = %v, want nil", c)
	}
	s.Next()
	if !s.AtEnd() {
		t.Errorf("walk continued to %v", s.Frame())
	}
}

func TestFrozenVirtualThread(t *testing.T) {
	fx := newFixture()
	vt := fx.rt.NewVirtualThread("vt-1")
	if _, err := fx.th.Mount(vt); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	fx.th.Push(simrt.Interpreted(fx.b, 4), simrt.Interpreted(fx.a, 5))
	// caught mid-yield: the frames are in the heap, the entry frame is on top
	if _, err := fx.th.Freeze(vt); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	got := walk(vframe.New(fx.th))
	check(t, got,
		want{vframe.ModeInterpreted, fx.a, 5},
		want{vframe.ModeInterpreted, fx.b, 4},
	)
	if got[0].FrameID == got[1].FrameID {
		t.Errorf("heap frames share id %#x", got[0].FrameID)
	}
}

func TestPartiallyThawedVirtualThread(t *testing.T) {
	fx := newFixture()
	vt := fx.rt.NewVirtualThread("vt-1")
	chunk := vt.Freeze(simrt.Interpreted(fx.b, 4))
	if _, err := fx.th.Mount(vt); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	frames := fx.th.Push(simrt.Interpreted(fx.a, 5))

	check(t, walk(vframe.New(fx.th)),
		want{vframe.ModeInterpreted, fx.a, 5},
		want{vframe.ModeInterpreted, fx.b, 4},
	)
	checkSenders(t, frames)
	checkSenders(t, chunk.Frames())

	// the chunk is not visited without continuation walking
	check(t, walk(vframe.New(fx.th, vframe.WithWalkContinuation(false))),
		want{vframe.ModeInterpreted, fx.a, 5},
	)
}

func TestHeapFrameIDs(t *testing.T) {
	fx := newFixture()
	gen := fx.rt.NewContinuation("gen", vframe.NewScope("gen"))
	older := gen.Freeze(simrt.Interpreted(fx.b, 1))
	newer := gen.Freeze(simrt.Interpreted(fx.a, 2), simrt.Interpreted(fx.a, 3))

	s := vframe.NewForContinuation(fx.th, gen)
	var ids []uintptr
	for ; !s.AtEnd(); s.Next() {
		id := s.FrameID()
		if again := s.FrameID(); again != id {
			t.Errorf("FrameID changed from %#x to %#x", id, again)
		}
		ids = append(ids, id)

		newer.Relocate()
		older.Relocate()
		if moved := s.FrameID(); moved != id {
			t.Errorf("FrameID changed from %#x to %#x after relocation", id, moved)
		}
	}

	if len(ids) != 3 {
		t.Fatalf("walked %d frames, want 3", len(ids))
	}
	top := uintptr(newer.Frames()[0].OffsetUnextendedSP())
	second := uintptr(newer.Frames()[1].OffsetUnextendedSP())
	bottom := uintptr(older.Frames()[0].OffsetUnextendedSP())
	wantIDs := []uintptr{top, second, 1<<16 + bottom}
	if !slices.Equal(ids, wantIDs) {
		t.Errorf("frame ids = %#x, want %#x", ids, wantIDs)
	}
	if ids[0] == ids[1] || ids[0] == ids[2] {
		t.Errorf("frame ids collide: %#x", ids)
	}
}

func TestNewForContinuation(t *testing.T) {
	fx := newFixture()
	gen := fx.rt.NewContinuation("gen", vframe.NewScope("gen"))
	nm := fx.rt.Compile(fx.outer)
	pc, err := nm.AddPC(simrt.ScopeDesc{Method: fx.inner, BCI: 6}, simrt.ScopeDesc{Method: fx.outer, BCI: 8})
	if err != nil {
		t.Fatalf("AddPC: %v", err)
	}
	gen.Freeze(simrt.Interpreted(fx.b, 1), simrt.Compiled(nm, pc))

	s := vframe.NewForContinuation(fx.th, gen)
	if s.Continuation() != gen {
		t.Errorf("continuation = %v, want %v", s.Continuation(), gen)
	}
	check(t, walk(s),
		want{vframe.ModeCompiled, fx.inner, 6},
		want{vframe.ModeCompiled, fx.outer, 8},
		want{vframe.ModeInterpreted, fx.b, 1},
	)

	if s := vframe.NewForContinuation(fx.th, fx.rt.NewContinuation("empty", nil)); !s.AtEnd() {
		t.Error("empty continuation yielded a frame")
	}
}

func TestAllStopsEarly(t *testing.T) {
	fx := newFixture()
	fx.th.Push(simrt.Interpreted(fx.b, 1), simrt.Interpreted(fx.a, 2))

	s := vframe.New(fx.th)
	for f := range s.All() {
		if f.Method != fx.a {
			t.Errorf("first frame = %v", f)
		}
		break
	}
	if s.Method() != fx.a {
		t.Errorf("stream advanced past the frame the loop stopped at")
	}
}

func TestSenderOffsetMustPrecedeRecord(t *testing.T) {
	fx := newFixture()
	nm := fx.rt.Compile(fx.outer)
	for _, bci := range []int{2, 5} {
		if _, err := nm.AddPC(simrt.ScopeDesc{Method: fx.outer, BCI: bci}); err != nil {
			t.Fatalf("AddPC: %v", err)
		}
	}
	// table is [0 | 0 0 3 | 0 0 6]; a record read from offset 3 names
	// itself as its sender
	pc := nm.AddRawPC(3)
	frames := fx.th.Push(simrt.Interpreted(fx.b, 4), simrt.Compiled(nm, pc))

	check(t, walkN(vframe.New(fx.th), 8),
		want{vframe.ModeCompiled, fx.outer, 0},
		want{vframe.ModeInterpreted, fx.b, 4},
	)
	checkSenders(t, frames)
}

func TestCarrierWithNestedContinuations(t *testing.T) {
	fx := newFixture()
	run := fx.rt.NewMethod("jdk.Carrier", "run", "Carrier.java", 16)
	inner := fx.rt.NewMethod("app.Gen", "next", "Gen.java", 16)
	carrierScope := vframe.NewScope("carrier-scope")
	x := fx.rt.NewContinuation("x", carrierScope)
	gen := fx.rt.NewContinuation("gen", vframe.NewScope("gen"))
	vt := fx.rt.NewVirtualThread("vt-1")

	fx.th.Push(simrt.Interpreted(run, 1))
	if _, err := fx.th.EnterContinuation(x); err != nil {
		t.Fatalf("EnterContinuation(x): %v", err)
	}
	fx.th.Push(simrt.Interpreted(fx.b, 2))
	if _, err := fx.th.Mount(vt); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	fx.th.Push(simrt.Interpreted(fx.a, 3))
	if _, err := fx.th.EnterContinuation(gen); err != nil {
		t.Fatalf("EnterContinuation(gen): %v", err)
	}
	fx.th.Push(simrt.Interpreted(inner, 4))

	s := vframe.New(fx.th, vframe.WithCarrier(true), vframe.WithScope(carrierScope))
	if s.Continuation() != x {
		t.Errorf("continuation = %v, want %v", s.Continuation(), x)
	}
	check(t, walk(s),
		want{vframe.ModeInterpreted, fx.b, 2},
	)

	check(t, walk(vframe.New(fx.th, vframe.WithCarrier(true))),
		want{vframe.ModeInterpreted, fx.b, 2},
		want{vframe.ModeInterpreted, run, 1},
	)

	// the virtual thread side still crosses its own continuation
	check(t, walk(vframe.New(fx.th)),
		want{vframe.ModeInterpreted, inner, 4},
		want{vframe.ModeInterpreted, fx.a, 3},
	)
}

func TestNilThread(t *testing.T) {
	s := vframe.New(nil)
	if !s.AtEnd() || s.FrameID() != 0 || s.Continuation() != nil {
		t.Errorf("stream over a nil thread = %v", s.Frame())
	}
	s.Next()
	if !s.AtEnd() {
		t.Error("Next moved a stream over a nil thread")
	}

	fx := newFixture()
	gen := fx.rt.NewContinuation("gen", vframe.NewScope("gen"))
	gen.Freeze(simrt.Interpreted(fx.a, 1))
	if s := vframe.NewForContinuation(nil, gen); !s.AtEnd() {
		t.Errorf("continuation walk without a thread yielded %v", s.Frame())
	}
}
