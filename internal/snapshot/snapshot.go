// Package snapshot loads a JSON description of a runtime's methods, compiled
// code, continuations and thread stacks into a simrt.Runtime.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid snapshot")

// File is the on-disk snapshot.
type File struct {
	Methods       []MethodSpec       `json:"methods"`
	Compiled      []CompiledSpec     `json:"compiled,omitempty"`
	Continuations []ContinuationSpec `json:"continuations,omitempty"`
	Threads       []ThreadSpec       `json:"threads"`
}

// MethodSpec declares a method. Methods are referenced as "holder.name".
type MethodSpec struct {
	Holder string   `json:"holder"`
	Name   string   `json:"name"`
	File   string   `json:"file,omitempty"`
	Size   int      `json:"size,omitempty"`
	Native bool     `json:"native,omitempty"`
	Lines  [][2]int `json:"lines,omitempty"` // [bci, line] pairs
}

func (m MethodSpec) ref() string {
	return m.Holder + "." + m.Name
}

// CompiledSpec declares compiled code for a method.
type CompiledSpec struct {
	Name   string   `json:"name"`
	Method string   `json:"method"`
	PCs    []PCSpec `json:"pcs,omitempty"`
}

// PCSpec declares a pc of compiled code. Scopes are innermost first. A pc with
// an offset instead of scopes points its descriptor at that raw offset.
type PCSpec struct {
	Name   string      `json:"name"`
	Scopes []ScopeSpec `json:"scopes,omitempty"`
	Offset *int        `json:"offset,omitempty"`
}

type ScopeSpec struct {
	Method string `json:"method"`
	BCI    int    `json:"bci"`
}

// ContinuationSpec declares a continuation and its frozen chunks, oldest
// chunk first. Virtual threads ignore Scope.
type ContinuationSpec struct {
	Name    string        `json:"name"`
	Scope   string        `json:"scope,omitempty"`
	Virtual bool          `json:"virtual,omitempty"`
	Chunks  [][]FrameSpec `json:"chunks,omitempty"`
}

// ThreadSpec declares a thread. Frames are applied outermost first.
type ThreadSpec struct {
	Name     string      `json:"name"`
	State    string      `json:"state,omitempty"`
	Walkable *bool       `json:"walkable,omitempty"`
	Frames   []FrameSpec `json:"frames"`
}

// Frame kinds.
const (
	KindInterpreted = "interpreted"
	KindCompiled    = "compiled"
	KindStub        = "stub"
	KindCallStub    = "call_stub"
	KindEnter       = "enter"  // push the entry frame of Continuation
	KindMount       = "mount"  // mount the virtual thread Continuation
	KindFreeze      = "freeze" // freeze the frames above Continuation's entry
	KindYield       = "yield"  // freeze Continuation and pop its entry
)

// PCUnrecorded names a pc without a descriptor.
const PCUnrecorded = "unrecorded"

// FrameSpec is one step of building a stack.
type FrameSpec struct {
	Kind         string   `json:"kind"`
	Method       string   `json:"method,omitempty"`
	BCI          int      `json:"bci,omitempty"`
	BCP          *uintptr `json:"bcp,omitempty"`
	Code         string   `json:"code,omitempty"`
	PC           string   `json:"pc,omitempty"`
	Continuation string   `json:"continuation,omitempty"`
}

// Load reads, validates and builds the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Parse(data)
}

// Parse validates and builds a snapshot from its JSON encoding.
func Parse(data []byte) (*Snapshot, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	if err := validate(&f); err != nil {
		return nil, err
	}

	return build(&f)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// validate checks names and references. Errors that depend on building order,
// such as mounting a continuation twice, are reported by build.
func validate(f *File) error {
	if len(f.Threads) == 0 {
		return invalid("no threads")
	}

	methods := make(map[string]bool)
	for i, m := range f.Methods {
		if m.Holder == "" || m.Name == "" {
			return invalid("method %d: holder and name are required", i)
		}
		if methods[m.ref()] {
			return invalid("method %q declared twice", m.ref())
		}
		if m.Size < 0 {
			return invalid("method %q: negative size", m.ref())
		}
		methods[m.ref()] = true
	}

	code := make(map[string]map[string]bool)
	for _, c := range f.Compiled {
		if c.Name == "" {
			return invalid("compiled code without a name")
		}
		if code[c.Name] != nil {
			return invalid("compiled code %q declared twice", c.Name)
		}
		if !methods[c.Method] {
			return invalid("compiled code %q: unknown method %q", c.Name, c.Method)
		}
		pcs := map[string]bool{PCUnrecorded: true}
		for _, pc := range c.PCs {
			if pc.Name == "" || pcs[pc.Name] {
				return invalid("compiled code %q: missing or duplicate pc name %q", c.Name, pc.Name)
			}
			if (pc.Offset == nil) == (len(pc.Scopes) == 0) {
				return invalid("compiled code %q pc %q: exactly one of scopes and offset is required", c.Name, pc.Name)
			}
			for _, sc := range pc.Scopes {
				if !methods[sc.Method] {
					return invalid("compiled code %q pc %q: unknown method %q", c.Name, pc.Name, sc.Method)
				}
			}
			pcs[pc.Name] = true
		}
		code[c.Name] = pcs
	}

	conts := make(map[string]bool)
	for _, c := range f.Continuations {
		if c.Name == "" || conts[c.Name] {
			return invalid("missing or duplicate continuation name %q", c.Name)
		}
		conts[c.Name] = true
		for i, chunk := range c.Chunks {
			for _, fr := range chunk {
				if err := validateFrame(fr, methods, code, nil); err != nil {
					return fmt.Errorf("continuation %q chunk %d: %w", c.Name, i, err)
				}
			}
		}
	}

	threads := make(map[string]bool)
	for _, t := range f.Threads {
		if t.Name == "" || threads[t.Name] {
			return invalid("missing or duplicate thread name %q", t.Name)
		}
		threads[t.Name] = true
		if _, err := parseState(t.State); err != nil {
			return fmt.Errorf("thread %q: %w", t.Name, err)
		}
		for _, fr := range t.Frames {
			if err := validateFrame(fr, methods, code, conts); err != nil {
				return fmt.Errorf("thread %q: %w", t.Name, err)
			}
		}
	}

	return nil
}

// validateFrame checks one frame. conts is nil for chunk frames, which cannot
// manipulate continuations.
func validateFrame(fr FrameSpec, methods map[string]bool, code map[string]map[string]bool, conts map[string]bool) error {
	switch fr.Kind {
	case KindInterpreted:
		if !methods[fr.Method] {
			return invalid("interpreted frame: unknown method %q", fr.Method)
		}
	case KindCompiled:
		pcs := code[fr.Code]
		if pcs == nil {
			return invalid("compiled frame: unknown code %q", fr.Code)
		}
		if !pcs[fr.PC] {
			return invalid("compiled frame: code %q has no pc %q", fr.Code, fr.PC)
		}
	case KindStub, KindCallStub:
	case KindEnter, KindMount, KindFreeze, KindYield:
		if conts == nil {
			return invalid("%s frame inside a chunk", fr.Kind)
		}
		if !conts[fr.Continuation] {
			return invalid("%s frame: unknown continuation %q", fr.Kind, fr.Continuation)
		}
	default:
		return invalid("unknown frame kind %q", fr.Kind)
	}
	return nil
}
