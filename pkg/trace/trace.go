// Package trace turns a vframe.Stream into stack traces, asynchronous call
// traces and folded profiles.
package trace

import (
	"fmt"
	"strings"

	"vwalk/pkg/color"
	"vwalk/pkg/vframe"
)

// Line numbers reported for frames without usable line information.
const (
	NoLineNumber     = -1
	NativeLineNumber = -2
)

// MethodInfo is the symbolic view of a method. Methods that do not implement
// it are printed with their fmt representation.
type MethodInfo interface {
	vframe.Method
	ID() uint64
	Holder() string
	Name() string
	SourceFile() string
	IsNative() bool
	LineNumber(bci int) int
}

// Element is one line of a stack trace.
type Element struct {
	Holder string
	Name   string
	File   string
	Line   int
	BCI    int

	Mode     vframe.Mode
	VFrameID int
	FrameID  uintptr
	Native   bool
}

// NewElement symbolizes method at bci.
func NewElement(method vframe.Method, bci int) Element {
	e := Element{BCI: bci, Line: NoLineNumber}
	mi, ok := method.(MethodInfo)
	if !ok {
		if method != nil {
			e.Name = fmt.Sprint(method)
		}
		return e
	}

	e.Holder = mi.Holder()
	e.Name = mi.Name()
	e.File = mi.SourceFile()
	e.Native = mi.IsNative()
	if e.Native {
		e.Line = NativeLineNumber
	} else {
		e.Line = mi.LineNumber(bci)
	}
	return e
}

// Symbol returns holder.name, or name alone when the holder is unknown.
func (e Element) Symbol() string {
	if e.Holder == "" {
		return e.Name
	}
	return e.Holder + "." + e.Name
}

// Location is the parenthesized source position of the element.
func (e Element) Location() string {
	switch {
	case e.Native || e.Line == NativeLineNumber:
		return "Native Method"
	case e.File == "":
		return "Unknown Source"
	case e.Line < 0:
		return e.File
	default:
		return fmt.Sprintf("%s:%d", e.File, e.Line)
	}
}

func (e Element) String() string {
	return e.Symbol() + "(" + e.Location() + ")"
}

// Collect drains s into stack trace elements, innermost first. A max of zero
// or less collects every remaining frame.
func Collect(s *vframe.Stream, max int) []Element {
	var out []Element
	for f := range s.All() {
		if max > 0 && len(out) >= max {
			break
		}
		e := NewElement(f.Method, f.BCI)
		e.Mode = f.Mode
		e.VFrameID = f.VFrameID
		e.FrameID = f.FrameID
		out = append(out, e)
	}
	return out
}

// Format renders elements one per line in the "\tat holder.name(file:line)"
// layout.
func Format(elems []Element) string {
	var sb strings.Builder
	for _, e := range elems {
		sb.WriteString("\tat ")
		sb.WriteString(e.Symbol())
		sb.WriteString("(")
		sb.WriteString(color.Location(e.Location()))
		sb.WriteString(")")
		if e.Mode == vframe.ModeCompiled && e.VFrameID > 0 {
			sb.WriteString(color.GrayText(" [inlined caller]"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
