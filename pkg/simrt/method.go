package simrt

import "sort"

// LineEntry maps the bytecode starting at BCI to a source line.
type LineEntry struct {
	BCI  int
	Line int
}

// Line numbers reported for methods without usable line information.
const (
	NoLineNumber     = -1
	NativeLineNumber = -2
)

// Method is a managed method with bytecode laid out at a fixed address.
type Method struct {
	id     uint64
	holder string
	name   string
	file   string

	codeBase uintptr
	codeSize int
	lines    []LineEntry
	native   bool
}

// NewMethod registers a method with codeSize bytes of bytecode.
func (r *Runtime) NewMethod(holder, name, file string, codeSize int, lines ...LineEntry) *Method {
	m := &Method{
		id:       uint64(len(r.methods) + 1),
		holder:   holder,
		name:     name,
		file:     file,
		codeBase: r.nextMethodBase,
		codeSize: codeSize,
		lines:    append([]LineEntry(nil), lines...),
	}
	sort.Slice(m.lines, func(i, j int) bool { return m.lines[i].BCI < m.lines[j].BCI })

	r.nextMethodBase += align(uintptr(codeSize)) + 16
	r.methods = append(r.methods, m)
	return m
}

// NewNativeMethod registers a method implemented in native code.
func (r *Runtime) NewNativeMethod(holder, name string) *Method {
	m := r.NewMethod(holder, name, "", 0)
	m.native = true
	return m
}

func (m *Method) ID() uint64 { return m.id }
func (m *Method) Holder() string { return m.holder }
func (m *Method) Name() string { return m.name }
func (m *Method) SourceFile() string { return m.file }
func (m *Method) IsNative() bool { return m.native }
func (m *Method) CodeSize() int { return m.codeSize }

func (m *Method) String() string {
	if m == nil {
		return "<nil>"
	}
	return m.holder + "." + m.name
}

// BCP returns the bytecode pointer of bci.
func (m *Method) BCP(bci int) uintptr {
	return m.codeBase + uintptr(bci)
}

// ValidateBCIFromBCP implements vframe.Method.
func (m *Method) ValidateBCIFromBCP(bcp uintptr) int {
	if m.native && bcp == 0 {
		return 0
	}
	if bcp < m.codeBase || bcp >= m.codeBase+uintptr(m.codeSize) {
		return -1
	}
	return int(bcp - m.codeBase)
}

// IsMethod implements vframe.Method.
func (m *Method) IsMethod() bool {
	return m != nil && m.name != ""
}

// LineNumber returns the source line executing at bci.
func (m *Method) LineNumber(bci int) int {
	if m.native {
		return NativeLineNumber
	}

	l, r := 0, len(m.lines)-1
	best := -1
	for l <= r {
		mid := (l + r) / 2
		if m.lines[mid].BCI <= bci {
			best = mid
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	if best == -1 {
		return NoLineNumber
	}
	return m.lines[best].Line
}
