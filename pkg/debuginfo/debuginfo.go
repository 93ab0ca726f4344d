// Package debuginfo encodes and decodes the per-pc scope records that compiled
// methods carry for the stack walker.
//
// A record is three unsigned varints in fixed order: the offset of the
// caller's record (SerializedNull when the scope is the physical method), the
// index of the scope's method in the compiled method's metadata table, and the
// bytecode index biased by -InvocationEntryBCI.
package debuginfo

import "errors"

// SerializedNull is the offset that never names a record. The recorder reserves
// byte 0 so no record can start there.
const SerializedNull = 0

// InvocationEntryBCI is the bci of a scope that has not started executing
// bytecode yet.
const InvocationEntryBCI = -1

// maxChain bounds Scopes against cyclic sender offsets.
const maxChain = 1 << 10

var (
	ErrOutOfBounds = errors.New("debuginfo: offset out of bounds")
	ErrTruncated   = errors.New("debuginfo: truncated record")
	ErrOverflow    = errors.New("debuginfo: value overflows int32")
	ErrChain       = errors.New("debuginfo: sender chain does not terminate")
)

// Scope is one decoded (or to-be-recorded) inlining level.
type Scope struct {
	Offset       int // offset of this record; filled in by decoding
	SenderOffset int
	MethodIndex  int
	BCI          int
}

// Valid reports whether offset may name a record in a table of size bytes.
func Valid(offset, size int) bool {
	return offset > SerializedNull && offset < size
}

// Scopes decodes the chain starting at offset, innermost first.
func Scopes(data []byte, offset int) ([]Scope, error) {
	var out []Scope
	for offset != SerializedNull {
		if len(out) >= maxChain {
			return out, ErrChain
		}

		rs := NewReadStream(data, offset)
		sc, err := rs.ReadScope()
		if err != nil {
			return out, err
		}
		out = append(out, sc)

		if sc.SenderOffset != SerializedNull && sc.SenderOffset >= offset {
			// senders are always recorded before the scopes that inline them
			return out, ErrChain
		}
		offset = sc.SenderOffset
	}

	return out, nil
}
