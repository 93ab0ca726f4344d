package debuginfo

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReadStream is a bounds-checked sequential reader over a scopes table. It is
// a value type so decoding does not allocate.
type ReadStream struct {
	data []byte
	pos  int
}

// NewReadStream positions a reader at offset. The offset is checked lazily on
// the first read.
func NewReadStream(data []byte, offset int) ReadStream {
	return ReadStream{data: data, pos: offset}
}

// Position returns the offset of the next read.
func (r *ReadStream) Position() int {
	return r.pos
}

// ReadInt reads one unsigned varint. It never reads past the end of the table.
func (r *ReadStream) ReadInt() (int, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return 0, fmt.Errorf("read at %d of %d: %w", r.pos, len(r.data), ErrOutOfBounds)
	}

	v, n := binary.Uvarint(r.data[r.pos:])
	if n == 0 {
		return 0, fmt.Errorf("read at %d: %w", r.pos, ErrTruncated)
	}
	if n < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("read at %d: %w", r.pos, ErrOverflow)
	}

	r.pos += n
	return int(v), nil
}

// ReadMethodIndex reads a metadata table index.
func (r *ReadStream) ReadMethodIndex() (int, error) {
	return r.ReadInt()
}

// ReadBCI reads a bytecode index, undoing the invocation-entry bias.
func (r *ReadStream) ReadBCI() (int, error) {
	v, err := r.ReadInt()
	if err != nil {
		return 0, err
	}

	return v + InvocationEntryBCI, nil
}

// ReadScope reads a full record: sender offset, method index, bci.
func (r *ReadStream) ReadScope() (Scope, error) {
	sc := Scope{Offset: r.pos}

	var err error
	if sc.SenderOffset, err = r.ReadInt(); err != nil {
		return sc, err
	}
	if sc.MethodIndex, err = r.ReadMethodIndex(); err != nil {
		return sc, err
	}
	if sc.BCI, err = r.ReadBCI(); err != nil {
		return sc, err
	}

	return sc, nil
}
