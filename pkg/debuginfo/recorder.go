package debuginfo

import (
	"encoding/binary"
	"fmt"
)

// Recorder builds a scopes table.
type Recorder struct {
	data []byte
}

// NewRecorder returns a recorder whose first byte is reserved for SerializedNull.
func NewRecorder() *Recorder {
	return &Recorder{data: []byte{0}}
}

// DescribeScope appends one record and returns its offset.
func (r *Recorder) DescribeScope(senderOffset, methodIndex, bci int) (int, error) {
	if senderOffset < 0 || senderOffset >= len(r.data) {
		return SerializedNull, fmt.Errorf("sender offset %d: %w", senderOffset, ErrOutOfBounds)
	}
	if methodIndex < 0 {
		return SerializedNull, fmt.Errorf("negative method index %d", methodIndex)
	}
	if bci < InvocationEntryBCI {
		return SerializedNull, fmt.Errorf("bci %d below invocation entry", bci)
	}

	offset := len(r.data)
	r.data = binary.AppendUvarint(r.data, uint64(senderOffset))
	r.data = binary.AppendUvarint(r.data, uint64(methodIndex))
	r.data = binary.AppendUvarint(r.data, uint64(bci-InvocationEntryBCI))

	return offset, nil
}

// DescribeScopes records an inlining chain given innermost first and returns
// the offset of the innermost record. The outermost scope is written first so
// that every inner record points back at its caller.
func (r *Recorder) DescribeScopes(scopes []Scope) (int, error) {
	if len(scopes) == 0 {
		return SerializedNull, fmt.Errorf("empty scope chain")
	}

	sender := SerializedNull
	for i := len(scopes) - 1; i >= 0; i-- {
		offset, err := r.DescribeScope(sender, scopes[i].MethodIndex, scopes[i].BCI)
		if err != nil {
			return SerializedNull, fmt.Errorf("scope %d: %w", i, err)
		}
		sender = offset
	}

	return sender, nil
}

// Data returns the table built so far.
func (r *Recorder) Data() []byte {
	return r.data
}

// Size returns the table size in bytes.
func (r *Recorder) Size() int {
	return len(r.data)
}
