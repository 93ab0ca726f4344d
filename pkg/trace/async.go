package trace

import (
	"fmt"

	"github.com/charmbracelet/log"

	"vwalk/pkg/vframe"
)

// NativeBCI is the bci reported for frames of native methods.
const NativeBCI = -3

// Status codes returned by AsyncCallTrace in place of a frame count.
const (
	TicksNoManagedFrame        = 0
	TicksNotWalkableNotManaged = -4
	TicksNotWalkableManaged    = -6
	TicksUnknownState          = -7
	TicksThreadExit            = -8
)

// CallFrame is one frame of an asynchronous call trace.
type CallFrame struct {
	MethodID uint64
	BCI      int
}

// AsyncCallTrace samples thread, which may still be running, and returns at
// most depth call frames. The second result is the number of frames or one of
// the Ticks status codes.
func AsyncCallTrace(thread vframe.Thread, depth int) ([]CallFrame, int) {
	if thread == nil {
		return nil, TicksThreadExit
	}

	switch state := thread.State(); state {
	case vframe.StateExited:
		return nil, TicksThreadExit
	case vframe.StateUninitialized, vframe.StateNew:
		return nil, TicksUnknownState
	case vframe.StateInManaged:
		if !thread.HasLastFrame() {
			return nil, TicksNotWalkableManaged
		}
	case vframe.StateInNative, vframe.StateInVM, vframe.StateBlocked:
		if !thread.HasLastFrame() {
			return nil, TicksNoManagedFrame
		}
	default:
		log.Debug("sampled thread in unexpected state", "state", state)
		return nil, TicksUnknownState
	}

	s := vframe.New(thread,
		vframe.WithProcessFrames(false),
		vframe.WithUpdateMap(false),
	)

	var frames []CallFrame
	for ; !s.AtEnd() && len(frames) < depth; s.Next() {
		frames = append(frames, callFrame(s.Method(), s.BCI()))
	}
	if len(frames) == 0 {
		return nil, TicksNoManagedFrame
	}
	return frames, len(frames)
}

func callFrame(method vframe.Method, bci int) CallFrame {
	mi, ok := method.(MethodInfo)
	if !ok {
		return CallFrame{BCI: bci}
	}
	if mi.IsNative() {
		bci = NativeBCI
	}
	return CallFrame{MethodID: mi.ID(), BCI: bci}
}

// StatusText names an AsyncCallTrace status. Positive statuses are frame
// counts.
func StatusText(status int) string {
	switch status {
	case TicksNoManagedFrame:
		return "no_managed_frame"
	case TicksNotWalkableNotManaged:
		return "not_walkable_not_managed"
	case TicksNotWalkableManaged:
		return "not_walkable_managed"
	case TicksUnknownState:
		return "unknown_state"
	case TicksThreadExit:
		return "thread_exit"
	}
	if status > 0 {
		return fmt.Sprintf("%d frames", status)
	}
	return fmt.Sprintf("status %d", status)
}
