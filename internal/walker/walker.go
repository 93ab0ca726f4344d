package walker

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"vwalk/internal/snapshot"
	"vwalk/pkg/color"
	"vwalk/pkg/simrt"
	"vwalk/pkg/trace"
	"vwalk/pkg/vframe"
)

const symbolCacheSize = 1024

type Walker struct {
	Help           bool      // Show help message
	Verbose        bool      // Enable verbose output
	NoColor        bool      // Disable colored output
	Carrier        bool      // Walk carrier frames of mounted virtual threads
	StopAtCallStub bool      // End each walk at the first native-to-managed call stub
	Async          bool      // Sample like an asynchronous profiler
	Folded         bool      // Print the samples as folded stacks
	Depth          int       // Maximum frames per thread, 0 for no limit
	Scope          string    // Stop at the entry of the innermost continuation of this scope
	Thread         string    // Only walk this thread
	SnapshotFile   string    // Path to the snapshot file
	Out            io.Writer // Defaults to stdout
}

// Walk loads the snapshot and prints the logical stack of every selected
// thread.
func (w *Walker) Walk() error {
	log.Info("Loading snapshot", "file", w.SnapshotFile)

	snap, err := snapshot.Load(w.SnapshotFile)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	threads := snap.Threads
	if w.Thread != "" {
		th, err := snap.Thread(w.Thread)
		if err != nil {
			return err
		}
		threads = []*simrt.Thread{th}
	}

	var scope *vframe.Scope
	if w.Scope != "" {
		var ok bool
		if scope, ok = snap.Scopes[w.Scope]; !ok {
			return fmt.Errorf("unknown scope %q", w.Scope)
		}
	}

	out := w.Out
	if out == nil {
		out = os.Stdout
	}

	profile := trace.NewProfile()
	if w.Async {
		err = w.sample(out, snap, threads, profile)
	} else {
		err = w.walk(out, threads, scope, profile)
	}
	if err != nil {
		return err
	}

	if w.Folded {
		fmt.Fprintln(out, color.BoldText("=== Folded stacks ==="))
		return profile.WriteFolded(out)
	}
	return nil
}

func (w *Walker) walk(out io.Writer, threads []*simrt.Thread, scope *vframe.Scope, profile *trace.Profile) error {
	for _, th := range threads {
		s := vframe.New(th,
			vframe.WithCarrier(w.Carrier),
			vframe.WithStopAtCallStub(w.StopAtCallStub),
			vframe.WithScope(scope),
		)
		elems := trace.Collect(s, w.Depth)
		profile.Add(elems)

		log.Debug("Walked thread", "thread", th.Name(), "frames", len(elems))
		if err := w.print(out, th.Name(), "state="+th.State().String(), elems); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) sample(out io.Writer, snap *snapshot.Snapshot, threads []*simrt.Thread, profile *trace.Profile) error {
	sym, err := trace.NewSymbolizer(func(id uint64) (trace.MethodInfo, bool) {
		m, ok := snap.Runtime.MethodByID(id)
		if !ok {
			return nil, false
		}
		return m, true
	}, symbolCacheSize)
	if err != nil {
		return err
	}

	depth := w.Depth
	if depth <= 0 {
		depth = 1 << 10
	}

	for _, th := range threads {
		frames, status := trace.AsyncCallTrace(th, depth)
		elems := sym.Symbolize(frames)
		profile.Add(elems)

		detail := fmt.Sprintf("state=%s status=%s", th.State(), trace.StatusText(status))
		if err := w.print(out, th.Name(), detail, elems); err != nil {
			return err
		}
	}

	hits, misses := sym.CacheStats()
	log.Debug("Symbolized samples", "hits", hits, "misses", misses)
	return nil
}

// print writes a thread header, its stack and a blank separator line.
func (w *Walker) print(out io.Writer, name, detail string, elems []trace.Element) error {
	if !w.Verbose {
		_, err := fmt.Fprintf(out, "%s\n%s\n", color.Header(name, detail), trace.Format(elems))
		return err
	}

	var sb strings.Builder
	sb.WriteString(color.Header(name, detail) + "\n")
	for _, e := range elems {
		sb.WriteString(trace.Format([]trace.Element{e}))
		sb.WriteString(color.GrayText(fmt.Sprintf("\t    %s bci=%d frame=%#x vframe=%d", e.Mode, e.BCI, e.FrameID, e.VFrameID)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	_, err := io.WriteString(out, sb.String())
	return err
}
