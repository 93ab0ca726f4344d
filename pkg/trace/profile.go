package trace

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Profile aggregates sampled stack traces into folded stacks.
type Profile struct {
	counts map[string]int
	total  int
}

func NewProfile() *Profile {
	return &Profile{counts: make(map[string]int)}
}

// Add records one sample. elems are innermost first.
func (p *Profile) Add(elems []Element) {
	if len(elems) == 0 {
		return
	}
	names := make([]string, len(elems))
	for i, e := range elems {
		names[len(elems)-1-i] = e.Symbol()
	}
	p.counts[strings.Join(names, ";")]++
	p.total++
}

// Samples returns the number of samples added.
func (p *Profile) Samples() int {
	return p.total
}

// WriteFolded writes one "outer;...;inner count" line per distinct stack, in
// lexical order.
func (p *Profile) WriteFolded(w io.Writer) error {
	for _, stack := range slices.Sorted(maps.Keys(p.counts)) {
		if _, err := fmt.Fprintf(w, "%s %d\n", stack, p.counts[stack]); err != nil {
			return fmt.Errorf("write folded stack: %w", err)
		}
	}
	return nil
}
