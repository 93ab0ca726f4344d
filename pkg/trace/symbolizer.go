package trace

import (
	"fmt"

	"github.com/elastic/go-freelru"
)

// MethodLookup resolves a method id handed out in call frames.
type MethodLookup func(id uint64) (MethodInfo, bool)

// Symbolizer resolves call frames to stack trace elements. Resolved methods
// are kept in an LRU cache.
type Symbolizer struct {
	lookup  MethodLookup
	methods *freelru.LRU[uint64, MethodInfo]
}

// NewSymbolizer returns a symbolizer caching up to size methods.
func NewSymbolizer(lookup MethodLookup, size uint32) (*Symbolizer, error) {
	methods, err := freelru.New[uint64, MethodInfo](size, hashMethodID)
	if err != nil {
		return nil, fmt.Errorf("method cache: %w", err)
	}
	return &Symbolizer{lookup: lookup, methods: methods}, nil
}

func hashMethodID(id uint64) uint32 {
	// fibonacci hashing
	return uint32((id * 0x9e3779b97f4a7c15) >> 32)
}

func (s *Symbolizer) method(id uint64) (MethodInfo, bool) {
	if m, ok := s.methods.Get(id); ok {
		return m, true
	}
	m, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	s.methods.Add(id, m)
	return m, true
}

// Symbolize resolves frames. Frames whose method is unknown become elements
// named after the method id.
func (s *Symbolizer) Symbolize(frames []CallFrame) []Element {
	out := make([]Element, 0, len(frames))
	for _, f := range frames {
		m, ok := s.method(f.MethodID)
		if !ok {
			out = append(out, Element{
				Name: fmt.Sprintf("unknown method %d", f.MethodID),
				BCI:  f.BCI,
				Line: NoLineNumber,
			})
			continue
		}

		bci := f.BCI
		if bci == NativeBCI {
			bci = 0
		}
		e := NewElement(m, bci)
		e.BCI = f.BCI
		out = append(out, e)
	}
	return out
}

// CacheStats returns the cache hits and misses since the last call.
func (s *Symbolizer) CacheStats() (hits, misses uint64) {
	m := s.methods.ResetMetrics()
	return m.Hits, m.Misses
}
