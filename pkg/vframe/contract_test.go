//go:build vframedebug

package vframe_test

import (
	"testing"

	"vwalk/pkg/simrt"
	"vwalk/pkg/vframe"
)

func TestCompiledAccessorsPanicOutsideCompiledMode(t *testing.T) {
	fx := newFixture()
	fx.th.Push(simrt.Interpreted(fx.a, 1))
	s := vframe.New(fx.th)

	for name, call := range map[string]func(){
		"VFrameID":     func() { s.VFrameID() },
		"DecodeOffset": func() { s.DecodeOffset() },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s in %v mode did not panic", name, s.Mode())
				}
			}()
			call()
		})
	}
}
