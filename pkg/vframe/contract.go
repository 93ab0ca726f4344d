package vframe

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// contract reports a violated caller or runtime contract. Builds with the
// vframedebug tag panic; other builds log and carry on.
func contract(ok bool, what string, mode Mode) {
	if ok {
		return
	}
	if debugChecks {
		panic(fmt.Sprintf("vframe: %s (mode %s)", what, mode))
	}
	log.Debug("vframe contract violated", "what", what, "mode", mode)
}
