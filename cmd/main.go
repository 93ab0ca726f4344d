package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"vwalk/internal/logger"
	"vwalk/internal/walker"
	"vwalk/pkg/color"
)

// Main entry point for the vwalk stack walker.
func main() {
	options := walker.Walker{}

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.BoolVar(&options.Carrier, "carrier", false, "Walk the carrier frames of mounted virtual threads")
	flag.BoolVar(&options.StopAtCallStub, "stub", false, "Stop each walk at the first call stub")
	flag.BoolVar(&options.Async, "async", false, "Sample threads like an asynchronous profiler")
	flag.BoolVar(&options.Folded, "folded", false, "Print folded stacks after the walk")
	flag.IntVar(&options.Depth, "depth", 0, "Maximum frames per thread (0 = no limit)")
	flag.StringVar(&options.Scope, "scope", "", "Stop at the entry of the innermost continuation of this scope")
	flag.StringVar(&options.Thread, "thread", "", "Only walk the named thread")

	flag.Parse()
	args := flag.Args()

	logger.Init(options.Verbose, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] <snapshot.json>\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No snapshot file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.SnapshotFile = args[0]

	if err := options.Walk(); err != nil {
		fmt.Fprintln(os.Stderr, color.Error(err.Error()))
		log.Fatal("Walk failed", "error", err)
	}
}
