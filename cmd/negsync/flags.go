package main

import (
	"flag"
)

// flagSet wraps flag.FlagSet with the ContinueOnError behavior used
// throughout this command so callers control error handling.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior.
func newCustomFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}
