package main

import (
	"flag"
	"time"
)

// flagSet wraps flag.FlagSet to additionally track which flag names were
// explicitly set on the command line, mirroring cmd/can-server/config.go's
// flag.Visit-after-Parse pattern used to give flags precedence over
// environment overrides.
type flagSet struct {
	fs            *flag.FlagSet
	explicitlySet map[string]struct{}
}

func newFlagSet() *flagSet {
	return &flagSet{fs: flag.NewFlagSet("qpipe-orchestrator", flag.ContinueOnError)}
}

func (f *flagSet) String(name, value, usage string) *string { return f.fs.String(name, value, usage) }
func (f *flagSet) Bool(name string, value bool, usage string) *bool {
	return f.fs.Bool(name, value, usage)
}
func (f *flagSet) Duration(name string, value time.Duration, usage string) *time.Duration {
	return f.fs.Duration(name, value, usage)
}

// Parse parses args, records explicitly-set flag names, and returns the
// remaining positional arguments.
func (f *flagSet) Parse(args []string) ([]string, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	f.explicitlySet = map[string]struct{}{}
	f.fs.Visit(func(fl *flag.Flag) { f.explicitlySet[fl.Name] = struct{}{} })
	return f.fs.Args(), nil
}
