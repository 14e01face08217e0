package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/setup"
)

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	positional, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	dir := "."
	switch len(positional) {
	case 0:
	case 1:
		dir = positional[0]
	default:
		fmt.Fprintln(os.Stderr, "usage: sstbridge init [dir]")
		return exitUsage
	}

	reg, err := feature.NewRegistry(nil, log.Discard(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return exitError
	}
	l, err := setup.Run(context.Background(), dir, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return exitError
	}

	fmt.Printf("Config:     %s\n", l.Config)
	fmt.Printf("World:      %s\n", l.World)
	fmt.Printf("Queue dir:  %s\n", l.BaseDir)
	fmt.Printf("State dir:  %s\n", l.State)
	fmt.Printf("Seeded %d queue and result files.\n\n", len(l.Seeded))
	fmt.Printf("Start the consumer with: sstbridge consumer --config %s\n", l.Config)
	return exitOK
}
