package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "init":
		return runInit(args[1:])
	case "consumer":
		return runConsumer(args[1:])
	case "api":
		return runAPI(args[1:])
	case "enqueue":
		return runEnqueue(args[1:])
	case "results":
		return runResults(args[1:])
	case "status":
		return runStatus(args[1:])
	case "ctl":
		return runCtl(args[1:])
	case "audit":
		return runAudit(args[1:])
	case "version":
		fmt.Printf("sstbridge %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `sstbridge %s - file-backed command queues between the game server and the web API

Usage: sstbridge <command> [flags]

Setup:
  init [dir]                            Write a config, a sample world and empty queue files

Processes:
  consumer [flags]                      Reconcile queue files (one per state dir)
  api [flags]                           Serve the HTTP producer API

Producer:
  enqueue <feature> <json|@file|-> [--id ID] [--wait 5s]
                                        Append a request, optionally wait for its outcome
  results <feature> [--pending]         Print the result file (or unprocessed requests)
  status [--json]                       Consumer liveness and queue depths
  status <feature> <request-id> [--wait 5s]
                                        Look up one request

Consumer control:
  ctl <ping|scan|status|shutdown>       Talk to the running consumer over its socket
  audit [--file PATH]                   Verify the checksums of the audit trail

  version                               Show version
  help                                  Show this help

Shared flags: --config, --backend, --base-dir, --state-dir, --features, --log-level.
Environment: SST_CONFIG and SST_* overrides (see the config written by init).

`, version)
}
