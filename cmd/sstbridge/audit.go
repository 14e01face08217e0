package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sudoservertools/sstbridge/internal/audit"
)

// runAudit checks the consumer's audit trail. Exit 1 when any entry fails its checksum.
func runAudit(args []string) int {
	fs, flags := newFlagSet("audit")
	file := fs.String("file", "", "audit trail to verify (default <state-dir>/audit.jsonl)")
	if _, err := parseArgs(fs, args); err != nil {
		return exitUsage
	}

	path := *file
	if path == "" {
		cfg, _, err := loadConfig(flags)
		if err != nil {
			fmt.Fprintf(os.Stderr, "audit: %v\n", err)
			return exitError
		}
		path = filepath.Join(cfg.Consumer.StateDir, audit.FileName)
	}

	total, valid, err := audit.Verify(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		return exitError
	}
	fmt.Printf("%s: %d entries, %d valid\n", path, total, valid)
	if valid != total {
		return exitError
	}
	return exitOK
}
