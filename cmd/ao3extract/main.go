// Package main provides the ao3extract command-line tool: it scans PDF
// exports for links to archive works, recovers metadata for every linked
// work, and renders the collected results.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
