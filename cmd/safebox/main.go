// Package main provides the safebox CLI tool.
//
// Usage:
//
//	safebox [flags] <command> [args]
//
// Commands:
//
//	put, append, get, exists, rm   - work on one logical file
//	ls, count, purge               - work on a directory
//	df                             - show how full the store is
//	drivers                        - list compiled-in drivers
//
// Configuration:
//
//	Pass a YAML file with --config, or describe the store with
//	--type, --base, --mode and --algorithm.
package main

import (
	"fmt"
	"os"

	"github.com/nuln/safebox/cmd/safebox/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
