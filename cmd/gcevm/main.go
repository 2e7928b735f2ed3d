// gcevm is a declarative provisioner for a single GCE VM stack.
package main

import (
	"fmt"
	"os"

	"github.com/r4rohan/gcevm/cmd/gcevm/commands"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
