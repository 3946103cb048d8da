// Command platectl operates a Plate store from the shell: migrate the
// schema, create and allocate license plates, split, merge and trace them.
package main

import (
	"fmt"
	"os"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd(os.Stdout)
	root.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
