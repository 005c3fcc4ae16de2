// The main package for the lindol executable.
package main

import (
	"github.com/lindol-ph/lindol/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
