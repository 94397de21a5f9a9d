// The main package for the scanbridge executable.
package main

import (
	"github.com/solarscan/scanbridge/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
