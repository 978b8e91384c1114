// The main package for the webapp executable.
package main

import (
	"github.com/JakeFAU/assignment-webapp/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
