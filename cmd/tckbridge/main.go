// Command tckbridge serves and calls the tchecker analysis library through
// isolated worker processes.
//
//	tckbridge serve                  HTTP API on the configured address
//	tckbridge run syntax.check --model sysdecl=ad94.tck
//	tckbridge call abs -p int32 -r int32 -- -7
//	tckbridge ops                    list catalog operations
//	tckbridge ui                     interactive operation picker
//
// The same binary is the worker: the invoker re-executes it with the hidden
// "worker" command for every call.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitError ends the process with a specific code after the command has
// already reported the failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
