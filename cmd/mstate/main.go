// Command mstate validates, runs and inspects phase-driven state machines.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/mstate/internal/cli"
)

func main() {
	root := cli.NewRootCommand()

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
