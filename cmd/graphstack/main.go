// Command graphstack inspects and modifies graphstack stores.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/graphstack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own failures; only cobra's argument and
		// flag errors still need printing.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
