// Command notelog inspects record logs, serves notes and syncs them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/notelog/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "notelog: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
