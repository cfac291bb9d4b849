// Command redfs is the CLI entrypoint (spec.md §6): a thin binary that
// wires the cli package's App against the pool named by --pool.
package main

import (
	"fmt"
	"os"

	"github.com/redfs/redfs/cli"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp(version)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
