package cli

import (
	"github.com/urfave/cli"
)

var (
	flagPoolRoot = cli.StringFlag{Name: "pool", Usage: "pool root directory", Value: ".", EnvVar: "REDFS_POOL"}
	flagJSON     = cli.BoolFlag{Name: "json", Usage: "emit a {status,data|error,timestamp} JSON envelope"}
)

// NewApp builds the redfs command-line surface (spec.md §6).
func NewApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "redfs"
	app.Usage = "content-addressed, redundancy-policy-aware object filesystem"
	app.Version = version
	app.Flags = []cli.Flag{flagPoolRoot, flagJSON}

	app.Commands = append(app.Commands, diskCommands()...)
	app.Commands = append(app.Commands, extentCommands()...)
	app.Commands = append(app.Commands, scrubCommands()...)
	app.Commands = append(app.Commands, gcCommands()...)
	app.Commands = append(app.Commands, miscCommands()...)
	return app
}

// withPool adapts a command body that needs an open pool into a cli.Action,
// opening the pool's collaborators once, running the body, and rendering
// its result through the JSON envelope (or plain text) per the global
// --json flag.
func withPool(body func(pc *poolContext, c *cli.Context) (interface{}, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		asJSON := c.GlobalBool(flagJSON.Name)
		pc, err := openPoolContext(c.GlobalString(flagPoolRoot.Name), asJSON)
		if err != nil {
			return emit(asJSON, nil, err, nil)
		}
		result, err := body(pc, c)
		return emit(asJSON, result, err, nil)
	}
}
