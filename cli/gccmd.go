package cli

import (
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"

	"github.com/redfs/redfs/gc"
)

const (
	commandDetectOrphans  = "detect-orphans"
	commandCleanupOrphans = "cleanup-orphans"
)

var (
	flagMinAgeHours = cli.IntFlag{Name: "min-age-hours", Usage: "minimum orphan age before reclamation", Value: 24}
	flagDryRun      = cli.BoolFlag{Name: "dry-run", Usage: "report what would be deleted without deleting"}
)

func gcCommands() []cli.Command {
	return []cli.Command{
		{
			Name:  commandDetectOrphans,
			Usage: "list fragments on disk with no referencing extent record",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				return pc.gc.DetectOrphans()
			}),
		},
		{
			Name:  commandCleanupOrphans,
			Usage: "reclaim orphaned fragments older than --min-age-hours",
			Flags: []cli.Flag{flagMinAgeHours, flagDryRun},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				minAge := time.Duration(c.Int(flagMinAgeHours.Name)) * time.Hour
				dryRun := c.Bool(flagDryRun.Name)

				orphans, err := pc.gc.DetectOrphans()
				if err != nil {
					return nil, err
				}

				var onEach func(gc.CleanupResult)
				var bar *mpb.Progress
				if !c.GlobalBool(flagJSON.Name) {
					bar = mpb.New(mpb.WithWidth(progressBarWidth))
					b := newCountBar(bar, len(orphans), "cleaning up orphans")
					onEach = func(gc.CleanupResult) { b.Increment() }
				}
				results, err := pc.gc.CleanupOrphansWithProgress(minAge, dryRun, onEach)
				if bar != nil {
					bar.Wait()
				}
				return results, err
			}),
		},
	}
}
