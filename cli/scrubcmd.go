package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"

	"github.com/redfs/redfs/config"
	"github.com/redfs/redfs/scrub"
)

const (
	commandScrub       = "scrub"
	commandScrubDaemon = "scrub-daemon"
)

var (
	flagRepair    = cli.BoolFlag{Name: "repair", Usage: "attempt conservative repair of degraded extents"}
	flagIntensity = cli.StringFlag{Name: "intensity", Usage: "low|medium|high", Value: "medium"}
)

func scrubCommands() []cli.Command {
	return []cli.Command{
		{
			Name:  commandScrub,
			Usage: "verify (and optionally repair) every extent in the pool once",
			Flags: []cli.Flag{flagRepair, flagExtentUID},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				repair := c.Bool(flagRepair.Name)
				if uid := c.String(flagExtentUID.Name); uid != "" {
					return pc.scrubber.ScrubExtent(uid, repair), nil
				}

				uids, err := pc.store.ListExtentUIDs()
				if err != nil {
					return nil, err
				}

				start := time.Now()
				var onEach func(scrub.Result)
				var bar *mpb.Progress
				if !c.GlobalBool(flagJSON.Name) {
					bar = mpb.New(mpb.WithWidth(progressBarWidth))
					b := newCountBar(bar, len(uids), "scrubbing pool")
					onEach = func(scrub.Result) { b.Increment() }
				}
				results, err := pc.scrubber.ScrubAllWithProgress(repair, onEach)
				if bar != nil {
					bar.Wait()
				}
				if err != nil {
					return nil, err
				}
				sum := scrub.Summarize(uuid.NewString(), start, "manual", results)
				if err := pc.history.Record(sum); err != nil {
					return nil, err
				}
				return sum, nil
			}),
		},
		{
			Name:      commandScrubDaemon,
			Usage:     "control the background scrub daemon",
			ArgsUsage: "start|stop|status|pause|resume|set-intensity",
			Flags:     []cli.Flag{flagRepair, flagIntensity},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				sub := c.Args().First()
				switch sub {
				case "start":
					return nil, runScrubDaemonForeground(pc, intensityFromName(c.String(flagIntensity.Name)), c.Bool(flagRepair.Name))
				case "stop":
					return nil, sendDaemonSignal(pc.root, sigStop)
				case "pause":
					return nil, sendDaemonSignal(pc.root, sigPause)
				case "resume":
					return nil, sendDaemonSignal(pc.root, sigResume)
				case "status":
					return daemonStatus(pc.root)
				case "set-intensity":
					if err := writeIntensityFile(pc.root, c.String(flagIntensity.Name)); err != nil {
						return nil, err
					}
					return nil, sendDaemonSignal(pc.root, sigReloadIntensity)
				default:
					return nil, fmt.Errorf("scrub-daemon: unknown sub-command %q", sub)
				}
			}),
		},
	}
}

func intensityFromName(s string) config.ScrubIntensity {
	switch s {
	case "low":
		return config.ScrubLow
	case "high":
		return config.ScrubHigh
	default:
		return config.ScrubMedium
	}
}
