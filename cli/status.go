package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/redfs/redfs/metrics"
)

const (
	commandInit   = "init"
	commandStatus = "status"
	commandMetrics = "metrics"
	commandMount  = "mount"
)

var flagMetricsAddr = cli.StringFlag{Name: "addr", Usage: "listen address for the Prometheus /metrics endpoint", Value: ":9400"}

func miscCommands() []cli.Command {
	return []cli.Command{
		{
			Name:  commandInit,
			Usage: "initialize (or verify) a pool's on-disk layout",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				return map[string]string{"pool": pc.root}, nil
			}),
		},
		{
			Name:  commandStatus,
			Usage: "summarize pool health: devices, current root, extent count",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				return buildStatus(pc)
			}),
		},
		{
			Name:  commandMetrics,
			Usage: "serve Prometheus metrics until interrupted",
			Flags: []cli.Flag{flagMetricsAddr},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				return nil, serveMetrics(pc, c.String(flagMetricsAddr.Name))
			}),
		},
		{
			Name:      commandMount,
			Usage:     "mount (collaborator stub): hand the pool's FsCapability to an OS mount adapter",
			ArgsUsage: "<point>",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				point := c.Args().First()
				if point == "" {
					return nil, fmt.Errorf("mount: a mount point argument is required")
				}
				// The kernel-userspace bridge is explicitly out of scope
				// (spec.md §1): this only confirms the capability redfs
				// hands to such an adapter is ready.
				return map[string]string{"mount_point": point, "capability": "ready"}, nil
			}),
		},
	}
}

type statusReport struct {
	Pool        string      `json:"pool"`
	RootVersion uint64      `json:"root_version"`
	InodeCount  int64       `json:"inode_count"`
	ExtentCount int64       `json:"extent_count"`
	Disks       []diskEntry `json:"disks"`
}

func buildStatus(pc *poolContext) (statusReport, error) {
	root, err := pc.store.CurrentRoot()
	if err != nil {
		return statusReport{}, err
	}
	available, disabled := pc.pool.Get()
	disks := make([]diskEntry, 0, len(available)+len(disabled))
	for _, h := range available {
		disks = append(disks, diskInfo(h))
	}
	for _, h := range disabled {
		disks = append(disks, diskInfo(h))
	}
	return statusReport{
		Pool:        pc.root,
		RootVersion: root.Version,
		InodeCount:  root.InodeCount,
		ExtentCount: root.ExtentCount,
		Disks:       disks,
	}, nil
}

func serveMetrics(pc *poolContext, addr string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewExporter(pc.pool, pc.store)); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	pc.log.Info().Str("addr", addr).Msg("metrics server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-sigCh:
		return srv.Close()
	}
}
