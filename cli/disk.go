package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/redfs/redfs/device"
)

const (
	commandAddDisk       = "add-disk"
	commandRemoveDisk    = "remove-disk"
	commandListDisks     = "list-disks"
	commandFailDisk      = "fail-disk"
	commandSetDiskHealth = "set-disk-health"
	commandProbeDisks    = "probe-disks"
)

var (
	flagDiskPath     = cli.StringFlag{Name: "path", Usage: "backing directory (or block device path)"}
	flagDiskCapacity = cli.IntFlag{Name: "capacity", Usage: "capacity in bytes", Value: 8 << 30}
	flagDiskTier     = cli.StringFlag{Name: "tier", Usage: "hot|warm|cold", Value: string(device.TierHot)}
	flagDiskBlock    = cli.BoolFlag{Name: "block", Usage: "open as a raw block device instead of a directory"}
	flagDiskUID      = cli.StringFlag{Name: "uid", Usage: "device UID"}
	flagDiskHealth   = cli.StringFlag{Name: "health", Usage: "healthy|degraded|suspect|draining|failed"}
)

func diskCommands() []cli.Command {
	return []cli.Command{
		{
			Name:  commandAddDisk,
			Usage: "register a new device with the pool",
			Flags: []cli.Flag{flagDiskPath, flagDiskCapacity, flagDiskTier, flagDiskBlock},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				path := c.String(flagDiskPath.Name)
				if path == "" {
					return nil, fmt.Errorf("add-disk: --path is required")
				}
				uid := uuid.NewString()
				tier := device.Tier(c.String(flagDiskTier.Name))

				var h device.Handle
				var err error
				capacity := int64(c.Int(flagDiskCapacity.Name))
				if c.Bool(flagDiskBlock.Name) {
					h, err = device.OpenBlock(path, uid, capacity, tier)
				} else {
					h, err = device.OpenDirectory(path, uid, capacity, tier)
				}
				if err != nil {
					return nil, err
				}
				if err := pc.pool.Add(h, path); err != nil {
					return nil, err
				}
				return diskInfo(h), nil
			}),
		},
		{
			Name:  commandRemoveDisk,
			Usage: "remove a device from the pool",
			Flags: []cli.Flag{flagDiskUID},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				uid := c.String(flagDiskUID.Name)
				if err := pc.pool.Remove(uid); err != nil {
					return nil, err
				}
				return map[string]string{"removed": uid}, nil
			}),
		},
		{
			Name:  commandListDisks,
			Usage: "list every registered device",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				available, disabled := pc.pool.Get()
				out := make([]diskEntry, 0, len(available)+len(disabled))
				for _, h := range available {
					out = append(out, diskInfo(h))
				}
				for _, h := range disabled {
					out = append(out, diskInfo(h))
				}
				return out, nil
			}),
		},
		{
			Name:  commandFailDisk,
			Usage: "mark a device disabled (draining), taking it out of placement",
			Flags: []cli.Flag{flagDiskUID},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				uid := c.String(flagDiskUID.Name)
				changed, err := pc.pool.Disable(uid)
				if err != nil {
					return nil, err
				}
				return map[string]bool{"disabled": changed}, nil
			}),
		},
		{
			Name:  commandSetDiskHealth,
			Usage: "set a device's health label directly",
			Flags: []cli.Flag{flagDiskUID, flagDiskHealth},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				h, ok := pc.pool.ByUID(c.String(flagDiskUID.Name))
				if !ok {
					return nil, fmt.Errorf("set-disk-health: unknown device %q", c.String(flagDiskUID.Name))
				}
				if err := h.SetHealth(device.Health(c.String(flagDiskHealth.Name))); err != nil {
					return nil, err
				}
				return diskInfo(h), nil
			}),
		},
		{
			Name:  commandProbeDisks,
			Usage: "write and read back a small canary fragment on every device",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				available, disabled := pc.pool.Get()
				results := make([]probeResult, 0, len(available)+len(disabled))
				for _, h := range append(append([]device.Handle{}, available...), disabled...) {
					results = append(results, probeOne(h))
				}
				return results, nil
			}),
		},
	}
}

type diskEntry struct {
	UID       string        `json:"uid"`
	Kind      device.Kind   `json:"kind"`
	Health    device.Health `json:"health"`
	Tier      device.Tier   `json:"tier"`
	Capacity  int64         `json:"capacity_bytes"`
	Used      int64         `json:"used_bytes"`
	Free      int64         `json:"free_bytes"`
}

func diskInfo(h device.Handle) diskEntry {
	return diskEntry{
		UID:      h.UID(),
		Kind:     h.Kind(),
		Health:   h.Health(),
		Tier:     h.Tier(),
		Capacity: h.CapacityBytes(),
		Used:     h.UsedBytes(),
		Free:     h.FreeBytes(),
	}
}

type probeResult struct {
	UID string `json:"uid"`
	OK  bool   `json:"ok"`
	Err string `json:"error,omitempty"`
}

// probeOne exercises a device's write/read/delete path with a throwaway
// fragment, independent of any real extent — a liveness check, not a
// correctness one (scrub already covers correctness of live data).
func probeOne(h device.Handle) probeResult {
	const probeUID = "__probe__"
	payload := []byte("redfs-probe")
	loc, err := h.WriteFragment(nil, probeUID, 0, payload)
	if err != nil {
		return probeResult{UID: h.UID(), Err: err.Error()}
	}
	defer h.DeleteFragment(probeUID, loc)

	got, err := h.ReadFragment(probeUID, loc)
	if err != nil {
		return probeResult{UID: h.UID(), Err: err.Error()}
	}
	if string(got) != string(payload) {
		return probeResult{UID: h.UID(), Err: "read-back mismatch"}
	}
	return probeResult{UID: h.UID(), OK: true}
}
