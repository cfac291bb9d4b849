package cli

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

const (
	commandListExtents    = "list-extents"
	commandShowRedundancy = "show-redundancy"
	commandChangePolicy   = "change-policy"
)

var (
	flagExtentUID = cli.StringFlag{Name: "extent", Usage: "extent UID"}
	flagIno       = cli.IntFlag{Name: "ino", Usage: "inode number"}
	flagPolicy    = cli.StringFlag{Name: "policy", Usage: "replication:N or erasure:K+M"}
)

func extentCommands() []cli.Command {
	return []cli.Command{
		{
			Name:  commandListExtents,
			Usage: "list every extent in the pool",
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				uids, err := pc.store.ListExtentUIDs()
				if err != nil {
					return nil, err
				}
				out := make([]extentSummary, 0, len(uids))
				for _, uid := range uids {
					ext, err := pc.store.LoadExtent(uid)
					if err != nil {
						out = append(out, extentSummary{UID: uid, Err: err.Error()})
						continue
					}
					out = append(out, summarizeExtent(ext))
				}
				return out, nil
			}),
		},
		{
			Name:  commandShowRedundancy,
			Usage: "show the redundancy policy and fragment placement of one extent, or every extent of a file",
			Flags: []cli.Flag{flagExtentUID, flagIno},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				if uid := c.String(flagExtentUID.Name); uid != "" {
					ext, err := pc.store.LoadExtent(uid)
					if err != nil {
						return nil, err
					}
					return summarizeExtent(ext), nil
				}
				if !c.IsSet(flagIno.Name) {
					return nil, fmt.Errorf("show-redundancy: either --extent or --ino is required")
				}
				em, err := pc.store.LoadExtentMap(uint64(c.Int(flagIno.Name)))
				if err != nil {
					return nil, err
				}
				out := make([]extentSummary, 0, len(em.ExtentUIDs))
				for _, uid := range em.ExtentUIDs {
					ext, err := pc.store.LoadExtent(uid)
					if err != nil {
						out = append(out, extentSummary{UID: uid, Err: err.Error()})
						continue
					}
					out = append(out, summarizeExtent(ext))
				}
				return out, nil
			}),
		},
		{
			Name:  commandChangePolicy,
			Usage: "rebundle a file's extents to a new redundancy policy",
			Flags: []cli.Flag{flagIno, flagPolicy},
			Action: withPool(func(pc *poolContext, c *cli.Context) (interface{}, error) {
				policy, err := parsePolicy(c.String(flagPolicy.Name))
				if err != nil {
					return nil, err
				}
				ino := uint64(c.Int(flagIno.Name))
				if err := pc.engine.ChangeFileRedundancy(ino, policy); err != nil {
					return nil, err
				}
				return map[string]string{"ino": fmt.Sprint(ino), "policy": policy.String()}, nil
			}),
		},
	}
}

type extentSummary struct {
	UID       string                    `json:"uid"`
	SizeBytes int64                     `json:"size_bytes"`
	Policy    string                    `json:"policy"`
	Fragments []device.FragmentLocation `json:"fragments,omitempty"`
	Err       string                    `json:"error,omitempty"`
}

func summarizeExtent(ext metadata.Extent) extentSummary {
	return extentSummary{
		UID:       ext.UID,
		SizeBytes: ext.SizeBytes,
		Policy:    ext.Policy.String(),
		Fragments: ext.FragmentLocations,
	}
}
