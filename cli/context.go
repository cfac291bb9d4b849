// Package cli implements the redfs command-line surface (spec.md §6): a
// thin urfave/cli collaborator over the storage engine, scrubber, and
// garbage collector. Grounded on the teacher's cli/commands package
// (command/subcommand naming, flag tables), adapted from an HTTP-API
// client (the teacher talks to a remote cluster proxy) to a direct,
// in-process caller of this repository's own packages, since redfs is
// single-host.
package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/config"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/gc"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/rfslog"
	"github.com/redfs/redfs/scrub"
	"github.com/redfs/redfs/storage"
)

// poolContext bundles the collaborators a command needs, opened fresh for
// one CLI invocation (this process does not stay resident between
// commands, except for `scrub-daemon start` and `metrics`).
type poolContext struct {
	root   string
	log    *rfslog.Logger
	cfg    *config.Config
	pool   *device.Pool
	store  *metadata.Store
	engine *storage.Engine

	scrubber *scrub.Scrubber
	history  *scrub.History
	gc       *gc.Collector
}

func openPoolContext(root string, jsonOut bool) (*poolContext, error) {
	log := rfslog.New(os.Stderr, "cli")
	if jsonOut {
		// JSON-envelope output must stay on stdout alone; demote logging
		// to a level unlikely to interleave with a piped --json consumer.
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	}

	cfg := config.Default()

	pool, err := device.OpenPool(root)
	if err != nil {
		return nil, err
	}

	store, err := metadata.Open(root, cfg.RootsRetained)
	if err != nil {
		return nil, err
	}
	if err := store.Bootstrap(nil); err != nil {
		return nil, err
	}

	engine, err := storage.NewEngine(store, pool, cfg, nil, log.Logger)
	if err != nil {
		return nil, err
	}

	scrubber := scrub.NewScrubber(store, pool, nil, concurrency.NewExtentLocks(cfg.ExtentLockShards), cfg, log.Logger)

	historyDir := filepath.Join(root, "scrub-history")
	if err := os.MkdirAll(historyDir, 0o755); err != nil {
		return nil, err
	}
	history, err := scrub.NewHistory(historyDir)
	if err != nil {
		return nil, err
	}

	trackerDir := filepath.Join(root, "gc-tracker")
	if err := os.MkdirAll(trackerDir, 0o755); err != nil {
		return nil, err
	}
	tracker, err := gc.NewAgeTracker(trackerDir)
	if err != nil {
		return nil, err
	}
	collector := gc.NewCollector(store, pool, nil, tracker)

	return &poolContext{
		root:     root,
		log:      log,
		cfg:      cfg,
		pool:     pool,
		store:    store,
		engine:   engine,
		scrubber: scrubber,
		history:  history,
		gc:       collector,
	}, nil
}
