package storage

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/redfs/redfs/classify"
	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/config"
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/rfserr"
)

// Engine is the read/write orchestrator from spec.md §4.4: it holds the
// metadata store and device pool (each already internally synchronized)
// plus the concurrency primitives that coordinate operations across them,
// and implements FsCapability once for every collaborator to share.
//
// sim is the explicit crash-injection context object from spec.md §9's
// named re-architecture: a field on a constructed value, never a
// package-level global or thread-local. Production callers pass nil to
// NewEngine, which is the crashsim.Simulator zero-cost no-op case.
type Engine struct {
	store *metadata.Store
	pool  *device.Pool
	cfg   *config.Config
	sim   *crashsim.Simulator
	log   zerolog.Logger

	locks       *concurrency.ExtentLocks
	sched       *concurrency.Scheduler
	groupCommit *concurrency.GroupCommit
	cache       *classify.Cache
}

// NewEngine wires the already-open collaborators into one orchestrator.
// sched bounds in-flight fragment writes per device and groupCommit
// coalesces metadata saves under a single consistent timestamp, both per
// spec.md §5, sized off cfg's DeviceQueueDepth/GroupCommitMaxOps/
// GroupCommitMaxDelay knobs.
func NewEngine(store *metadata.Store, pool *device.Pool, cfg *config.Config, sim *crashsim.Simulator, log zerolog.Logger) (*Engine, error) {
	cache, err := classify.NewCache(1024)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:       store,
		pool:        pool,
		cfg:         cfg,
		sim:         sim,
		log:         log.With().Str("component", "storage").Logger(),
		locks:       concurrency.NewExtentLocks(cfg.ExtentLockShards),
		sched:       concurrency.NewScheduler(cfg.DeviceQueueDepth),
		groupCommit: concurrency.NewGroupCommit(cfg.GroupCommitMaxOps, cfg.GroupCommitMaxDelay),
		cache:       cache,
	}, nil
}

// CreateFile implements FsCapability.
func (e *Engine) CreateFile(parent uint64, name string) (metadata.Inode, error) {
	return e.createChild(parent, name, metadata.InodeFile, 0o644)
}

// CreateDir implements FsCapability.
func (e *Engine) CreateDir(parent uint64, name string) (metadata.Inode, error) {
	return e.createChild(parent, name, metadata.InodeDir, 0o755)
}

func (e *Engine) createChild(parent uint64, name string, kind metadata.InodeType, mode uint32) (metadata.Inode, error) {
	if _, err := e.store.LoadInode(parent); err != nil {
		return metadata.Inode{}, err
	}
	if _, ok := e.store.FindChild(parent, name); ok {
		return metadata.Inode{}, rfserr.NewAlreadyExists(name)
	}

	ino, err := e.store.AllocateIno(e.sim)
	if err != nil {
		return metadata.Inode{}, err
	}

	now := time.Now()
	n := metadata.Inode{
		Ino: ino, ParentIno: parent, Type: kind, Name: name,
		Mode: mode, Atime: now, Mtime: now, Ctime: now,
	}
	if err := e.store.SaveInode(e.sim, &n); err != nil {
		return metadata.Inode{}, err
	}
	return n, nil
}

// GetInode implements FsCapability.
func (e *Engine) GetInode(ino uint64) (metadata.Inode, error) {
	return e.store.LoadInode(ino)
}

// Stat implements FsCapability.
func (e *Engine) Stat(ino uint64) (metadata.Inode, error) {
	return e.store.LoadInode(ino)
}

// ListDirectory implements FsCapability.
func (e *Engine) ListDirectory(parent uint64) ([]metadata.Inode, error) {
	if _, err := e.store.LoadInode(parent); err != nil {
		return nil, err
	}
	return e.store.ListDirectory(parent), nil
}

// FindChild implements FsCapability.
func (e *Engine) FindChild(parent uint64, name string) (metadata.Inode, bool, error) {
	if _, err := e.store.LoadInode(parent); err != nil {
		return metadata.Inode{}, false, err
	}
	n, ok := e.store.FindChild(parent, name)
	return n, ok, nil
}

// UpdateInode implements FsCapability: loads ino, applies mutate, and
// persists the result. mutate must not change Ino.
func (e *Engine) UpdateInode(ino uint64, mutate func(*metadata.Inode)) (metadata.Inode, error) {
	n, err := e.store.LoadInode(ino)
	if err != nil {
		return metadata.Inode{}, err
	}
	mutate(&n)
	n.Ctime = time.Now()
	if err := e.store.SaveInode(e.sim, &n); err != nil {
		return metadata.Inode{}, err
	}
	return n, nil
}

// DeleteDir implements FsCapability.
func (e *Engine) DeleteDir(ino uint64) error {
	n, err := e.store.LoadInode(ino)
	if err != nil {
		return err
	}
	if n.Type != metadata.InodeDir {
		return rfserr.NewUnsupported("not a directory")
	}
	if children := e.store.ListDirectory(ino); len(children) > 0 {
		return rfserr.NewUnsupported("directory not empty")
	}
	return e.store.DeleteInode(e.sim, ino)
}

// DeleteFile implements FsCapability: removes the inode and its extent
// map. The extents themselves are not deleted synchronously — once no
// extent-map references them, they become garbage for the next GC sweep
// after their grace window elapses (spec.md §3's lifecycle rule).
func (e *Engine) DeleteFile(ino uint64) error {
	n, err := e.store.LoadInode(ino)
	if err != nil {
		return err
	}
	if n.Type != metadata.InodeFile {
		return rfserr.NewUnsupported("not a regular file")
	}
	if _, err := e.store.LoadExtentMap(ino); err == nil {
		if err := e.store.DeleteExtentMap(e.sim, ino); err != nil {
			return err
		}
	}
	return e.store.DeleteInode(e.sim, ino)
}
