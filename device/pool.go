package device

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// Pool is the pool-wide device lifecycle manager: add, remove, enable,
// disable. Grounded on the teacher's fs.MountedFS (fs/mountfs_test.go),
// generalized from "mountpath" (one directory per backing filesystem) to
// "device" (directory- or block-backed, per spec.md §3).
type Pool struct {
	mu        sync.RWMutex
	poolPath  string
	available map[string]Handle
	disabled  map[string]Handle
	paths     map[string]string // UID -> backing path, for pool.json
	fsids     map[uint64]string // dev id -> UID, directory devices only
	checkFsID bool
}

type poolEntry struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

func poolJSONPath(poolRoot string) string { return filepath.Join(poolRoot, "pool.json") }

// NewPool creates an empty pool rooted at poolRoot (the directory containing
// pool.json and the metadata/ tree, spec.md §6).
func NewPool(poolRoot string) *Pool {
	return &Pool{
		poolPath:  poolRoot,
		available: map[string]Handle{},
		disabled:  map[string]Handle{},
		paths:     map[string]string{},
		fsids:     map[uint64]string{},
		checkFsID: true,
	}
}

// DisableFsIDCheck turns off the same-filesystem dedup check, for tests that
// add multiple directory devices backed by the same underlying filesystem.
func (p *Pool) DisableFsIDCheck() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkFsID = false
}

// OpenPool reopens a pool previously initialized at poolRoot, reading
// pool.json and reopening every listed device. Each device's own on-disk
// metadata (disk.json for a directory device, the <path>.meta.json sidecar
// for a block device) supplies its real UID, capacity and tier; OpenDirectory and
// OpenBlock both ignore the placeholder values passed here whenever that
// on-disk metadata is already present, so a blank UID and zero capacity are
// enough. This mirrors metadata.Open's reopen-from-disk pattern, since a
// CLI invocation is a fresh process with no in-memory pool to resume from.
func OpenPool(poolRoot string) (*Pool, error) {
	raw, err := os.ReadFile(poolJSONPath(poolRoot))
	if os.IsNotExist(err) {
		return NewPool(poolRoot), nil
	}
	if err != nil {
		return nil, rfserr.NewIoError("read", poolJSONPath(poolRoot), err)
	}

	var entries []poolEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, rfserr.NewCorruptedMetadata("pool.json", err.Error())
	}

	p := NewPool(poolRoot)
	for _, e := range entries {
		var h Handle
		var err error
		switch e.Kind {
		case KindBlock:
			h, err = OpenBlock(e.Path, "", 0, TierHot)
		default:
			h, err = OpenDirectory(e.Path, "", 0, TierHot)
		}
		if err != nil {
			return nil, err
		}
		p.available[h.UID()] = h
		p.paths[h.UID()] = e.Path
	}
	return p, nil
}

// Add registers an already-opened device handle with the pool and persists
// pool.json. Directory devices sharing a filesystem with an already-added
// device are rejected unless the FSID check has been disabled.
func (p *Pool) Add(h Handle, backingPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.available[h.UID()]; ok {
		return rfserr.NewAlreadyExists("device " + h.UID())
	}
	if _, ok := p.disabled[h.UID()]; ok {
		return rfserr.NewAlreadyExists("device " + h.UID())
	}

	var fsid uint64
	if h.Kind() == KindDirectory && p.checkFsID {
		var st syscall.Stat_t
		if err := syscall.Stat(backingPath, &st); err != nil {
			return rfserr.NewIoError("stat", backingPath, err)
		}
		fsid = uint64(st.Dev)
		if existing, taken := p.fsids[fsid]; taken {
			return rfserr.New(rfserr.AlreadyExists, "device "+existing+" already occupies this filesystem")
		}
	}

	p.available[h.UID()] = h
	p.paths[h.UID()] = backingPath
	if fsid != 0 {
		p.fsids[fsid] = h.UID()
	}
	return p.persist()
}

// Remove closes and forgets a device, from either the available or disabled
// set.
func (p *Pool) Remove(uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.available[uid]
	if ok {
		delete(p.available, uid)
	} else if h, ok = p.disabled[uid]; ok {
		delete(p.disabled, uid)
	} else {
		return rfserr.NewNotFound("device " + uid)
	}
	for fsid, u := range p.fsids {
		if u == uid {
			delete(p.fsids, fsid)
		}
	}
	delete(p.paths, uid)
	if err := p.persist(); err != nil {
		return err
	}
	return h.Close()
}

// Disable moves an available device to the disabled set. Returns false
// (without error) if it was already disabled.
func (p *Pool) Disable(uid string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.disabled[uid]; ok {
		return false, nil
	}
	h, ok := p.available[uid]
	if !ok {
		return false, rfserr.NewNotFound("device " + uid)
	}
	delete(p.available, uid)
	p.disabled[uid] = h
	_ = h.SetHealth(HealthDraining)
	return true, nil
}

// Enable moves a disabled device back to the available set. Returns false
// (without error) if it was already available.
func (p *Pool) Enable(uid string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.available[uid]; ok {
		return false, nil
	}
	h, ok := p.disabled[uid]
	if !ok {
		return false, rfserr.NewNotFound("device " + uid)
	}
	delete(p.disabled, uid)
	p.available[uid] = h
	_ = h.SetHealth(HealthHealthy)
	return true, nil
}

// Get returns snapshots of the available and disabled device sets.
func (p *Pool) Get() (available, disabled []Handle) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, h := range p.available {
		available = append(available, h)
	}
	for _, h := range p.disabled {
		disabled = append(disabled, h)
	}
	return available, disabled
}

// ByUID returns the handle for uid, searching both available and disabled
// sets.
func (p *Pool) ByUID(uid string) (Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h, ok := p.available[uid]; ok {
		return h, true
	}
	h, ok := p.disabled[uid]
	return h, ok
}

// persist rewrites pool.json from the current device set. Called with mu
// already held. The pool is small enough (one entry per physical device)
// that a whole-file rewrite per mutation is simpler than an incremental
// journal and matches the rest of the store's write-temp-fsync-rename
// discipline.
func (p *Pool) persist() error {
	entries := make([]poolEntry, 0, len(p.paths))
	for uid, path := range p.paths {
		kind := KindDirectory
		if h, ok := p.available[uid]; ok {
			kind = h.Kind()
		} else if h, ok := p.disabled[uid]; ok {
			kind = h.Kind()
		}
		entries = append(entries, poolEntry{Path: path, Kind: kind})
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return durable.Write(nil, poolJSONPath(p.poolPath), raw, 0o644)
}
