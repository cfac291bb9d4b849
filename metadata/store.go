package metadata

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// Store is the metadata store (spec.md §4.2): durable, checksummed records
// for inodes, extents, extent-maps, and a versioned root. Exclusively owns
// persisted records; the storage engine holds it behind a read/write
// mutex of its own (spec.md §3's ownership note), but Store additionally
// guards its own in-memory indices with mu so it is safe to share a single
// Store across goroutines without an external lock for point operations.
//
// Each record write is independently atomic (write-temp-fsync-rename), so
// the multi-step commit sequence in spec.md §4.4 (extent, then extent-map,
// then inode) does not need one lock held across all three calls: a reader
// loading the extent-map mid-sequence still either sees the prior committed
// map or the new one, never a partial file, which is the invariant §5
// actually requires.
type Store struct {
	poolRoot string
	keepRoots int

	mu           sync.RWMutex
	inodeIdx     *InodeIndex
	extentMapIdx *ExtentMapIndex
	nextIno      uint64

	rootMu sync.Mutex
}

// Open loads (or lazily prepares) the pool directory layout at poolRoot and
// rebuilds both B-tree indices from their persisted snapshots.
// keepRootVersions bounds root history retention (spec.md §4.2).
func Open(poolRoot string, keepRootVersions int) (*Store, error) {
	for _, d := range []string{
		filepath.Join(poolRoot, "inodes"), filepath.Join(poolRoot, "extents"),
		filepath.Join(poolRoot, "extent_maps"), metadataDir(poolRoot), rootsDir(poolRoot),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, rfserr.NewIoError("mkdir", d, err)
		}
	}

	nextIno, err := loadNextIno(poolRoot)
	if err != nil {
		return nil, err
	}

	return &Store{
		poolRoot:     poolRoot,
		keepRoots:    keepRootVersions,
		inodeIdx:     LoadInodeIndex(inodeIndexPath(poolRoot)),
		extentMapIdx: LoadExtentMapIndex(extentMapIndexPath(poolRoot)),
		nextIno:      nextIno,
	}, nil
}

func loadNextIno(poolRoot string) (uint64, error) {
	raw, err := os.ReadFile(nextInoPath(poolRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return RootInode + 1, nil
		}
		return 0, rfserr.NewIoError("read", nextInoPath(poolRoot), err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, rfserr.NewCorruptedMetadata("next_ino", err.Error())
	}
	return n, nil
}

// Bootstrap creates the root directory inode (ino 1) and commits the
// initial root version if the pool has never been initialized. Safe to
// call on an already-initialized pool (a no-op).
func (s *Store) Bootstrap(sim *crashsim.Simulator) error {
	if _, err := s.LoadInode(RootInode); err == nil {
		return nil
	}

	now := time.Now()
	root := Inode{
		Ino: RootInode, ParentIno: RootInode, Type: InodeDir, Name: "/",
		Mode: 0o755, Atime: now, Mtime: now, Ctime: now,
	}
	if err := s.SaveInode(sim, &root); err != nil {
		return err
	}

	txn, err := s.BeginRootTransaction(sim)
	if err != nil {
		return err
	}
	txn.Root().NextInode = s.nextIno
	txn.Root().InodeCount = 1
	return txn.Commit()
}

// AllocateIno returns the next unused inode number, durably advancing the
// on-disk counter first.
func (s *Store) AllocateIno(sim *crashsim.Simulator) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ino := s.nextIno
	if err := durable.Write(sim, nextInoPath(s.poolRoot), []byte(uitoa(ino+1)), 0o644); err != nil {
		return 0, err
	}
	s.nextIno = ino + 1
	return ino, nil
}

// LoadInode returns the inode record for ino. A structurally corrupted
// record is a fatal CorruptedMetadata error (spec.md §4.2's failure
// semantics); a missing file falls back to the in-memory index before
// reporting NotFound.
func (s *Store) LoadInode(ino uint64) (Inode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := loadInode(s.poolRoot, ino)
	if err == nil {
		return n, nil
	}
	if rfserr.Is(err, rfserr.NotFound) {
		if cached, ok := s.inodeIdx.Get(ino); ok {
			return cached, nil
		}
	}
	return Inode{}, err
}

// SaveInode persists n and updates the inode_table index.
func (s *Store) SaveInode(sim *crashsim.Simulator, n *Inode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := saveInode(sim, s.poolRoot, n); err != nil {
		return err
	}
	s.inodeIdx.Put(*n)
	return s.inodeIdx.Save(sim, inodeIndexPath(s.poolRoot))
}

// DeleteInode removes ino's record and index entry.
func (s *Store) DeleteInode(sim *crashsim.Simulator, ino uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := deleteInode(s.poolRoot, ino); err != nil {
		return err
	}
	s.inodeIdx.Delete(ino)
	return s.inodeIdx.Save(sim, inodeIndexPath(s.poolRoot))
}

// ListDirectory returns every inode whose ParentIno is parent (excluding
// parent itself, so the self-parented root does not list itself).
func (s *Store) ListDirectory(parent uint64) []Inode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Inode
	s.inodeIdx.Ascend(func(n Inode) bool {
		if n.ParentIno == parent && n.Ino != parent {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindChild returns the child inode of parent named name, if any.
func (s *Store) FindChild(parent uint64, name string) (Inode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found Inode
	var ok bool
	s.inodeIdx.Ascend(func(n Inode) bool {
		if n.ParentIno == parent && n.Ino != parent && n.Name == name {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok
}

// LoadExtent returns the extent record for uid.
func (s *Store) LoadExtent(uid string) (Extent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadExtent(s.poolRoot, uid)
}

// SaveExtent persists e. Extents carry no index (spec.md §4.2 only indexes
// inode_table and extent_map_table).
func (s *Store) SaveExtent(sim *crashsim.Simulator, e *Extent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveExtent(sim, s.poolRoot, e)
}

// DeleteExtent removes uid's record.
func (s *Store) DeleteExtent(sim *crashsim.Simulator, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteExtent(s.poolRoot, uid)
}

// LoadExtentMap returns the extent map for ino.
func (s *Store) LoadExtentMap(ino uint64) (ExtentMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := loadExtentMap(s.poolRoot, ino)
	if err == nil {
		return m, nil
	}
	if rfserr.Is(err, rfserr.NotFound) {
		if cached, ok := s.extentMapIdx.Get(ino); ok {
			return cached, nil
		}
	}
	return ExtentMap{}, err
}

// SaveExtentMap persists m and updates the extent_map_table index.
func (s *Store) SaveExtentMap(sim *crashsim.Simulator, m *ExtentMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := saveExtentMap(sim, s.poolRoot, m); err != nil {
		return err
	}
	s.extentMapIdx.Put(*m)
	return s.extentMapIdx.Save(sim, extentMapIndexPath(s.poolRoot))
}

// DeleteExtentMap removes ino's extent map and index entry.
func (s *Store) DeleteExtentMap(sim *crashsim.Simulator, ino uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := deleteExtentMap(s.poolRoot, ino); err != nil {
		return err
	}
	s.extentMapIdx.Delete(ino)
	return s.extentMapIdx.Save(sim, extentMapIndexPath(s.poolRoot))
}

// ListExtentUIDs enumerates every extent record in the pool by directly
// listing the extents/ directory — extent records carry no index of their
// own (spec.md §4.2 only indexes inode_table and extent_map_table), so a
// full sweep (perform_mount_rebuild, scrub) has no faster path than this.
func (s *Store) ListExtentUIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(extentsDir(s.poolRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rfserr.NewIoError("readdir", extentsDir(s.poolRoot), err)
	}
	uids := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			uids = append(uids, ent.Name())
		}
	}
	return uids, nil
}

// CurrentRoot returns the latest valid committed root, per spec.md §4.2's
// recovery rule.
func (s *Store) CurrentRoot() (MetadataRoot, error) {
	return loadCurrentRoot(s.poolRoot)
}

// BeginRootTransaction exclusively acquires the pending-root slot and
// returns a transaction seeded from the current committed root. Only one
// root transaction may be open at a time.
func (s *Store) BeginRootTransaction(sim *crashsim.Simulator) (*RootTxn, error) {
	s.rootMu.Lock()
	prev, err := loadCurrentRoot(s.poolRoot)
	if err != nil {
		s.rootMu.Unlock()
		return nil, err
	}
	keep := s.keepRoots
	if keep <= 0 {
		keep = 16
	}
	return &RootTxn{
		poolRoot: s.poolRoot,
		sim:      sim,
		root:     newRootTxnRoot(prev),
		keep:     keep,
		release:  s.rootMu.Unlock,
	}, nil
}
