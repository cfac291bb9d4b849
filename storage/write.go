package storage

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/placement"
	"github.com/redfs/redfs/rfserr"
)

// WriteFile implements FsCapability (spec.md §4.4): only offset 0 is
// supported, data is chunked at config.ExtentSize, and no metadata is
// persisted until every fragment of every chunk is durable.
func (e *Engine) WriteFile(ino uint64, data []byte) error {
	n, err := e.store.LoadInode(ino)
	if err != nil {
		return err
	}
	if n.Type != metadata.InodeFile {
		return rfserr.NewUnsupported("not a regular file")
	}

	newExtents, err := e.placeChunks(data)
	if err != nil {
		return err
	}

	if err := e.commitExtents(&n, newExtents); err != nil {
		e.rollbackExtents(newExtents)
		return err
	}
	return nil
}

// chunkJob is one ExtentSize-bounded slice of a write_file's data, carrying
// its position so results land back in file-offset order regardless of
// which goroutine finishes first.
type chunkJob struct {
	index int
	data  []byte
}

// placeChunks splits data at ExtentSize boundaries and places every chunk,
// coalescing chunks into WriteBatchMaxOps-sized groups placed in parallel
// via concurrency.Batcher (spec.md §5's write-batcher, generalizing
// original_source/src/write_optimizer.rs's WriteBatcher from one caller's
// writes to one call's chunk set). Any chunk's placement failure rolls
// back everything placed so far — the whole-file write either fully
// succeeds at the placement stage or leaves no new fragments behind
// (spec.md §4.4's write atomicity).
func (e *Engine) placeChunks(data []byte) ([]*metadata.Extent, error) {
	if len(data) == 0 {
		return nil, nil
	}

	chunkSize := e.cfg.ExtentSize
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}

	var jobs []chunkJob
	for off, idx := int64(0), 0; off < int64(len(data)); off, idx = off+chunkSize, idx+1 {
		end := off + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		jobs = append(jobs, chunkJob{index: idx, data: data[off:end]})
	}

	extents := make([]*metadata.Extent, len(jobs))
	var mu sync.Mutex
	var firstErr error

	batcher := concurrency.NewBatcher(e.cfg.WriteBatchMaxOps, e.cfg.WriteBatchMaxDelay, func(batch concurrency.Batch) {
		var wg sync.WaitGroup
		wg.Add(len(batch.Items))
		for _, item := range batch.Items {
			job := item.(chunkJob)
			go func(job chunkJob) {
				defer wg.Done()
				policy := RecommendWritePolicy(e.cfg, int64(len(job.data)))
				sum := codec.Checksum(job.data)
				checksum := hex.EncodeToString(sum[:])

				ext, err := placement.PlaceExtent(e.sim, e.sched, e.pool, job.data, checksum, policy, device.TierHot)

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					extents[job.index] = ext
				}
				mu.Unlock()
			}(job)
		}
		wg.Wait()
	})

	for _, job := range jobs {
		batcher.Add(job)
	}
	batcher.Flush()

	if firstErr != nil {
		e.rollbackExtents(extents)
		return nil, firstErr
	}
	return extents, nil
}

func (e *Engine) rollbackExtents(extents []*metadata.Extent) {
	for _, ext := range extents {
		if ext == nil {
			continue
		}
		for _, loc := range ext.FragmentLocations {
			if h, ok := e.pool.ByUID(loc.DeviceUID); ok {
				_ = h.DeleteFragment(ext.UID, loc)
			}
		}
	}
}

// commitExtents persists, in order, every extent record, then the
// extent-map, then the inode's size/mtime — spec.md §4.4's ordering, which
// §5 also states as an ordering guarantee readers rely on. The whole
// sequence runs as one GroupCommit operation (spec.md §5's group-commit
// coordinator): concurrent callers' commits batch together up to
// GroupCommitMaxOps or GroupCommitMaxDelay, and every inode mtime in a
// batch takes the same consistent timestamp.
func (e *Engine) commitExtents(n *metadata.Inode, extents []*metadata.Extent) error {
	return e.groupCommit.Submit(func(ts time.Time) error {
		uids := make([]string, len(extents))
		for i, ext := range extents {
			if err := e.store.SaveExtent(e.sim, ext); err != nil {
				return err
			}
			uids[i] = ext.UID
		}

		em := metadata.ExtentMap{Ino: n.Ino, ExtentUIDs: uids}
		if err := e.store.SaveExtentMap(e.sim, &em); err != nil {
			return err
		}

		size := int64(0)
		for _, ext := range extents {
			size += ext.SizeBytes
		}
		n.Size = size
		n.Mtime = ts
		return e.store.SaveInode(e.sim, n)
	})
}

// ChangeFileRedundancy implements change_file_redundancy (spec.md §4.4):
// every extent of ino is rebundled to newPolicy, skipping any already at
// that policy. The file remains readable throughout since each extent's
// rw-lock only blocks concurrent access to that one extent, not the whole
// file.
func (e *Engine) ChangeFileRedundancy(ino uint64, newPolicy codec.Policy) error {
	em, err := e.store.LoadExtentMap(ino)
	if err != nil {
		return err
	}

	for _, uid := range em.ExtentUIDs {
		if err := e.rebundleOne(uid, newPolicy); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rebundleOne(extentUID string, newPolicy codec.Policy) error {
	unlock := e.locks.Lock(extentUID)
	defer unlock()

	ext, err := e.store.LoadExtent(extentUID)
	if err != nil {
		return err
	}
	if ext.Policy.Equal(newPolicy) {
		return nil
	}

	fragments, err := e.readAllFragments(&ext)
	if err != nil {
		return err
	}

	if err := placement.RebundleExtent(e.sim, e.sched, e.pool, &ext, fragments, newPolicy, device.TierHot); err != nil {
		return err
	}
	return e.store.SaveExtent(e.sim, &ext)
}

func (e *Engine) readAllFragments(ext *metadata.Extent) ([][]byte, error) {
	fragments := make([][]byte, ext.Policy.FragmentCount())
	for _, loc := range ext.FragmentLocations {
		h, ok := e.pool.ByUID(loc.DeviceUID)
		if !ok {
			continue
		}
		data, err := h.ReadFragment(ext.UID, loc)
		if err == nil {
			fragments[loc.Index] = data
		}
	}
	return fragments, nil
}
