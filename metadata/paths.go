package metadata

import (
	"path/filepath"
	"strconv"
)

func uitoa(n uint64) string { return strconv.FormatUint(n, 10) }

func inodePath(poolRoot string, ino uint64) string {
	return filepath.Join(poolRoot, "inodes", uitoa(ino))
}

func extentPath(poolRoot string, uid string) string {
	return filepath.Join(poolRoot, "extents", uid)
}

func extentsDir(poolRoot string) string { return filepath.Join(poolRoot, "extents") }

func extentMapPath(poolRoot string, ino uint64) string {
	return filepath.Join(poolRoot, "extent_maps", uitoa(ino))
}

func metadataDir(poolRoot string) string { return filepath.Join(poolRoot, "metadata") }

func nextInoPath(poolRoot string) string { return filepath.Join(metadataDir(poolRoot), "next_ino") }

func inodeIndexPath(poolRoot string) string {
	return filepath.Join(metadataDir(poolRoot), "inodes.btree")
}

func extentMapIndexPath(poolRoot string) string {
	return filepath.Join(metadataDir(poolRoot), "extent_maps.btree")
}

func rootsDir(poolRoot string) string { return filepath.Join(metadataDir(poolRoot), "roots") }

func rootVersionPath(poolRoot string, v uint64) string {
	return filepath.Join(rootsDir(poolRoot), "root."+uitoa(v))
}

func currentRootPath(poolRoot string) string { return filepath.Join(rootsDir(poolRoot), "current") }
