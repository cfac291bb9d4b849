package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// DirectoryDevice stores fragments as files under <path>/fragments/, per
// spec.md §6's directory-device layout.
type DirectoryDevice struct {
	mu   sync.Mutex
	root string
	meta *DiskMetadata
}

// OpenDirectory opens (or initializes, if absent) a directory device rooted
// at path. Grounded on the teacher's fs.MountedFS.Add lifecycle
// (fs/mountfs_test.go), generalized from "mountpath" to "device".
func OpenDirectory(path string, uid string, capacityBytes int64, tier Tier) (*DirectoryDevice, error) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return nil, rfserr.NewIoError("stat", path, err)
	}
	fragDir := filepath.Join(path, "fragments")
	if err := os.MkdirAll(fragDir, 0o755); err != nil {
		return nil, rfserr.NewIoError("mkdir", fragDir, err)
	}

	meta, err := loadDiskMetadata(diskJSONPath(path))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		meta = &DiskMetadata{
			UID:           uid,
			Path:          path,
			Kind:          KindDirectory,
			CapacityBytes: capacityBytes,
			Health:        HealthHealthy,
			Tier:          tier,
		}
		if err := saveDiskMetadata(nil, diskJSONPath(path), meta); err != nil {
			return nil, err
		}
	}
	return &DirectoryDevice{root: path, meta: meta}, nil
}

func (d *DirectoryDevice) UID() string          { return d.meta.UID }
func (d *DirectoryDevice) Kind() Kind           { return KindDirectory }
func (d *DirectoryDevice) Tier() Tier           { return d.meta.Tier }
func (d *DirectoryDevice) CapacityBytes() int64 { return d.meta.CapacityBytes }

func (d *DirectoryDevice) UsedBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.UsedBytes
}

func (d *DirectoryDevice) FreeBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	free := d.meta.CapacityBytes - d.meta.UsedBytes
	if free < 0 {
		return 0
	}
	return free
}

func (d *DirectoryDevice) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.Health
}

func (d *DirectoryDevice) SetHealth(h Health) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta.Health = h
	return saveDiskMetadata(nil, diskJSONPath(d.root), d.meta)
}

func (d *DirectoryDevice) fragPath(extentUID string, index int) string {
	return filepath.Join(d.root, "fragments", fmt.Sprintf("%s-%d.frag", extentUID, index))
}

func (d *DirectoryDevice) WriteFragment(sim *crashsim.Simulator, extentUID string, index int, data []byte) (FragmentLocation, error) {
	target := d.fragPath(extentUID, index)
	if err := durable.WriteFragment(sim, target, data, 0o644); err != nil {
		return FragmentLocation{}, err
	}
	d.mu.Lock()
	d.meta.UsedBytes += int64(len(data))
	_ = saveDiskMetadata(nil, diskJSONPath(d.root), d.meta)
	d.mu.Unlock()
	return FragmentLocation{DeviceUID: d.meta.UID, Index: index}, nil
}

func (d *DirectoryDevice) ReadFragment(extentUID string, loc FragmentLocation) ([]byte, error) {
	target := d.fragPath(extentUID, loc.Index)
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rfserr.NewNotFound(fmt.Sprintf("fragment %s-%d", extentUID, loc.Index))
		}
		return nil, rfserr.NewIoError("read", target, err)
	}
	return data, nil
}

func (d *DirectoryDevice) DeleteFragment(extentUID string, loc FragmentLocation) error {
	target := d.fragPath(extentUID, loc.Index)
	fi, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rfserr.NewIoError("stat", target, err)
	}
	if err := os.Remove(target); err != nil {
		return rfserr.NewIoError("remove", target, err)
	}
	d.mu.Lock()
	d.meta.UsedBytes -= fi.Size()
	if d.meta.UsedBytes < 0 {
		d.meta.UsedBytes = 0
	}
	_ = saveDiskMetadata(nil, diskJSONPath(d.root), d.meta)
	d.mu.Unlock()
	return nil
}

func (d *DirectoryDevice) HasFragment(extentUID string, index int) bool {
	_, err := os.Stat(d.fragPath(extentUID, index))
	return err == nil
}

func (d *DirectoryDevice) ListFragments() ([]FragmentRef, error) {
	fragDir := filepath.Join(d.root, "fragments")
	entries, err := os.ReadDir(fragDir)
	if err != nil {
		return nil, rfserr.NewIoError("readdir", fragDir, err)
	}
	var out []FragmentRef
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".frag")
		i := strings.LastIndex(name, "-")
		if i < 0 {
			continue
		}
		idx, err := strconv.Atoi(name[i+1:])
		if err != nil {
			continue
		}
		out = append(out, FragmentRef{ExtentUID: name[:i], Index: idx})
	}
	return out, nil
}

func (d *DirectoryDevice) Close() error { return nil }
