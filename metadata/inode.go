package metadata

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// Inode is the persisted per-file/directory record (spec.md §3). Inode 1 is
// the root directory, self-parented.
type Inode struct {
	Ino       uint64            `json:"ino"`
	ParentIno uint64            `json:"parent_ino"`
	Type      InodeType         `json:"type"`
	Name      string            `json:"name"`
	Size      int64             `json:"size"`
	Atime     time.Time         `json:"atime"`
	Mtime     time.Time         `json:"mtime"`
	Ctime     time.Time         `json:"ctime"`
	UID       uint32            `json:"uid"`
	GID       uint32            `json:"gid"`
	Mode      uint32            `json:"mode"`
	Xattrs    map[string]string `json:"xattrs,omitempty"`
	ACL       []ACLEntry        `json:"acl,omitempty"`

	// Checksum is the embedded BLAKE3 digest over every other field,
	// computed with this field cleared (spec.md §4.2, §8's first testable
	// property). This is the inode's "optional self-checksum" from the
	// data model; it is populated by every Save and verified by every Load.
	Checksum string `json:"checksum"`

	// Unknown preserves fields written by a newer binary that this one
	// does not recognize, re-emitted verbatim on rewrite (spec.md §6).
	Unknown map[string]jsoniter.RawMessage `json:"-"`
}

var knownInodeFields = map[string]bool{
	"ino": true, "parent_ino": true, "type": true, "name": true, "size": true,
	"atime": true, "mtime": true, "ctime": true, "uid": true, "gid": true,
	"mode": true, "xattrs": true, "acl": true, "checksum": true,
}

func (n Inode) marshal() ([]byte, error) {
	known := map[string]jsoniter.RawMessage{
		"ino":        encodeField(n.Ino),
		"parent_ino": encodeField(n.ParentIno),
		"type":       encodeField(n.Type),
		"name":       encodeField(n.Name),
		"size":       encodeField(n.Size),
		"atime":      encodeField(n.Atime),
		"mtime":      encodeField(n.Mtime),
		"ctime":      encodeField(n.Ctime),
		"uid":        encodeField(n.UID),
		"gid":        encodeField(n.GID),
		"mode":       encodeField(n.Mode),
	}
	if len(n.Xattrs) > 0 {
		known["xattrs"] = encodeField(n.Xattrs)
	}
	if len(n.ACL) > 0 {
		known["acl"] = encodeField(n.ACL)
	}
	return marshalWithChecksum(known, n.Unknown, "checksum")
}

func unmarshalInode(raw []byte) (Inode, error) {
	m, err := verifyAndSplit(raw, "checksum", "inode")
	if err != nil {
		return Inode{}, err
	}
	var n Inode
	decodeField(m["ino"], &n.Ino)
	decodeField(m["parent_ino"], &n.ParentIno)
	decodeField(m["type"], &n.Type)
	decodeField(m["name"], &n.Name)
	decodeField(m["size"], &n.Size)
	decodeField(m["atime"], &n.Atime)
	decodeField(m["mtime"], &n.Mtime)
	decodeField(m["ctime"], &n.Ctime)
	decodeField(m["uid"], &n.UID)
	decodeField(m["gid"], &n.GID)
	decodeField(m["mode"], &n.Mode)
	decodeField(m["acl"], &n.ACL)
	if raw, ok := m["xattrs"]; ok {
		decodeField(raw, &n.Xattrs)
	}
	decodeField(m["checksum"], &n.Checksum)
	n.Unknown = map[string]jsoniter.RawMessage{}
	for k, v := range m {
		if !knownInodeFields[k] {
			n.Unknown[k] = v
		}
	}
	return n, nil
}

// saveInode writes n atomically to its well-known path, populating its
// checksum.
func saveInode(sim *crashsim.Simulator, poolRoot string, n *Inode) error {
	if err := sim.Check(crashsim.DuringInodeSave); err != nil {
		return err
	}
	raw, err := n.marshal()
	if err != nil {
		return err
	}
	path := inodePath(poolRoot, n.Ino)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rfserr.NewIoError("mkdir", filepath.Dir(path), err)
	}
	if err := durable.Write(sim, path, raw, 0o644); err != nil {
		return err
	}
	reloaded, err := unmarshalInode(raw)
	if err != nil {
		return err
	}
	n.Checksum = reloaded.Checksum
	return nil
}

func loadInode(poolRoot string, ino uint64) (Inode, error) {
	raw, err := os.ReadFile(inodePath(poolRoot, ino))
	if err != nil {
		if os.IsNotExist(err) {
			return Inode{}, rfserr.NewNotFound("inode")
		}
		return Inode{}, rfserr.NewIoError("read", inodePath(poolRoot, ino), err)
	}
	return unmarshalInode(raw)
}

func deleteInode(poolRoot string, ino uint64) error {
	if err := os.Remove(inodePath(poolRoot, ino)); err != nil && !os.IsNotExist(err) {
		return rfserr.NewIoError("remove", inodePath(poolRoot, ino), err)
	}
	return nil
}
