// Package storage implements the read/write orchestrator that ties the
// codec, metadata store, and placement engine together and enforces
// whole-operation atomicity (spec.md §4.4). Grounded on spec.md §4.4
// directly: no single teacher file implements a single-host whole-file
// storage engine (the teacher's nearest analog, `ais/prxtxn.go`, is an HTTP
// proxy transaction coordinator for a distributed cluster and was not
// reusable as a base — see DESIGN.md's dropped-dependency notes).
package storage

import "github.com/redfs/redfs/metadata"

// FsCapability is the narrow capability set the mount adapter (or any
// other collaborator) consumes, per spec.md §9's named re-architecture of
// the original's dynamic-dispatch filesystem façade into one fixed
// interface implemented once by Engine.
type FsCapability interface {
	ReadFile(ino uint64) ([]byte, error)
	WriteFile(ino uint64, data []byte) error
	CreateFile(parent uint64, name string) (metadata.Inode, error)
	CreateDir(parent uint64, name string) (metadata.Inode, error)
	DeleteFile(ino uint64) error
	DeleteDir(ino uint64) error
	GetInode(ino uint64) (metadata.Inode, error)
	ListDirectory(parent uint64) ([]metadata.Inode, error)
	FindChild(parent uint64, name string) (metadata.Inode, bool, error)
	UpdateInode(ino uint64, mutate func(*metadata.Inode)) (metadata.Inode, error)
	Stat(ino uint64) (metadata.Inode, error)
}

var _ FsCapability = (*Engine)(nil)
