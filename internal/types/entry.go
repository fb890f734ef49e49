package types

import (
	"fmt"
	"time"
)

// EntryKind tags the variant of a RemoteEntry
type EntryKind int

const (
	KindFolder EntryKind = iota
	KindFile
	KindAlbum
	KindAsset
)

func (k EntryKind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	case KindAlbum:
		return "album"
	case KindAsset:
		return "asset"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON output
func (k EntryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsContainer reports whether entries of this kind have children
func (k EntryKind) IsContainer() bool {
	switch k {
	case KindFolder, KindAlbum:
		return true
	case KindFile, KindAsset:
		return false
	}
	return false
}

// RemoteEntry is one node of a remote tree. Values are never mutated after
// a listing call produces them.
type RemoteEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         EntryKind `json:"kind"`
	Size         int64     `json:"size,omitempty"`
	ContentHash  string    `json:"contentHash,omitempty"` // hex MD5
	ModifiedTime time.Time `json:"modifiedTime,omitempty"`
}

// IsContainer reports whether the entry is a folder or an album
func (e RemoteEntry) IsContainer() bool {
	return e.Kind.IsContainer()
}

// SelectorKind tags the variant of a Selector
type SelectorKind int

const (
	SelectByPath SelectorKind = iota
	SelectByName
	SelectByID
	SelectAllDrive
	SelectAllPhotos
)

// Selector describes which part of the remote tree a run operates on
type Selector struct {
	Kind  SelectorKind
	Value string
}

func ByPath(path string) Selector { return Selector{Kind: SelectByPath, Value: path} }
func ByName(name string) Selector { return Selector{Kind: SelectByName, Value: name} }
func ByID(id string) Selector     { return Selector{Kind: SelectByID, Value: id} }
func AllDrive() Selector          { return Selector{Kind: SelectAllDrive} }
func AllPhotos() Selector         { return Selector{Kind: SelectAllPhotos} }

func (s Selector) String() string {
	switch s.Kind {
	case SelectByPath:
		return "path:" + s.Value
	case SelectByName:
		return "album:" + s.Value
	case SelectByID:
		return "album-id:" + s.Value
	case SelectAllDrive:
		return "drive:*"
	case SelectAllPhotos:
		return "photos:*"
	}
	return fmt.Sprintf("selector(%d):%s", int(s.Kind), s.Value)
}

// Root is a resolved selector: the entry to expand and the path, relative to
// the destination root, that it is mirrored under.
type Root struct {
	Entry   RemoteEntry
	RelPath string
}
