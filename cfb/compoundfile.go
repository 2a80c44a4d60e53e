// Copyright 2013 Richard Lehane. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfb

import (
	"strings"
	"time"
)

// CompoundFile is the top-level handle coordinating the sector store,
// FAT/DIFAT, mini-FAT, directory and allocator. All state for a file lives
// here; stream views (Stream) hold only a back-reference to their owning
// CompoundFile plus their own cursor, per the single-owner cache model in
// the design notes.
type CompoundFile struct {
	store    *sectorStore
	header   *header
	readOnly bool

	// FAT
	fatPageSectors []SectorId       // DIFAT.lookup(k) for k in [0, len)
	difatChain     []SectorId       // physical DIFAT sectors, in chain order
	fatPages       map[uint32][]SectorId
	fatDirty       map[uint32]bool

	// MiniFAT / mini-stream, both backed by regular-FAT chains.
	miniFatChain    []SectorId // regular sectors backing the mini-FAT table
	miniFat         []SectorId // flat mini-FAT table, indexed by MiniSectorId
	miniStreamChain []SectorId // regular sectors backing the mini-stream bytes

	// Directory
	dirChain []SectorId
	entries  []*dirEntry

	openStreams map[StreamId]*Stream
}

func (cf *CompoundFile) sectorSize() uint32 { return cf.header.sectorSize() }

func (cf *CompoundFile) entriesPerFatPage() uint32 { return cf.sectorSize() / 4 }
func (cf *CompoundFile) entriesPerDifatPage() uint32 {
	return cf.sectorSize()/4 - 1
}
func (cf *CompoundFile) entriesPerDirSector() uint32 { return cf.sectorSize() / dirEntrySize }

// Open parses an existing compound file from medium. The handle is
// read/write if medium's WriteAt succeeds; callers that only have read
// access should still be able to call read-only operations, mutation calls
// will surface KindIO from the medium itself.
func Open(medium Medium) (*CompoundFile, error) {
	buf := make([]byte, headerLen)
	if _, err := medium.ReadAt(buf, 0); err != nil {
		return nil, ioErr("read header", err)
	}
	h, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	reserve := int64(h.sectorSize())
	if reserve < 512 {
		reserve = 512
	}
	if h.majorVersion == Version4 {
		tail := make([]byte, reserve-headerLen)
		if len(tail) > 0 {
			if _, err := medium.ReadAt(tail, headerLen); err != nil {
				return nil, ioErr("read header tail", err)
			}
			for _, b := range tail {
				if b != 0 {
					return nil, newErr(KindCorruptHeader, "v4 header tail must be zeroed")
				}
			}
		}
	}
	// discover file length in sectors by probing; callers pass media whose
	// size is a whole number of header-reserve + n*sectorSize.
	numSectors, err := probeSectorCount(medium, reserve, h.sectorSize())
	if err != nil {
		return nil, err
	}
	cf := &CompoundFile{
		header:      h,
		store:       newSectorStore(medium, h.sectorSize(), numSectors),
		fatDirty:    make(map[uint32]bool),
		fatPages:    make(map[uint32][]SectorId),
		openStreams: make(map[StreamId]*Stream),
	}
	if err := cf.loadDifat(); err != nil {
		return nil, err
	}
	if err := cf.loadMiniFat(); err != nil {
		return nil, err
	}
	if err := cf.loadDirectory(); err != nil {
		return nil, err
	}
	if err := cf.loadMiniStream(); err != nil {
		return nil, err
	}
	if err := cf.validateRoot(); err != nil {
		return nil, err
	}
	return cf, nil
}

// probeSectorCount determines how many sectors already exist past the
// header reserve by binary-searching medium.ReadAt for the first failing
// offset. Most callers back the medium with *os.File, where the size is
// known; this keeps Medium's surface minimal (no Size method required).
func probeSectorCount(medium Medium, reserve int64, sectorSize uint32) (uint32, error) {
	one := make([]byte, 1)
	lo, hi := uint32(0), uint32(1)
	readable := func(n uint32) bool {
		if n == 0 {
			return true
		}
		off := reserve + int64(n)*int64(sectorSize) - 1
		_, err := medium.ReadAt(one, off)
		return err == nil
	}
	if !readable(1) {
		return 0, nil
	}
	for readable(hi) {
		lo = hi
		hi *= 2
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if readable(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// OpenReadOnly is like Open but rejects every mutating operation up front
// with KindReadOnly instead of relying on the medium itself to refuse
// writes.
func OpenReadOnly(medium Medium) (*CompoundFile, error) {
	cf, err := Open(medium)
	if err != nil {
		return nil, err
	}
	cf.readOnly = true
	return cf, nil
}

func (cf *CompoundFile) validateRoot() error {
	if len(cf.entries) == 0 {
		return newErr(KindCorruptDirectory, "missing root entry")
	}
	root := cf.entries[0]
	if root.ObjectType != objRootStorage {
		return newErr(KindCorruptDirectory, "entry 0 is not the root storage")
	}
	if root.Name != "Root Entry" {
		return newErr(KindCorruptDirectory, "root entry has wrong name")
	}
	if root.Left != NoStream || root.Right != NoStream {
		return newErr(KindCorruptDirectory, "root entry must have no siblings")
	}
	return nil
}

// Create initializes a brand-new, empty compound file (root storage only)
// on medium and returns a writable handle. Call Flush to persist it.
func Create(medium Medium, version Version) (*CompoundFile, error) {
	if version != Version3 && version != Version4 {
		return nil, newErr(KindUnsupportedVersion, "version must be 3 or 4")
	}
	h := newEmptyHeader(version)
	cf := &CompoundFile{
		header:      h,
		store:       newSectorStore(medium, h.sectorSize(), 0),
		fatDirty:    make(map[uint32]bool),
		fatPages:    make(map[uint32][]SectorId),
		openStreams: make(map[StreamId]*Stream),
	}
	root := &dirEntry{
		Name:       "Root Entry",
		ObjectType: objRootStorage,
		Color:      colorBlack,
		Left:       NoStream,
		Right:      NoStream,
		Child:      NoStream,
		Start:      SectorId(EndOfChain),
	}
	encodeName(root)
	cf.entries = []*dirEntry{root}
	if err := cf.growDirectoryIfNeeded(); err != nil {
		return nil, err
	}
	return cf, nil
}

// Root returns StreamId 0, the root storage.
func (cf *CompoundFile) Root() StreamId { return 0 }

func (cf *CompoundFile) CLSID() [16]byte { return cf.entries[0].CLSID }

// Exists reports whether path resolves to any entry.
func (cf *CompoundFile) Exists(path string) bool {
	_, err := cf.resolve(path)
	return err == nil
}

// Entry returns metadata for the entry at path.
func (cf *CompoundFile) Entry(path string) (EntryInfo, error) {
	id, err := cf.resolve(path)
	if err != nil {
		return EntryInfo{}, err
	}
	return cf.entryInfo(id), nil
}

func (cf *CompoundFile) entryInfo(id StreamId) EntryInfo {
	e := cf.entries[id]
	return EntryInfo{
		Name:      e.Name,
		IsStorage: e.ObjectType == objStorage || e.ObjectType == objRootStorage,
		IsStream:  e.ObjectType == objStream,
		CLSID:     e.CLSID,
		StateBits: e.StateBits,
		Created:   filetimeToTime(e.Created),
		Modified:  filetimeToTime(e.Modified),
		Length:    e.Size,
	}
}

// Walk returns the children of the storage at path, in stored (red-black
// in-order) order.
func (cf *CompoundFile) Walk(path string) ([]EntryInfo, error) {
	id, err := cf.resolve(path)
	if err != nil {
		return nil, err
	}
	e := cf.entries[id]
	if e.ObjectType != objStorage && e.ObjectType != objRootStorage {
		return nil, newErr(KindNotAStorage, path)
	}
	ids := cf.inorder(e.Child)
	out := make([]EntryInfo, len(ids))
	for i, cid := range ids {
		out[i] = cf.entryInfo(cid)
	}
	return out, nil
}

// OpenStream returns a random-access view over the stream at path.
func (cf *CompoundFile) OpenStream(path string) (*Stream, error) {
	id, err := cf.resolve(path)
	if err != nil {
		return nil, err
	}
	e := cf.entries[id]
	if e.ObjectType != objStream {
		return nil, newErr(KindNotAStream, path)
	}
	if sv, ok := cf.openStreams[id]; ok {
		return sv, nil
	}
	sv := cf.newStreamView(id)
	cf.openStreams[id] = sv
	return sv, nil
}

// CreateStream creates a new, empty stream at path and returns a view over
// it. The parent storage must already exist.
func (cf *CompoundFile) CreateStream(path string) (*Stream, error) {
	id, err := cf.createEntry(path, objStream)
	if err != nil {
		return nil, err
	}
	sv := cf.newStreamView(id)
	cf.openStreams[id] = sv
	return sv, nil
}

// CreateStorage creates a new, empty storage at path.
func (cf *CompoundFile) CreateStorage(path string) error {
	_, err := cf.createEntry(path, objStorage)
	return err
}

func (cf *CompoundFile) createEntry(path string, kind uint8) (StreamId, error) {
	if cf.readOnly {
		return 0, newErr(KindReadOnly, path)
	}
	parentPath, name, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	parentID, err := cf.resolve(parentPath)
	if err != nil {
		return 0, err
	}
	parent := cf.entries[parentID]
	if parent.ObjectType != objStorage && parent.ObjectType != objRootStorage {
		return 0, newErr(KindNotAStorage, parentPath)
	}
	if err := validateName(name); err != nil {
		return 0, err
	}
	if _, err := cf.findChild(parent.Child, name); err == nil {
		return 0, newErr(KindAlreadyExists, name)
	}
	id, err := cf.allocDirSlot()
	if err != nil {
		return 0, err
	}
	e := cf.entries[id]
	*e = dirEntry{
		Name:       name,
		ObjectType: kind,
		Left:       NoStream,
		Right:      NoStream,
		Child:      NoStream,
		Start:      SectorId(EndOfChain),
		Created:    timeToFiletime(time.Now()),
		Modified:   timeToFiletime(time.Now()),
	}
	encodeName(e)
	newChild, err := cf.insertChild(parent.Child, id)
	if err != nil {
		cf.freeDirSlot(id)
		return 0, err
	}
	parent.Child = newChild
	return id, nil
}

// RemoveStream deletes the stream at path.
func (cf *CompoundFile) RemoveStream(path string) error {
	return cf.removeEntry(path, objStream)
}

// RemoveStorage deletes the (empty) storage at path.
func (cf *CompoundFile) RemoveStorage(path string) error {
	return cf.removeEntry(path, objStorage)
}

func (cf *CompoundFile) removeEntry(path string, wantKind uint8) error {
	if cf.readOnly {
		return newErr(KindReadOnly, path)
	}
	if path == "" || path == "/" {
		return newErr(KindIsRoot, path)
	}
	parentPath, _, err := splitPath(path)
	if err != nil {
		return err
	}
	id, err := cf.resolve(path)
	if err != nil {
		return err
	}
	e := cf.entries[id]
	if e.ObjectType != wantKind {
		if wantKind == objStream {
			return newErr(KindNotAStream, path)
		}
		return newErr(KindNotAStorage, path)
	}
	if e.ObjectType != objStream && e.Child != NoStream {
		return newErr(KindNotEmpty, path)
	}
	if e.ObjectType == objStream {
		delete(cf.openStreams, id)
		if e.Size > 0 {
			if err := cf.freeEntryContent(e); err != nil {
				return err
			}
		}
	}
	parentID, err := cf.resolve(parentPath)
	if err != nil {
		return err
	}
	parent := cf.entries[parentID]
	newChild, err := cf.removeChild(parent.Child, id)
	if err != nil {
		return err
	}
	parent.Child = newChild
	return nil
}

// Rename changes the name of the entry at path.
func (cf *CompoundFile) Rename(path, newName string) error {
	if cf.readOnly {
		return newErr(KindReadOnly, path)
	}
	if path == "" || path == "/" {
		return newErr(KindIsRoot, path)
	}
	if err := validateName(newName); err != nil {
		return err
	}
	parentPath, _, err := splitPath(path)
	if err != nil {
		return err
	}
	id, err := cf.resolve(path)
	if err != nil {
		return err
	}
	parentID, err := cf.resolve(parentPath)
	if err != nil {
		return err
	}
	parent := cf.entries[parentID]
	if other, err := cf.findChild(parent.Child, newName); err == nil && other != id {
		return newErr(KindAlreadyExists, newName)
	}
	saved, sv := *cf.entries[id], cf.openStreams[id]
	delete(cf.openStreams, id)
	newChild, err := cf.removeChild(parent.Child, id)
	if err != nil {
		return err
	}
	parent.Child = newChild
	if id, err = cf.allocDirSlot(); err != nil {
		return err
	}
	e := cf.entries[id]
	*e = saved
	e.Left, e.Right, e.Name = NoStream, NoStream, newName
	encodeName(e)
	newChild, err = cf.insertChild(parent.Child, id)
	if err != nil {
		return err
	}
	parent.Child = newChild
	if sv != nil {
		sv.id = id
		cf.openStreams[id] = sv
	}
	return nil
}

// SetCLSID sets the storage-class CLSID of the storage at path.
func (cf *CompoundFile) SetCLSID(path string, clsid [16]byte) error {
	if cf.readOnly {
		return newErr(KindReadOnly, path)
	}
	id, err := cf.resolve(path)
	if err != nil {
		return err
	}
	e := cf.entries[id]
	if e.ObjectType == objStream {
		return newErr(KindNotAStorage, path)
	}
	e.CLSID = clsid
	return nil
}

// Flush writes every modified structure back to the medium in the order the
// format requires: FAT pages, mini-FAT sectors, mini-stream sectors (already
// write-through from Stream.Write, so no separate step is needed here),
// directory sectors, DIFAT sectors, then the header itself.
func (cf *CompoundFile) Flush() error {
	if cf.readOnly {
		return newErr(KindReadOnly, "")
	}
	for _, s := range cf.openStreams {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	root := cf.entries[0]
	root.Size = uint64(len(cf.miniFat)) * miniSectorSize
	cf.header.rootCLSID = root.CLSID
	if err := cf.flushDirtyFat(); err != nil {
		return err
	}
	if err := cf.flushMiniFat(); err != nil {
		return err
	}
	if err := cf.flushDirectory(); err != nil {
		return err
	}
	if err := cf.flushDifat(); err != nil {
		return err
	}
	// A second pass over the FAT pages; the flush steps above only write
	// and never allocate, so it normally finds no page still dirty.
	if err := cf.flushDirtyFat(); err != nil {
		return err
	}
	if _, err := cf.store.medium.WriteAt(cf.header.serialize(), 0); err != nil {
		return ioErr("write header", err)
	}
	return nil
}

// Close flushes pending changes (if the handle is writable) and drops the
// in-memory handle; there is nothing further to release since Medium has no
// Close of its own.
func (cf *CompoundFile) Close() error {
	if cf.readOnly {
		return nil
	}
	return cf.Flush()
}

// SetStateBits sets the opaque, format-reserved state-bits field.
func (cf *CompoundFile) SetStateBits(path string, v uint32) error {
	if cf.readOnly {
		return newErr(KindReadOnly, path)
	}
	id, err := cf.resolve(path)
	if err != nil {
		return err
	}
	cf.entries[id].StateBits = v
	return nil
}

// resolve walks a '/'-delimited path, per the rules in the directory
// component: '.' and empty components are the current storage, an empty
// path or a sole '/' refers to the root, and a trailing '/' is ignored.
func (cf *CompoundFile) resolve(path string) (StreamId, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" || path == "." {
		return 0, nil
	}
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	cur := StreamId(0)
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		e := cf.entries[cur]
		if e.ObjectType != objStorage && e.ObjectType != objRootStorage {
			return 0, newErr(KindNotAStorage, path)
		}
		child, err := cf.findChild(e.Child, part)
		if err != nil {
			return 0, err
		}
		cur = child
	}
	return cur, nil
}

func splitPath(path string) (parent, name string, err error) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		if path == "" {
			return "", "", newErr(KindInvalidName, path)
		}
		return "/", path, nil
	}
	return "/" + path[:idx], path[idx+1:], nil
}
