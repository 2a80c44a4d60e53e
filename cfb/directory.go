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

import "encoding/binary"

// dirEntry is the in-memory, decoded form of a 128-byte directory record.
// Left/Right/Child are StreamIds, used as arena indices into
// CompoundFile.entries rather than pointers: the red-black tree has no
// representation beyond these three fields plus Color.
type dirEntry struct {
	Name       string
	RawName    [32]uint16
	NameLen    uint16
	ObjectType uint8
	Color      uint8
	Left       StreamId
	Right      StreamId
	Child      StreamId
	CLSID      [16]byte
	StateBits  uint32
	Created    uint64 // raw FILETIME
	Modified   uint64
	Start      SectorId
	Size       uint64
}

func (cf *CompoundFile) loadDirectory() error {
	chain, err := chainList(cf.regularPool(), uint32(cf.header.firstDirSector))
	if err != nil {
		return err
	}
	cf.dirChain = toSectorIds(chain)
	perSector := int(cf.entriesPerDirSector())
	buf := make([]byte, dirEntrySize)
	entries := make([]*dirEntry, 0, len(cf.dirChain)*perSector)
	for _, sid := range cf.dirChain {
		for i := 0; i < perSector; i++ {
			if err := cf.store.readRange(sid, i*dirEntrySize, buf); err != nil {
				return err
			}
			e, err := parseDirEntry(buf)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}
	cf.entries = entries
	return nil
}

func parseDirEntry(buf []byte) (*dirEntry, error) {
	e := &dirEntry{}
	for i := 0; i < 32; i++ {
		e.RawName[i] = binary.LittleEndian.Uint16(buf[i*2 : i*2+2])
	}
	e.NameLen = binary.LittleEndian.Uint16(buf[64:66])
	e.ObjectType = buf[66]
	e.Color = buf[67]
	e.Left = StreamId(binary.LittleEndian.Uint32(buf[68:72]))
	e.Right = StreamId(binary.LittleEndian.Uint32(buf[72:76]))
	e.Child = StreamId(binary.LittleEndian.Uint32(buf[76:80]))
	copy(e.CLSID[:], buf[80:96])
	e.StateBits = binary.LittleEndian.Uint32(buf[96:100])
	e.Created = binary.LittleEndian.Uint64(buf[100:108])
	e.Modified = binary.LittleEndian.Uint64(buf[108:116])
	e.Start = SectorId(binary.LittleEndian.Uint32(buf[116:120]))
	e.Size = binary.LittleEndian.Uint64(buf[120:128])
	if e.ObjectType > objRootStorage {
		return nil, newErr(KindCorruptDirectory, "invalid object type")
	}
	e.Name = decodeName(e.RawName, e.NameLen)
	return e, nil
}

func serializeDirEntry(e *dirEntry) []byte {
	buf := make([]byte, dirEntrySize)
	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], e.RawName[i])
	}
	binary.LittleEndian.PutUint16(buf[64:66], e.NameLen)
	buf[66] = e.ObjectType
	buf[67] = e.Color
	binary.LittleEndian.PutUint32(buf[68:72], uint32(e.Left))
	binary.LittleEndian.PutUint32(buf[72:76], uint32(e.Right))
	binary.LittleEndian.PutUint32(buf[76:80], uint32(e.Child))
	copy(buf[80:96], e.CLSID[:])
	binary.LittleEndian.PutUint32(buf[96:100], e.StateBits)
	binary.LittleEndian.PutUint64(buf[100:108], e.Created)
	binary.LittleEndian.PutUint64(buf[108:116], e.Modified)
	binary.LittleEndian.PutUint32(buf[116:120], uint32(e.Start))
	binary.LittleEndian.PutUint64(buf[120:128], e.Size)
	return buf
}

// flushDirectory writes every directory slot back. Like DIFAT, the
// directory is small relative to stream content in the files this package
// targets, so gocfb rewrites it in full on every flush rather than tracking
// per-slot dirty bits.
func (cf *CompoundFile) flushDirectory() error {
	perSector := int(cf.entriesPerDirSector())
	for secIdx, sid := range cf.dirChain {
		buf := make([]byte, cf.sectorSize())
		for i := 0; i < perSector; i++ {
			idx := secIdx*perSector + i
			var rec []byte
			if idx < len(cf.entries) {
				rec = serializeDirEntry(cf.entries[idx])
			} else {
				rec = make([]byte, dirEntrySize)
			}
			copy(buf[i*dirEntrySize:(i+1)*dirEntrySize], rec)
		}
		if err := cf.store.writeSector(sid, buf); err != nil {
			return err
		}
	}
	cf.header.firstDirSector = cf.dirChain[0]
	if cf.header.majorVersion == Version4 {
		cf.header.numDirSectors = uint32(len(cf.dirChain))
	} else {
		cf.header.numDirSectors = 0
	}
	return nil
}

// allocDirSlot returns the id of a free (ObjectType == unknown) directory
// slot, growing the directory stream by one sector if none is free.
func (cf *CompoundFile) allocDirSlot() (StreamId, error) {
	for i, e := range cf.entries {
		if e.ObjectType == objUnknown {
			return StreamId(i), nil
		}
	}
	if err := cf.growDirectoryIfNeeded(); err != nil {
		return 0, err
	}
	for i, e := range cf.entries {
		if e.ObjectType == objUnknown {
			return StreamId(i), nil
		}
	}
	return 0, newErr(KindCorruptDirectory, "directory growth did not yield a free slot")
}

func (cf *CompoundFile) freeDirSlot(id StreamId) {
	cf.entries[id] = &dirEntry{}
}

// growDirectoryIfNeeded ensures the directory stream has at least one more
// sector's worth of (zeroed, free) slots; called both to seed the very
// first directory sector on Create and whenever allocDirSlot runs dry.
func (cf *CompoundFile) growDirectoryIfNeeded() error {
	perSector := int(cf.entriesPerDirSector())
	if len(cf.dirChain) > 0 && len(cf.entries) < len(cf.dirChain)*perSector {
		return nil
	}
	pool := cf.regularPool()
	var newSectors []uint32
	var err error
	if len(cf.dirChain) == 0 {
		newSectors, err = allocChain(pool, 1)
		if err != nil {
			return err
		}
		cf.header.firstDirSector = SectorId(newSectors[0])
	} else {
		tail := uint32(cf.dirChain[len(cf.dirChain)-1])
		if err := extendChain(pool, tail, 1); err != nil {
			return err
		}
		next, err := pool.get(tail)
		if err != nil {
			return err
		}
		newSectors = []uint32{next}
	}
	for _, s := range newSectors {
		cf.dirChain = append(cf.dirChain, SectorId(s))
	}
	// Pad entries up to exactly the new capacity: Create pre-seeds entries
	// with the root entry before any sector exists, so the first grow must
	// add capacity-1 slots, not a blind perSector.
	capacity := len(cf.dirChain) * perSector
	for len(cf.entries) < capacity {
		cf.entries = append(cf.entries, &dirEntry{})
	}
	return nil
}

// findChild looks up name among the siblings rooted at child, per the
// canonical CFB ordering key.
func (cf *CompoundFile) findChild(child StreamId, name string) (StreamId, error) {
	cur := child
	for cur != NoStream {
		e := cf.entries[cur]
		c := compareNames(name, e.Name)
		switch {
		case c == 0:
			return cur, nil
		case c < 0:
			cur = e.Left
		default:
			cur = e.Right
		}
	}
	return 0, newErr(KindNotFound, name)
}

// inorder returns the in-order traversal of the subtree rooted at root.
func (cf *CompoundFile) inorder(root StreamId) []StreamId {
	var out []StreamId
	var walk func(StreamId)
	walk = func(id StreamId) {
		if id == NoStream {
			return
		}
		e := cf.entries[id]
		walk(e.Left)
		out = append(out, id)
		walk(e.Right)
	}
	walk(root)
	return out
}

func toSectorIds(ids []uint32) []SectorId {
	out := make([]SectorId, len(ids))
	for i, v := range ids {
		out[i] = SectorId(v)
	}
	return out
}
