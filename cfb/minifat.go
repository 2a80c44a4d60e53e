package cfb

import "encoding/binary"

// The mini-FAT is the FAT-equivalent indexed by MiniSectorId; it lives in a
// chain of regular sectors starting at header.firstMiniFat. The mini-stream
// is a regular stream, owned by the root directory entry, that packs the
// 64-byte mini-sectors contiguously. Both chains are materialized in full
// on load (cf.miniFatChain, cf.miniStreamChain), matching the DIFAT's
// own full-materialization approach in difat.go.

func (cf *CompoundFile) loadMiniFat() error {
	if cf.header.firstMiniFat == SectorId(EndOfChain) || cf.header.numMiniFat == 0 {
		return nil
	}
	chain, err := chainList(cf.regularPool(), uint32(cf.header.firstMiniFat))
	if err != nil {
		return err
	}
	cf.miniFatChain = toSectorIds(chain)
	n := cf.entriesPerFatPage()
	buf := make([]byte, cf.sectorSize())
	entries := make([]SectorId, 0, uint32(len(cf.miniFatChain))*n)
	for _, sid := range cf.miniFatChain {
		if err := cf.store.readSector(sid, buf); err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			entries = append(entries, SectorId(binary.LittleEndian.Uint32(buf[i*4:i*4+4])))
		}
	}
	cf.miniFat = entries
	return nil
}

func (cf *CompoundFile) loadMiniStream() error {
	root := cf.entries[0]
	// loadMiniFat keeps every entry of the mini-FAT's sectors; only the
	// mini-sectors the root entry's length covers exist in the mini-stream.
	if units := (root.Size + miniSectorSize - 1) / miniSectorSize; uint64(len(cf.miniFat)) > units {
		cf.miniFat = cf.miniFat[:units]
	}
	if root.Start == SectorId(EndOfChain) {
		return nil
	}
	chain, err := chainList(cf.regularPool(), uint32(root.Start))
	if err != nil {
		return err
	}
	cf.miniStreamChain = toSectorIds(chain)
	return nil
}

// flushMiniFat rewrites the mini-FAT's backing sectors in full.
func (cf *CompoundFile) flushMiniFat() error {
	if len(cf.miniFatChain) == 0 {
		cf.header.firstMiniFat = SectorId(EndOfChain)
		cf.header.numMiniFat = 0
		return nil
	}
	n := int(cf.entriesPerFatPage())
	for secIdx, sid := range cf.miniFatChain {
		buf := make([]byte, cf.sectorSize())
		for i := 0; i < n; i++ {
			idx := secIdx*n + i
			v := FreeSect
			if idx < len(cf.miniFat) {
				v = cf.miniFat[idx]
			}
			binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
		}
		if err := cf.store.writeSector(sid, buf); err != nil {
			return err
		}
	}
	cf.header.firstMiniFat = cf.miniFatChain[0]
	cf.header.numMiniFat = uint32(len(cf.miniFatChain))
	return nil
}

// readMiniSector / writeMiniSector resolve a mini-sector id to its backing
// regular sector + byte offset.
func (cf *CompoundFile) miniSectorLocation(id uint32) (SectorId, int) {
	unitsPerSector := cf.sectorSize() / miniSectorSize
	sec := id / unitsPerSector
	off := int(id%unitsPerSector) * miniSectorSize
	return cf.miniStreamChain[sec], off
}

func (cf *CompoundFile) readMiniSector(id uint32, buf []byte) error {
	sid, off := cf.miniSectorLocation(id)
	return cf.store.readRange(sid, off, buf)
}

func (cf *CompoundFile) writeMiniSector(id uint32, buf []byte) error {
	sid, off := cf.miniSectorLocation(id)
	return cf.store.writeRange(sid, off, buf)
}
