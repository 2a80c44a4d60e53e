package cfb

import "encoding/binary"

// The DIFAT is the (possibly chained) index of sectors that together form
// the FAT: DIFAT.lookup(k) is the sector holding FAT page k. The first 109
// entries live in the header; overflow entries live in a chain of DIFAT
// sectors, each holding (sectorSize/4 - 1) entries plus a trailing pointer
// to the next DIFAT sector. gocfb materializes the whole lookup table as
// cf.fatPageSectors, since the table's natural size (one entry per FAT
// page, each page covering 128-1024 sectors) stays small even for large
// files.

func (cf *CompoundFile) loadDifat() error {
	n := int(cf.header.numFatSectors)
	entries := make([]SectorId, 0, n)
	for i := 0; i < 109 && len(entries) < n; i++ {
		entries = append(entries, cf.header.initialDifat[i])
	}
	cf.difatChain = nil
	if cf.header.numDifat > 0 {
		sid := cf.header.firstDifat
		perPage := int(cf.entriesPerDifatPage())
		buf := make([]byte, cf.sectorSize())
		for i := 0; i < int(cf.header.numDifat) && sid != SectorId(EndOfChain); i++ {
			if err := cf.store.readSector(sid, buf); err != nil {
				return err
			}
			cf.difatChain = append(cf.difatChain, sid)
			for j := 0; j < perPage && len(entries) < n; j++ {
				entries = append(entries, SectorId(binary.LittleEndian.Uint32(buf[j*4:j*4+4])))
			}
			sid = SectorId(binary.LittleEndian.Uint32(buf[perPage*4 : perPage*4+4]))
		}
	}
	cf.fatPageSectors = entries
	return nil
}

// lookup returns the k'th FAT-page sector id.
func (cf *CompoundFile) difatLookup(k uint32) (SectorId, error) {
	if k >= uint32(len(cf.fatPageSectors)) {
		return 0, newErrVal(KindOutOfRange, "difat index out of range", int64(k))
	}
	return cf.fatPageSectors[k], nil
}

// difatAppend registers a newly allocated FAT-page sector, growing the
// DIFAT chain with a new DIFAT sector if header capacity (and any existing
// DIFAT sectors) are exhausted.
func (cf *CompoundFile) difatAppend(sid SectorId) error {
	k := len(cf.fatPageSectors)
	cf.fatPageSectors = append(cf.fatPageSectors, sid)
	if k < 109 {
		cf.header.initialDifat[k] = sid
		return nil
	}
	perPage := int(cf.entriesPerDifatPage())
	pageIdx := (k - 109) / perPage
	if pageIdx >= len(cf.difatChain) {
		newSector := cf.store.allocateTail()
		cf.difatChain = append(cf.difatChain, newSector)
		if pageIdx == 0 {
			cf.header.firstDifat = newSector
		}
		cf.header.numDifat = uint32(len(cf.difatChain))
		// Mark the new DIFAT sector DifSect. growFatTable caches the new
		// FAT page before calling here and that page covers this sector, so
		// fatSet updates it in cache; fatSet never grows the FAT itself.
		cf.fatSet(uint32(newSector), uint32(DifSect))
	}
	return nil
}

// flushDifat rewrites every DIFAT sector in full from cf.fatPageSectors,
// and the header's inline 109-entry portion.
func (cf *CompoundFile) flushDifat() error {
	for i := 0; i < 109; i++ {
		if i < len(cf.fatPageSectors) {
			cf.header.initialDifat[i] = cf.fatPageSectors[i]
		} else {
			cf.header.initialDifat[i] = FreeSect
		}
	}
	perPage := int(cf.entriesPerDifatPage())
	for idx, sid := range cf.difatChain {
		buf := make([]byte, cf.sectorSize())
		for j := 0; j < perPage; j++ {
			k := 109 + idx*perPage + j
			v := FreeSect
			if k < len(cf.fatPageSectors) {
				v = cf.fatPageSectors[k]
			}
			binary.LittleEndian.PutUint32(buf[j*4:j*4+4], uint32(v))
		}
		next := SectorId(EndOfChain)
		if idx+1 < len(cf.difatChain) {
			next = cf.difatChain[idx+1]
		}
		binary.LittleEndian.PutUint32(buf[perPage*4:perPage*4+4], uint32(next))
		if err := cf.store.writeSector(sid, buf); err != nil {
			return err
		}
	}
	if len(cf.difatChain) > 0 {
		cf.header.firstDifat = cf.difatChain[0]
	} else {
		cf.header.firstDifat = SectorId(EndOfChain)
	}
	cf.header.numDifat = uint32(len(cf.difatChain))
	cf.header.numFatSectors = uint32(len(cf.fatPageSectors))
	return nil
}
