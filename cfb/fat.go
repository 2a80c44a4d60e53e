package cfb

import "encoding/binary"

// The FAT is a virtual flat array indexed by SectorId, implemented as a
// cached mapping from page index to a decoded 4KB/2KB page of 32-bit
// entries, each page residing in the sector DIFAT.lookup(page) names.

func (cf *CompoundFile) fatPage(page uint32) ([]SectorId, error) {
	if p, ok := cf.fatPages[page]; ok {
		return p, nil
	}
	if page >= uint32(len(cf.fatPageSectors)) {
		return nil, newErrVal(KindCorruptFat, "fat page index out of range", int64(page))
	}
	sid := cf.fatPageSectors[page]
	buf := make([]byte, cf.sectorSize())
	if err := cf.store.readSector(sid, buf); err != nil {
		return nil, err
	}
	n := cf.entriesPerFatPage()
	entries := make([]SectorId, n)
	for i := uint32(0); i < n; i++ {
		entries[i] = SectorId(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	cf.fatPages[page] = entries
	return entries, nil
}

func (cf *CompoundFile) fatGet(s uint32) (uint32, error) {
	n := cf.entriesPerFatPage()
	page, off := s/n, s%n
	entries, err := cf.fatPage(page)
	if err != nil {
		return 0, err
	}
	return uint32(entries[off]), nil
}

func (cf *CompoundFile) fatSet(s uint32, v uint32) {
	n := cf.entriesPerFatPage()
	page, off := s/n, s%n
	entries, err := cf.fatPage(page)
	if err != nil {
		// page must already exist by construction: callers only fatSet
		// sectors within already-grown capacity.
		entries = make([]SectorId, n)
		for i := range entries {
			entries[i] = FreeSect
		}
		cf.fatPages[page] = entries
	}
	entries[off] = SectorId(v)
	cf.fatDirty[page] = true
}

// flushDirtyFat writes back every modified FAT page.
func (cf *CompoundFile) flushDirtyFat() error {
	for page, dirty := range cf.fatDirty {
		if !dirty {
			continue
		}
		entries := cf.fatPages[page]
		buf := make([]byte, cf.sectorSize())
		for i, v := range entries {
			binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
		}
		sid := cf.fatPageSectors[page]
		if err := cf.store.writeSector(sid, buf); err != nil {
			return err
		}
		cf.fatDirty[page] = false
	}
	return nil
}

// regularPool implements sectorPool over the regular FAT / sector store.
type regularPool struct{ cf *CompoundFile }

func (cf *CompoundFile) regularPool() sectorPool { return regularPool{cf} }

func (p regularPool) get(id uint32) (uint32, error) { return p.cf.fatGet(id) }
func (p regularPool) set(id uint32, v uint32)        { p.cf.fatSet(id, v) }
func (p regularPool) length() uint32                 { return p.cf.store.lengthInSectors() }

// grow allocates a brand-new regular sector at the file tail, first
// extending the FAT table itself (and the DIFAT that indexes it) if the new
// sector would fall outside current FAT capacity. The growth order matters:
// a newly allocated FAT-page sector must have its own page created and
// filled with FreeSect before the sector is marked FatSect inside that same page (the
// self-reference case design notes §4.7 calls out).
func (p regularPool) grow() (uint32, error) {
	cf := p.cf
	for cf.fatCapacity() <= cf.store.lengthInSectors() {
		if err := cf.growFatTable(); err != nil {
			return 0, err
		}
	}
	id := cf.store.allocateTail()
	cf.fatSet(uint32(id), uint32(FreeSect))
	return uint32(id), nil
}

func (cf *CompoundFile) fatCapacity() uint32 {
	return uint32(len(cf.fatPageSectors)) * cf.entriesPerFatPage()
}

// growFatTable allocates one more FAT-page sector, fills its cached page
// with FreeSect,
// registers it in the DIFAT, then marks the sector FatSect.
func (cf *CompoundFile) growFatTable() error {
	pageSector := cf.store.allocateTail()
	page := uint32(len(cf.fatPageSectors))
	n := cf.entriesPerFatPage()
	entries := make([]SectorId, n)
	for i := range entries {
		entries[i] = FreeSect
	}
	cf.fatPages[page] = entries
	cf.fatDirty[page] = true
	if err := cf.difatAppend(pageSector); err != nil {
		return err
	}
	cf.fatSet(uint32(pageSector), uint32(FatSect))
	cf.header.numFatSectors = uint32(len(cf.fatPageSectors))
	return nil
}
