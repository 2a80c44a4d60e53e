package cfb

// sectorPool is the allocator's parameterization point: the same chain
// algorithms run over the regular FAT (unit = one sector) and the mini-FAT
// (unit = one 64-byte mini-sector) by implementing this interface twice
// (regularPool in fat.go, miniPool below), per design notes §9.
type sectorPool interface {
	get(id uint32) (uint32, error)
	set(id uint32, v uint32)
	length() uint32
	grow() (uint32, error)
}

// chainList walks a chain from start to EndOfChain, failing KindCycleDetected
// if any id repeats (bounded by the pool's total addressable length, per
// spec.md §4.4).
func chainList(p sectorPool, start uint32) ([]uint32, error) {
	if start == uint32(EndOfChain) {
		return nil, nil
	}
	limit := p.length()
	visited := make(map[uint32]struct{}, 16)
	var out []uint32
	s := start
	for s != uint32(EndOfChain) {
		if _, ok := visited[s]; ok {
			return nil, newErrVal(KindCycleDetected, "sector revisited in chain", int64(s))
		}
		if uint32(len(visited)) > limit {
			return nil, newErrVal(KindCycleDetected, "chain longer than pool capacity", int64(s))
		}
		visited[s] = struct{}{}
		out = append(out, s)
		next, err := p.get(s)
		if err != nil {
			return nil, err
		}
		if next > uint32(MaxRegSect) && next != uint32(EndOfChain) {
			return nil, newErrVal(KindCorruptFat, "chain entry is not a regular sector or terminator", int64(next))
		}
		s = next
	}
	return out, nil
}

// findFreeOrGrow implements the allocator's placement policy: linear
// first-fit scan from the start of the pool, falling back to growing the
// pool by one unit at the tail.
func findFreeOrGrow(p sectorPool) (uint32, error) {
	n := p.length()
	for i := uint32(0); i < n; i++ {
		v, err := p.get(i)
		if err != nil {
			return 0, err
		}
		if v == uint32(FreeSect) {
			return i, nil
		}
	}
	return p.grow()
}

// allocChain allocates a fresh chain of count units and links them,
// terminating the tail with EndOfChain. Returns the allocated ids in chain
// order.
func allocChain(p sectorPool, count int) ([]uint32, error) {
	if count <= 0 {
		return nil, nil
	}
	ids := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		id, err := findFreeOrGrow(p)
		if err != nil {
			return nil, err
		}
		p.set(id, uint32(EndOfChain))
		ids = append(ids, id)
	}
	for i := 0; i < len(ids)-1; i++ {
		p.set(ids[i], ids[i+1])
	}
	return ids, nil
}

// extendChain allocates count new units and appends them to the chain
// starting at start.
func extendChain(p sectorPool, start uint32, count int) error {
	if count <= 0 {
		return nil
	}
	chain, err := chainList(p, start)
	if err != nil {
		return err
	}
	newIds, err := allocChain(p, count)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return newErr(KindCorruptFat, "extendChain called on an empty chain")
	}
	p.set(chain[len(chain)-1], newIds[0])
	return nil
}

// truncateChain walks to the new tail (keep units long) and frees the
// suffix. If keep is 0 the whole chain is freed and EndOfChain returned as
// the new (empty) start.
func truncateChain(p sectorPool, start uint32, keep int) (uint32, error) {
	if keep == 0 {
		if err := freeChain(p, start); err != nil {
			return 0, err
		}
		return uint32(EndOfChain), nil
	}
	chain, err := chainList(p, start)
	if err != nil {
		return 0, err
	}
	if keep >= len(chain) {
		return start, nil
	}
	for i := keep; i < len(chain); i++ {
		p.set(chain[i], uint32(FreeSect))
	}
	p.set(chain[keep-1], uint32(EndOfChain))
	return start, nil
}

// freeChain releases every unit in the chain starting at start.
func freeChain(p sectorPool, start uint32) error {
	if start == uint32(EndOfChain) {
		return nil
	}
	chain, err := chainList(p, start)
	if err != nil {
		return err
	}
	for _, id := range chain {
		p.set(id, uint32(FreeSect))
	}
	return nil
}

// miniPool implements sectorPool over the mini-FAT / mini-stream. Its unit
// space (cf.miniFat) is fully materialized, same as the DIFAT's
// fatPageSectors — bounded by the mini-stream's size, which by definition
// only ever holds streams under the 4096-byte cutoff.
type miniPool struct{ cf *CompoundFile }

func (cf *CompoundFile) miniFatPool() sectorPool { return miniPool{cf} }

func (p miniPool) get(id uint32) (uint32, error) {
	if id >= uint32(len(p.cf.miniFat)) {
		return 0, newErrVal(KindCorruptMiniFat, "mini sector id out of range", int64(id))
	}
	return uint32(p.cf.miniFat[id]), nil
}

func (p miniPool) set(id uint32, v uint32) { p.cf.miniFat[id] = SectorId(v) }
func (p miniPool) length() uint32          { return uint32(len(p.cf.miniFat)) }

// grow appends one mini-sector's worth of capacity, extending the
// mini-stream (regular chain owned by the root entry) and/or the mini-FAT's
// own backing chain whenever the new mini-sector id would fall outside
// their current capacity.
func (p miniPool) grow() (uint32, error) {
	cf := p.cf
	newID := uint32(len(cf.miniFat))
	unitsPerSector := cf.sectorSize() / miniSectorSize
	streamCapacity := uint32(len(cf.miniStreamChain)) * unitsPerSector
	if newID >= streamCapacity {
		if err := cf.growMiniStream(); err != nil {
			return 0, err
		}
	}
	entriesPerSector := cf.sectorSize() / 4
	fatCapacity := uint32(len(cf.miniFatChain)) * entriesPerSector
	if newID >= fatCapacity {
		if err := cf.growMiniFatTable(); err != nil {
			return 0, err
		}
	}
	cf.miniFat = append(cf.miniFat, FreeSect)
	return newID, nil
}

func (cf *CompoundFile) growMiniStream() error {
	root := cf.entries[0]
	pool := cf.regularPool()
	if len(cf.miniStreamChain) == 0 {
		ids, err := allocChain(pool, 1)
		if err != nil {
			return err
		}
		root.Start = SectorId(ids[0])
		cf.miniStreamChain = append(cf.miniStreamChain, SectorId(ids[0]))
		return nil
	}
	tail := uint32(cf.miniStreamChain[len(cf.miniStreamChain)-1])
	if err := extendChain(pool, tail, 1); err != nil {
		return err
	}
	next, err := pool.get(tail)
	if err != nil {
		return err
	}
	cf.miniStreamChain = append(cf.miniStreamChain, SectorId(next))
	return nil
}

func (cf *CompoundFile) growMiniFatTable() error {
	pool := cf.regularPool()
	if len(cf.miniFatChain) == 0 {
		ids, err := allocChain(pool, 1)
		if err != nil {
			return err
		}
		cf.header.firstMiniFat = SectorId(ids[0])
		cf.miniFatChain = append(cf.miniFatChain, SectorId(ids[0]))
		cf.header.numMiniFat = uint32(len(cf.miniFatChain))
		return nil
	}
	tail := uint32(cf.miniFatChain[len(cf.miniFatChain)-1])
	if err := extendChain(pool, tail, 1); err != nil {
		return err
	}
	next, err := pool.get(tail)
	if err != nil {
		return err
	}
	cf.miniFatChain = append(cf.miniFatChain, SectorId(next))
	cf.header.numMiniFat = uint32(len(cf.miniFatChain))
	return nil
}

// compactMiniStream reclaims trailing mini-FAT/mini-stream capacity that no
// stream uses any more, called after a promotion frees a mini chain and may
// leave the tail of the mini pool entirely free. It never frees capacity
// that is still in use (only the unused suffix), matching the allocator's
// truncateChain semantics over the regular pool that backs both chains.
func (cf *CompoundFile) compactMiniStream() error {
	used := 0
	for i := len(cf.miniFat) - 1; i >= 0; i-- {
		if cf.miniFat[i] != FreeSect {
			used = i + 1
			break
		}
	}
	if used == len(cf.miniFat) {
		return nil
	}
	cf.miniFat = cf.miniFat[:used]

	regular := cf.regularPool()
	unitsPerSector := int(cf.sectorSize() / miniSectorSize)
	neededMiniStreamSectors := (used + unitsPerSector - 1) / unitsPerSector
	if neededMiniStreamSectors < len(cf.miniStreamChain) {
		root := cf.entries[0]
		newStart, err := truncateChain(regular, uint32(root.Start), neededMiniStreamSectors)
		if err != nil {
			return err
		}
		root.Start = SectorId(newStart)
		cf.miniStreamChain = cf.miniStreamChain[:neededMiniStreamSectors]
	}

	entriesPerSector := int(cf.entriesPerFatPage())
	neededMiniFatSectors := (used + entriesPerSector - 1) / entriesPerSector
	if neededMiniFatSectors < len(cf.miniFatChain) {
		newStart, err := truncateChain(regular, uint32(cf.header.firstMiniFat), neededMiniFatSectors)
		if err != nil {
			return err
		}
		if neededMiniFatSectors == 0 {
			cf.header.firstMiniFat = SectorId(EndOfChain)
		} else {
			cf.header.firstMiniFat = SectorId(newStart)
		}
		cf.miniFatChain = cf.miniFatChain[:neededMiniFatSectors]
		cf.header.numMiniFat = uint32(len(cf.miniFatChain))
	}
	return nil
}
