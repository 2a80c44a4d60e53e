package cfb

import (
	"io"
	"time"
)

// Stream is a random-access byte view over one stream entry's content. It
// composes the DIFAT/FAT/mini-FAT indirection into a flat byte address
// space, caching the most recently resolved (chain index, unit id) pair so
// sequential access costs O(1) per unit instead of re-walking the chain
// from the start every call.
type Stream struct {
	cf   *CompoundFile
	id   StreamId
	mini bool

	pos    int64
	length int64

	cacheIdx int64 // -1 when unset
	cacheID  uint32
}

func (cf *CompoundFile) newStreamView(id StreamId) *Stream {
	e := cf.entries[id]
	return &Stream{
		cf:       cf,
		id:       id,
		mini:     e.Size < miniStreamCutoff,
		length:   int64(e.Size),
		cacheIdx: -1,
	}
}

func (cf *CompoundFile) readUnitRange(mini bool, id uint32, off, n int, buf []byte) error {
	if mini {
		sid, base := cf.miniSectorLocation(id)
		return cf.store.readRange(sid, base+off, buf[:n])
	}
	return cf.store.readRange(SectorId(id), off, buf[:n])
}

func (cf *CompoundFile) writeUnitRange(mini bool, id uint32, off int, buf []byte) error {
	if mini {
		sid, base := cf.miniSectorLocation(id)
		return cf.store.writeRange(sid, base+off, buf)
	}
	return cf.store.writeRange(SectorId(id), off, buf)
}

func (s *Stream) unitSize() int64 {
	if s.mini {
		return miniSectorSize
	}
	return int64(s.cf.sectorSize())
}

func (s *Stream) pool() sectorPool {
	if s.mini {
		return s.cf.miniFatPool()
	}
	return s.cf.regularPool()
}

func (s *Stream) startUnit() uint32 { return uint32(s.cf.entries[s.id].Start) }

// Length returns the stream's current logical length in bytes.
func (s *Stream) Length() int64 { return s.length }

// Seek implements io.Seeker.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = s.length + offset
	default:
		return 0, newErr(KindInvalidName, "bad whence")
	}
	if abs < 0 {
		return 0, newErr(KindOutOfRange, "negative seek")
	}
	s.pos = abs
	return abs, nil
}

// resolve returns the unit id backing chain index idx, using and updating
// the single-entry position cache.
func (s *Stream) resolve(idx int64) (uint32, error) {
	start := s.startUnit()
	if start == uint32(EndOfChain) {
		return 0, newErr(KindOutOfRange, "stream is empty")
	}
	p := s.pool()
	cur := start
	from := int64(0)
	if s.cacheIdx >= 0 && s.cacheIdx <= idx {
		cur = s.cacheID
		from = s.cacheIdx
	}
	for i := from; i < idx; i++ {
		next, err := p.get(cur)
		if err != nil {
			return 0, err
		}
		if next == uint32(EndOfChain) {
			return 0, newErr(KindInconsistentLength, "chain shorter than stream length")
		}
		cur = next
	}
	s.cacheIdx, s.cacheID = idx, cur
	return cur, nil
}

// Read implements io.Reader.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.pos >= s.length {
		return 0, io.EOF
	}
	remaining := s.length - s.pos
	want := int64(len(buf))
	if want > remaining {
		want = remaining
	}
	unitSize := s.unitSize()
	var n int64
	for n < want {
		idx := (s.pos + n) / unitSize
		off := int((s.pos + n) % unitSize)
		id, err := s.resolve(idx)
		if err != nil {
			return int(n), err
		}
		chunk := unitSize - int64(off)
		if chunk > want-n {
			chunk = want - n
		}
		if err := s.cf.readUnitRange(s.mini, id, off, int(chunk), buf[n:n+chunk]); err != nil {
			return int(n), err
		}
		n += chunk
	}
	s.pos += n
	return int(n), nil
}

// Write implements io.Writer, extending the current pool's chain as needed
// — pool selection itself (mini vs regular) is only reconsidered on Flush
// or SetLen, per design notes §4.9.
func (s *Stream) Write(buf []byte) (int, error) {
	if s.cf.readOnly {
		return 0, newErr(KindReadOnly, "stream is read-only")
	}
	need := s.pos + int64(len(buf))
	if err := s.ensureCapacity(need); err != nil {
		return 0, err
	}
	unitSize := s.unitSize()
	var n int64
	want := int64(len(buf))
	for n < want {
		idx := (s.pos + n) / unitSize
		off := int((s.pos + n) % unitSize)
		id, err := s.resolve(idx)
		if err != nil {
			return int(n), err
		}
		chunk := unitSize - int64(off)
		if chunk > want-n {
			chunk = want - n
		}
		if err := s.cf.writeUnitRange(s.mini, id, off, buf[n:n+chunk]); err != nil {
			return int(n), err
		}
		n += chunk
	}
	s.pos += n
	if s.pos > s.length {
		s.length = s.pos
	}
	s.cf.entries[s.id].Size = uint64(s.length)
	return int(n), nil
}

// ensureCapacity grows the current pool's chain so it can hold need bytes,
// allocating a fresh chain if the stream was empty.
func (s *Stream) ensureCapacity(need int64) error {
	unitSize := s.unitSize()
	neededUnits := int((need + unitSize - 1) / unitSize)
	if need == 0 {
		neededUnits = 0
	}
	start := s.startUnit()
	p := s.pool()
	if start == uint32(EndOfChain) {
		if neededUnits == 0 {
			return nil
		}
		ids, err := allocChain(p, neededUnits)
		if err != nil {
			return err
		}
		s.cf.entries[s.id].Start = SectorId(ids[0])
		return nil
	}
	chain, err := chainList(p, start)
	if err != nil {
		return err
	}
	if len(chain) < neededUnits {
		if err := extendChain(p, chain[len(chain)-1], neededUnits-len(chain)); err != nil {
			return err
		}
	}
	return nil
}

// SetLen truncates or extends the stream to exactly n bytes, with
// immediate effect on the backing chain, and then reconsiders pool
// placement at once (promoting or demoting across the cutoff) rather than
// waiting for Flush.
func (s *Stream) SetLen(n int64) error {
	if s.cf.readOnly {
		return newErr(KindReadOnly, "stream is read-only")
	}
	if n < 0 {
		return newErr(KindOutOfRange, "negative length")
	}
	old := s.length
	if n < old {
		unitSize := s.unitSize()
		keep := int((n + unitSize - 1) / unitSize)
		newStart, err := truncateChain(s.pool(), s.startUnit(), keep)
		if err != nil {
			return err
		}
		s.cf.entries[s.id].Start = SectorId(newStart)
		s.cacheIdx = -1
	} else if n > old {
		if err := s.ensureCapacity(n); err != nil {
			return err
		}
		if err := s.zeroRange(old, n); err != nil {
			return err
		}
	}
	s.length = n
	s.cf.entries[s.id].Size = uint64(n)
	if s.pos > n {
		s.pos = n
	}
	return s.reconsiderPool()
}

func (s *Stream) zeroRange(from, to int64) error {
	if from >= to {
		return nil
	}
	unitSize := s.unitSize()
	zero := make([]byte, unitSize)
	for off := from; off < to; {
		idx := off / unitSize
		within := off % unitSize
		chunk := unitSize - within
		if chunk > to-off {
			chunk = to - off
		}
		id, err := s.resolve(idx)
		if err != nil {
			return err
		}
		if err := s.cf.writeUnitRange(s.mini, id, int(within), zero[:chunk]); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

// Flush reconsiders pool selection (in case Write alone carried the stream
// across the mini-stream cutoff) and syncs the directory entry.
func (s *Stream) Flush() error {
	if err := s.reconsiderPool(); err != nil {
		return err
	}
	e := s.cf.entries[s.id]
	e.Size = uint64(s.length)
	e.Modified = timeToFiletime(time.Now())
	return nil
}

// reconsiderPool promotes a mini stream past the cutoff to the regular
// pool, or demotes a regular stream that has shrunk back under it, copying
// content across and freeing the old chain.
func (s *Stream) reconsiderPool() error {
	wantMini := s.length < miniStreamCutoff
	if wantMini == s.mini {
		return nil
	}
	content := make([]byte, s.length)
	if s.length > 0 {
		oldPos := s.pos
		s.pos = 0
		if _, err := io.ReadFull(s, content); err != nil {
			s.pos = oldPos
			return err
		}
		s.pos = oldPos
	}
	oldPool := s.pool()
	oldStart := s.startUnit()
	wasMini := s.mini

	s.mini = wantMini
	newPool := s.pool()
	unitSize := s.unitSize()
	neededUnits := int((s.length + unitSize - 1) / unitSize)
	var newStart uint32 = uint32(EndOfChain)
	if neededUnits > 0 {
		ids, err := allocChain(newPool, neededUnits)
		if err != nil {
			return err
		}
		newStart = ids[0]
	}
	s.cf.entries[s.id].Start = SectorId(newStart)
	s.cacheIdx = -1
	if err := s.writeAt(newStart, content); err != nil {
		return err
	}
	if err := freeChain(oldPool, oldStart); err != nil {
		return err
	}
	if wasMini {
		// Promotion out of the mini pool may leave trailing mini-sectors
		// wholly unused; reclaim that capacity instead of letting the root
		// entry's mini-stream keep reporting it.
		return s.cf.compactMiniStream()
	}
	return nil
}

func (s *Stream) writeAt(start uint32, content []byte) error {
	if len(content) == 0 {
		return nil
	}
	unitSize := s.unitSize()
	cur := start
	p := s.pool()
	off := int64(0)
	for off < int64(len(content)) {
		chunk := unitSize
		if chunk > int64(len(content))-off {
			chunk = int64(len(content)) - off
		}
		if err := s.cf.writeUnitRange(s.mini, cur, 0, content[off:off+chunk]); err != nil {
			return err
		}
		off += chunk
		if off < int64(len(content)) {
			next, err := p.get(cur)
			if err != nil {
				return err
			}
			cur = next
		}
	}
	return nil
}

// freeEntryContent releases a stream's backing chain entirely, used by
// RemoveStream.
func (cf *CompoundFile) freeEntryContent(e *dirEntry) error {
	mini := e.Size < miniStreamCutoff
	var p sectorPool
	if mini {
		p = cf.miniFatPool()
	} else {
		p = cf.regularPool()
	}
	if err := freeChain(p, uint32(e.Start)); err != nil {
		return err
	}
	e.Start = SectorId(EndOfChain)
	e.Size = 0
	return nil
}
