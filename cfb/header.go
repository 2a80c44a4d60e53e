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

const headerLen = 512

// header is the parsed form of the 512-byte CFB header. The first 109 DIFAT
// entries live inline; overflow entries live in DIFAT sectors (see difat.go).
type header struct {
	majorVersion     Version
	sectorShift      uint16
	miniSectorShift  uint16
	numDirSectors    uint32 // v4 only; 0 for v3
	numFatSectors    uint32
	firstDirSector   SectorId
	miniStreamCutoff uint32
	firstMiniFat     SectorId
	numMiniFat       uint32
	firstDifat       SectorId
	numDifat         uint32
	initialDifat     [109]SectorId
	rootCLSID        [16]byte
}

func parseHeader(buf []byte) (*header, error) {
	if len(buf) < headerLen {
		return nil, newErr(KindCorruptHeader, "short header")
	}
	if binary.LittleEndian.Uint64(buf[0:8]) != signatureBytes {
		return nil, newErr(KindNotCompoundFile, "bad magic")
	}
	byteOrder := binary.LittleEndian.Uint16(buf[28:30])
	if byteOrder != headerByteOrder {
		return nil, newErr(KindNotCompoundFile, "bad byte order marker")
	}
	h := &header{}
	copy(h.rootCLSID[:], buf[8:24])
	h.majorVersion = Version(binary.LittleEndian.Uint16(buf[26:28]))
	sectorShift := binary.LittleEndian.Uint16(buf[30:32])
	miniShift := binary.LittleEndian.Uint16(buf[32:34])
	if sectorShift != 9 && sectorShift != 12 {
		return nil, newErr(KindNotCompoundFile, "invalid sector shift")
	}
	if miniShift != miniSectorShiftOK {
		return nil, newErr(KindNotCompoundFile, "invalid mini sector shift")
	}
	if h.majorVersion != Version3 && h.majorVersion != Version4 {
		return nil, newErr(KindUnsupportedVersion, "major version must be 3 or 4")
	}
	if (h.majorVersion == Version3) != (sectorShift == 9) {
		return nil, newErr(KindNotCompoundFile, "sector shift does not match major version")
	}
	h.sectorShift = sectorShift
	h.miniSectorShift = miniShift
	h.numDirSectors = binary.LittleEndian.Uint32(buf[40:44])
	if h.majorVersion == Version3 && h.numDirSectors != 0 {
		return nil, newErr(KindNotCompoundFile, "version 3 must have zero directory sector count")
	}
	h.numFatSectors = binary.LittleEndian.Uint32(buf[44:48])
	h.firstDirSector = SectorId(binary.LittleEndian.Uint32(buf[48:52]))
	h.miniStreamCutoff = binary.LittleEndian.Uint32(buf[56:60])
	if h.miniStreamCutoff != miniStreamCutoff {
		return nil, newErr(KindCorruptHeader, "mini stream cutoff must be 4096")
	}
	h.firstMiniFat = SectorId(binary.LittleEndian.Uint32(buf[60:64]))
	h.numMiniFat = binary.LittleEndian.Uint32(buf[64:68])
	h.firstDifat = SectorId(binary.LittleEndian.Uint32(buf[68:72]))
	h.numDifat = binary.LittleEndian.Uint32(buf[72:76])
	for i := 0; i < 109; i++ {
		off := 76 + i*4
		h.initialDifat[i] = SectorId(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return h, nil
}

func (h *header) sectorSize() uint32 { return 1 << h.sectorShift }

func (h *header) serialize() []byte {
	buf := make([]byte, headerLen)
	binary.LittleEndian.PutUint64(buf[0:8], signatureBytes)
	copy(buf[8:24], h.rootCLSID[:])
	binary.LittleEndian.PutUint16(buf[24:26], headerMinorVer)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(h.majorVersion))
	binary.LittleEndian.PutUint16(buf[28:30], headerByteOrder)
	binary.LittleEndian.PutUint16(buf[30:32], h.sectorShift)
	binary.LittleEndian.PutUint16(buf[32:34], h.miniSectorShift)
	// buf[34:40] reserved, zero
	binary.LittleEndian.PutUint32(buf[40:44], h.numDirSectors)
	binary.LittleEndian.PutUint32(buf[44:48], h.numFatSectors)
	binary.LittleEndian.PutUint32(buf[48:52], uint32(h.firstDirSector))
	// buf[52:56] transaction signature, fixed 0
	binary.LittleEndian.PutUint32(buf[56:60], h.miniStreamCutoff)
	binary.LittleEndian.PutUint32(buf[60:64], uint32(h.firstMiniFat))
	binary.LittleEndian.PutUint32(buf[64:68], h.numMiniFat)
	binary.LittleEndian.PutUint32(buf[68:72], uint32(h.firstDifat))
	binary.LittleEndian.PutUint32(buf[72:76], h.numDifat)
	for i := 0; i < 109; i++ {
		off := 76 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h.initialDifat[i]))
	}
	return buf
}

func newEmptyHeader(version Version) *header {
	h := &header{
		majorVersion:     version,
		miniSectorShift:  miniSectorShiftOK,
		miniStreamCutoff: miniStreamCutoff,
		firstDirSector:   SectorId(EndOfChain),
		firstMiniFat:     SectorId(EndOfChain),
		firstDifat:       SectorId(EndOfChain),
	}
	if version == Version3 {
		h.sectorShift = 9
	} else {
		h.sectorShift = 12
	}
	for i := range h.initialDifat {
		h.initialDifat[i] = FreeSect
	}
	return h
}
