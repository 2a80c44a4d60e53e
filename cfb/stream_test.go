package cfb

import (
	"bytes"
	"io"
	"testing"
)

func newTestFile(t *testing.T) *CompoundFile {
	t.Helper()
	cf, err := Create(&memMedium{}, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return cf
}

func TestStreamSeekAndPartialRead(t *testing.T) {
	cf := newTestFile(t)
	sv, err := cf.CreateStream("/s")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	payload := bytes.Repeat([]byte("0123456789"), 20) // 200 bytes, spans several mini-sectors
	if _, err := sv.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := sv.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(sv, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(buf, payload[10:15]) {
		t.Errorf("content at offset 10 = %q, want %q", buf, payload[10:15])
	}

	if _, err := sv.Seek(-3, io.SeekEnd); err != nil {
		t.Fatalf("Seek from end: %v", err)
	}
	tail := make([]byte, 3)
	if _, err := io.ReadFull(sv, tail); err != nil {
		t.Fatalf("ReadFull tail: %v", err)
	}
	if !bytes.Equal(tail, payload[len(payload)-3:]) {
		t.Errorf("tail = %q, want %q", tail, payload[len(payload)-3:])
	}
}

func TestStreamSetLenTruncateAndExtend(t *testing.T) {
	cf := newTestFile(t)
	sv, err := cf.CreateStream("/s")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sv.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sv.SetLen(5); err != nil {
		t.Fatalf("SetLen(5): %v", err)
	}
	if sv.Length() != 5 {
		t.Fatalf("length = %d, want 5", sv.Length())
	}
	sv.Seek(0, io.SeekStart)
	buf := make([]byte, 5)
	if _, err := io.ReadFull(sv, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("content = %q, want %q", buf, "hello")
	}

	if err := sv.SetLen(8); err != nil {
		t.Fatalf("SetLen(8): %v", err)
	}
	sv.Seek(0, io.SeekStart)
	grown := make([]byte, 8)
	if _, err := io.ReadFull(sv, grown); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(grown[:5], []byte("hello")) {
		t.Errorf("prefix after growth = %q, want %q", grown[:5], "hello")
	}
	if !bytes.Equal(grown[5:], []byte{0, 0, 0}) {
		t.Errorf("grown tail must be zero-filled, got %v", grown[5:])
	}
}

func TestStreamSetLenToZeroFreesChain(t *testing.T) {
	cf := newTestFile(t)
	sv, err := cf.CreateStream("/s")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sv.Write([]byte("some content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sv.SetLen(0); err != nil {
		t.Fatalf("SetLen(0): %v", err)
	}
	if cf.entries[sv.id].Start != SectorId(EndOfChain) {
		t.Errorf("start_sector = %v, want EndOfChain", cf.entries[sv.id].Start)
	}
	if sv.Length() != 0 {
		t.Errorf("length = %d, want 0", sv.Length())
	}
}

// TestPromotionCompactsTrailingMiniStream checks that promoting a mini
// stream across the cutoff reclaims mini-sectors that no other stream
// still uses, rather than leaving the root entry's mini-stream permanently
// sized at its high-water mark.
func TestPromotionCompactsTrailingMiniStream(t *testing.T) {
	cf := newTestFile(t)
	keep, err := cf.CreateStream("/keep")
	if err != nil {
		t.Fatalf("CreateStream(/keep): %v", err)
	}
	if _, err := keep.Write([]byte("k")); err != nil {
		t.Fatalf("Write(/keep): %v", err)
	}
	grow, err := cf.CreateStream("/grow")
	if err != nil {
		t.Fatalf("CreateStream(/grow): %v", err)
	}
	if _, err := grow.Write(make([]byte, 100)); err != nil {
		t.Fatalf("Write(/grow): %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush after both streams are mini: %v", err)
	}
	beforeMiniSectors := len(cf.miniFat)
	if beforeMiniSectors < 2 {
		t.Fatalf("expected at least 2 mini-sectors allocated, got %d", beforeMiniSectors)
	}

	if _, err := grow.Write(make([]byte, 4096)); err != nil {
		t.Fatalf("Write across cutoff: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush after promotion: %v", err)
	}
	if grow.mini {
		t.Fatal("expected /grow to have promoted to the regular pool")
	}
	if len(cf.miniFat) >= beforeMiniSectors {
		t.Errorf("mini-FAT length = %d, want it to shrink below %d after promotion", len(cf.miniFat), beforeMiniSectors)
	}
	if cf.entries[0].Size != uint64(len(cf.miniFat))*miniSectorSize {
		t.Errorf("root mini-stream size = %d, want %d", cf.entries[0].Size, uint64(len(cf.miniFat))*miniSectorSize)
	}

	keep.Seek(0, io.SeekStart)
	buf := make([]byte, 1)
	if _, err := io.ReadFull(keep, buf); err != nil {
		t.Fatalf("ReadFull(/keep) after compaction: %v", err)
	}
	if buf[0] != 'k' {
		t.Errorf("content of /keep after compaction = %q, want %q", buf, "k")
	}
}
