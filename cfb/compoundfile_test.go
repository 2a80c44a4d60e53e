package cfb

import (
	"io"
	"testing"
)

func TestEmptyV3Create(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(m.buf) != 3*512 {
		t.Fatalf("file size = %d, want %d", len(m.buf), 3*512)
	}

	page, err := cf.fatPage(0)
	if err != nil {
		t.Fatalf("fatPage(0): %v", err)
	}
	if page[0] != FatSect {
		t.Errorf("FAT[0] = %v, want FatSect", page[0])
	}
	if page[1] != EndOfChain {
		t.Errorf("FAT[1] = %v, want EndOfChain", page[1])
	}
	for i := 2; i < len(page); i++ {
		if page[i] != FreeSect {
			t.Errorf("FAT[%d] = %v, want FreeSect", i, page[i])
		}
	}

	if len(cf.entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(cf.entries))
	}
	root := cf.entries[0]
	if root.ObjectType != objRootStorage {
		t.Errorf("root object type = %d, want %d", root.ObjectType, objRootStorage)
	}
	if root.Name != "Root Entry" {
		t.Errorf("root name = %q, want %q", root.Name, "Root Entry")
	}
	if root.Start != SectorId(EndOfChain) {
		t.Errorf("root start = %v, want EndOfChain", root.Start)
	}
	if root.Size != 0 {
		t.Errorf("root size = %d, want 0", root.Size)
	}
	for i := 1; i < 4; i++ {
		if cf.entries[i].ObjectType != objUnknown {
			t.Errorf("entries[%d].ObjectType = %d, want unknown", i, cf.entries[i].ObjectType)
		}
	}
}

func TestSmallStreamRoundTrip(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sv, err := cf.CreateStream("/Hello")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sv.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cf2, err := Open(m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sv2, err := cf2.OpenStream("/Hello")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(sv2, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("content = %q, want %q", buf, "world")
	}

	root := cf2.entries[0]
	if root.Size != 64 {
		t.Errorf("root mini-stream length = %d, want 64", root.Size)
	}
	if root.Start == SectorId(EndOfChain) {
		t.Error("root start_sector should point at a regular sector")
	}

	id, err := cf2.resolve("/Hello")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	e := cf2.entries[id]
	if e.Size != 5 {
		t.Errorf("entry size = %d, want 5", e.Size)
	}
	if e.Start != 0 {
		t.Errorf("entry start_sector = %v, want 0 (first mini-sector)", e.Start)
	}
}

func TestPromotionAcrossCutoff(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sv, err := cf.CreateStream("/A")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sv.Write(make([]byte, 4095)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !sv.mini {
		t.Fatal("expected mini pool while length < 4096")
	}

	if _, err := sv.Write([]byte{0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sv.Length() != 4096 {
		t.Fatalf("length = %d, want 4096", sv.Length())
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sv.mini {
		t.Error("expected promotion to regular pool once length reaches 4096")
	}
	if cf.entries[sv.id].Start == SectorId(EndOfChain) {
		t.Error("promoted stream must have a regular start_sector")
	}
}

func TestNestedStorage(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cf.CreateStorage("/S1"); err != nil {
		t.Fatalf("CreateStorage(/S1): %v", err)
	}
	if err := cf.CreateStorage("/S1/S2"); err != nil {
		t.Fatalf("CreateStorage(/S1/S2): %v", err)
	}
	sv, err := cf.CreateStream("/S1/S2/x")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sv.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cf2, err := Open(m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1, err := cf2.Walk("/S1")
	if err != nil {
		t.Fatalf("Walk(/S1): %v", err)
	}
	if len(s1) != 1 || s1[0].Name != "S2" || !s1[0].IsStorage {
		t.Fatalf("Walk(/S1) = %+v, want one storage S2", s1)
	}
	s2, err := cf2.Walk("/S1/S2")
	if err != nil {
		t.Fatalf("Walk(/S1/S2): %v", err)
	}
	if len(s2) != 1 || s2[0].Name != "x" || !s2[0].IsStream || s2[0].Length != 10 {
		t.Fatalf("Walk(/S1/S2) = %+v, want one stream x of length 10", s2)
	}
}

func TestDuplicateNameRejection(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cf.CreateStream("/dup"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	err = cf.CreateStorage("/dup")
	if err == nil {
		t.Fatal("expected an error creating a duplicate name")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindAlreadyExists {
		t.Errorf("err = %v, want KindAlreadyExists", err)
	}
	if !cf.Exists("/dup") {
		t.Fatal("original entry must still exist")
	}
	info, err := cf.Entry("/dup")
	if err != nil || !info.IsStream {
		t.Errorf("original /dup entry must still be a stream, got %+v, err %v", info, err)
	}
}

func TestDirectoryGrowth(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		if err := cf.CreateStorage("/" + n); err != nil {
			t.Fatalf("CreateStorage(/%s): %v", n, err)
		}
	}
	if len(cf.dirChain) != 2 {
		t.Fatalf("len(dirChain) = %d, want 2", len(cf.dirChain))
	}
	firstDirSector := cf.dirChain[0]
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if cf.header.firstDirSector != firstDirSector {
		t.Errorf("first_directory_sector changed across flush: %v != %v", cf.header.firstDirSector, firstDirSector)
	}
	children := cf.inorder(cf.entries[0].Child)
	if len(children) != 5 {
		t.Fatalf("len(children) = %d, want 5", len(children))
	}
}

// TestDirectoryGrowthExactCapacitySurvivesReopen guards against padding the
// directory by a flat perSector slots on every grow: Create pre-seeds the
// root entry before any sector exists, so a v3 file's first directory
// sector only has 3 free slots, not 4. Filling exactly those and one more
// must grow the chain and must not leave an entry past the chain's actual
// on-disk capacity, which flushDirectory would otherwise silently drop.
func TestDirectoryGrowthExactCapacitySurvivesReopen(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, n := range []string{"a", "b", "c", "d"} {
		if _, err := cf.CreateStream("/" + n); err != nil {
			t.Fatalf("CreateStream(/%s): %v", n, err)
		}
	}
	if len(cf.entries) != len(cf.dirChain)*int(cf.entriesPerDirSector()) {
		t.Fatalf("len(entries) = %d, want exactly dirChain capacity %d",
			len(cf.entries), len(cf.dirChain)*int(cf.entriesPerDirSector()))
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cf2, err := Open(m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, n := range []string{"a", "b", "c", "d"} {
		if !cf2.Exists("/" + n) {
			t.Errorf("/%s missing after reopen", n)
		}
	}
	children := cf2.inorder(cf2.entries[0].Child)
	if len(children) != 4 {
		t.Fatalf("len(children) after reopen = %d, want 4", len(children))
	}
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	m := &memMedium{}
	cf, err := Create(m, Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cf2, err := OpenReadOnly(m)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	if err := cf2.CreateStorage("/x"); err == nil {
		t.Fatal("expected KindReadOnly")
	} else if cerr, ok := err.(*Error); !ok || cerr.Kind != KindReadOnly {
		t.Errorf("err = %v, want KindReadOnly", err)
	}
	if err := cf2.SetCLSID("/", [16]byte{1}); err == nil {
		t.Fatal("expected KindReadOnly from SetCLSID")
	} else if cerr, ok := err.(*Error); !ok || cerr.Kind != KindReadOnly {
		t.Errorf("err = %v, want KindReadOnly", err)
	}
	if err := cf2.SetStateBits("/", 7); err == nil {
		t.Fatal("expected KindReadOnly from SetStateBits")
	} else if cerr, ok := err.(*Error); !ok || cerr.Kind != KindReadOnly {
		t.Errorf("err = %v, want KindReadOnly", err)
	}
}

// TestRemoveTwoChildrenNodeKeepsOpenStreamValid exercises the
// red-black delete case where a node with two children has its in-order
// successor's content moved into its slot: if that successor happens to be
// a stream with an open Stream view, the view must keep addressing the
// right directory entry afterwards instead of reading a freed slot.
func TestRemoveTwoChildrenNodeKeepsOpenStreamValid(t *testing.T) {
	cf := newTestFile(t)
	// Build enough same-length siblings under the root (by the (len,
	// uppercase) ordering key) that removing /bbbb, the subtree's root
	// node, forces a two-children delete whose successor is /cccc.
	names := []string{"bbbb", "aaaa", "dddd", "cccc", "eeee"}
	for _, n := range names {
		if _, err := cf.CreateStream("/" + n); err != nil {
			t.Fatalf("CreateStream(/%s): %v", n, err)
		}
	}
	sv, err := cf.OpenStream("/cccc")
	if err != nil {
		t.Fatalf("OpenStream(/cccc): %v", err)
	}
	if _, err := sv.Write([]byte("keep me")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cf.RemoveStream("/bbbb"); err != nil {
		t.Fatalf("RemoveStream(/bbbb): %v", err)
	}
	if !cf.Exists("/cccc") {
		t.Fatal("/cccc must still exist after removing /bbbb")
	}
	sv.Seek(0, io.SeekStart)
	buf := make([]byte, len("keep me"))
	if _, err := io.ReadFull(sv, buf); err != nil {
		t.Fatalf("ReadFull after unrelated removal: %v", err)
	}
	if string(buf) != "keep me" {
		t.Errorf("content = %q, want %q", buf, "keep me")
	}
}
