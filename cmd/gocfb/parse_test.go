package main

import "testing"

func TestParseTarget(t *testing.T) {
	cases := []struct {
		arg       string
		wantFile  string
		wantInner string
		wantErr   bool
	}{
		{"doc.cfb:/Hello", "doc.cfb", "/Hello", false},
		{"doc.cfb", "doc.cfb", "/", false},
		{"doc.cfb:", "doc.cfb", "/", false},
		{"doc.cfb:Hello", "doc.cfb", "/Hello", false},
		{":missing-file", "", "", true},
	}
	for _, c := range cases {
		file, inner, err := parseTarget(c.arg)
		if (err != nil) != c.wantErr {
			t.Errorf("parseTarget(%q) error = %v, wantErr %v", c.arg, err, c.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if file != c.wantFile || inner != c.wantInner {
			t.Errorf("parseTarget(%q) = (%q, %q), want (%q, %q)", c.arg, file, inner, c.wantFile, c.wantInner)
		}
	}
}

func TestParseCLSID(t *testing.T) {
	clsid, err := parseCLSID("12345678-1234-5678-1234-567812345678")
	if err != nil {
		t.Fatalf("parseCLSID: %v", err)
	}
	want := [16]byte{0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x78, 0x56, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78}
	if clsid != want {
		t.Errorf("parseCLSID = %x, want %x", clsid, want)
	}

	if _, err := parseCLSID("not-a-uuid"); err == nil {
		t.Error("expected an error for a malformed uuid")
	}
}
