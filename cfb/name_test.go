package cfb

import "testing"

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", true},
		{"Root Entry", false},
		{"a/b", true},
		{"a\\b", true},
		{"a:b", true},
		{"a!b", true},
		{"ok-name_123", false},
	}
	for _, c := range cases {
		err := validateName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("validateName(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestCompareNamesOrdersByLengthThenUppercase(t *testing.T) {
	if compareNames("ab", "abc") >= 0 {
		t.Error("shorter name must sort before longer name regardless of content")
	}
	if compareNames("b", "a") <= 0 {
		t.Error("same-length names must compare by uppercased code unit")
	}
	if compareNames("a", "A") != 0 {
		t.Error("names differing only by case must compare equal")
	}
	if compareNames("x", "x") != 0 {
		t.Error("identical names must compare equal")
	}
}

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	e := &dirEntry{Name: "Workbook"}
	encodeName(e)
	got := decodeName(e.RawName, e.NameLen)
	if got != "Workbook" {
		t.Errorf("decodeName = %q, want %q", got, "Workbook")
	}
	if e.NameLen != uint16((len("Workbook")+1)*2) {
		t.Errorf("NameLen = %d, want %d", e.NameLen, (len("Workbook")+1)*2)
	}
}
