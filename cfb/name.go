package cfb

import (
	"encoding/binary"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
)

// nameCaser supplies the uppercase form used to order directory siblings.
// x/text's cases.Upper applies the full Unicode uppercase mapping to the
// whole name, not a simple mapping code unit by code unit: a character whose
// uppercase form is longer (ß becomes SS) expands, so such names can order
// differently from a per-code-unit fold.
var nameCaser = cases.Upper(language.Und)

// nameUTF16 encodes/decodes the fixed 64-byte directory-entry name field.
// Using x/text's codec (as _examples/tkuchiki-go-xls/writer.go does for its
// own CFB names) avoids hand-rolling surrogate-pair-aware UTF-16LE framing.
var nameUTF16 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// forbidden per MS-CFB: '/', '\', ':', '!' and any code unit below 0x0020.
func validateName(name string) error {
	units := utf16.Encode([]rune(name))
	if len(units) == 0 || len(units) > maxNameCodeUnits {
		return newErr(KindInvalidName, "name length out of range")
	}
	for _, u := range units {
		switch u {
		case '/', '\\', ':', '!':
			return newErr(KindInvalidName, "name contains a reserved character")
		}
		if u < 0x0020 {
			return newErr(KindInvalidName, "name contains a control code unit")
		}
	}
	return nil
}

// encodeName fills in e.RawName/e.NameLen from e.Name, matching the fixed
// 64-byte, NUL-terminated UTF-16LE directory-entry field.
func encodeName(e *dirEntry) {
	encoded, err := nameUTF16.NewEncoder().String(e.Name + "\x00")
	if err != nil {
		// e.Name already passed validateName; a rune outside the BMP would
		// need a surrogate pair, which still round-trips through this codec.
		encoded, _ = nameUTF16.NewEncoder().String("\x00")
	}
	var raw [32]uint16
	for i := 0; i+1 < len(encoded) && i/2 < 32; i += 2 {
		raw[i/2] = binary.LittleEndian.Uint16([]byte(encoded[i : i+2]))
	}
	e.RawName = raw
	e.NameLen = uint16(len(encoded))
}

// decodeName recovers e.Name from e.RawName/e.NameLen.
func decodeName(raw [32]uint16, nameLen uint16) string {
	if nameLen < 2 {
		return ""
	}
	n := int(nameLen/2) - 1
	if n < 0 {
		n = 0
	}
	if n > len(raw) {
		n = len(raw)
	}
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], raw[i])
	}
	s, err := nameUTF16.NewDecoder().Bytes(b)
	if err != nil {
		return string(utf16.Decode(raw[:n]))
	}
	return string(s)
}

// caseFoldKey returns the (utf16 length, uppercased code units) comparison
// key spec.md §4.6 mandates for directory sibling ordering.
func caseFoldKey(name string) (int, []uint16) {
	units := utf16.Encode([]rune(name))
	upper := nameCaser.String(name)
	return len(units), utf16.Encode([]rune(upper))
}

// compareNames implements the canonical CFB sibling order: shorter
// (in UTF-16 code units) first, then uppercased code-unit lexicographic
// order.
func compareNames(a, b string) int {
	alen, aUp := caseFoldKey(a)
	blen, bUp := caseFoldKey(b)
	if alen != blen {
		if alen < blen {
			return -1
		}
		return 1
	}
	for i := 0; i < len(aUp) && i < len(bUp); i++ {
		if aUp[i] != bUp[i] {
			if aUp[i] < bUp[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(aUp) < len(bUp):
		return -1
	case len(aUp) > len(bUp):
		return 1
	default:
		return 0
	}
}
