// Package metadata decodes the well-known OLE property-set streams
// (SummaryInformation, DocumentSummaryInformation) that storages commonly
// carry alongside their content streams, using richardlehane/msoleps for the
// property-set parsing itself. It is a convenience layer over github.com/*/cfb,
// not part of the container format's core semantics.
package metadata

import (
	"fmt"
	"io"

	"github.com/richardlehane/msoleps"

	"github.com/kjk/gocfb/cfb"
)

// SummaryStreamNames are the two canonical property-set stream names MS-OLEPS
// defines for documents; both are looked up at the root storage through
// cfb's sibling lookup, which compares names case-insensitively.
var SummaryStreamNames = []string{
	"\x05SummaryInformation",
	"\x05DocumentSummaryInformation",
}

// Summary is a flattened, display-ready view of one property set's named
// properties. Values are formatted with fmt's default verb, which covers the
// string/int/float/time.Time variants msoleps decodes without this package
// needing to mirror its type switch.
type Summary map[string]string

// ReadSummaries opens every well-known property-set stream present at the
// compound file's root and decodes it. Decode failures on an individual
// stream are skipped rather than propagated: a malformed or absent property
// set is not a reason to fail a directory listing.
func ReadSummaries(cf *cfb.CompoundFile) map[string]Summary {
	out := make(map[string]Summary)
	for _, name := range SummaryStreamNames {
		path := "/" + name
		if !cf.Exists(path) {
			continue
		}
		sv, err := cf.OpenStream(path)
		if err != nil {
			continue
		}
		s, err := decode(sv)
		if err != nil {
			continue
		}
		out[name] = s
	}
	return out
}

func decode(r io.Reader) (Summary, error) {
	doc, err := msoleps.New(r)
	if err != nil {
		return nil, err
	}
	out := make(Summary, len(doc.Property))
	for _, prop := range doc.Property {
		if prop == nil || prop.Name == "" || prop.PropertyValue == nil {
			continue
		}
		out[prop.Name] = fmt.Sprintf("%v", prop.V())
	}
	return out, nil
}
