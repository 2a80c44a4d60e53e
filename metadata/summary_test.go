package metadata

import (
	"io"
	"testing"

	"github.com/kjk/gocfb/cfb"
)

type memMedium struct{ buf []byte }

func (m *memMedium) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memMedium) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func TestReadSummariesWithoutPropertySets(t *testing.T) {
	m := &memMedium{}
	cf, err := cfb.Create(m, cfb.Version3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cf.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	summaries := ReadSummaries(cf)
	if len(summaries) != 0 {
		t.Errorf("ReadSummaries on a file with no property sets = %v, want empty", summaries)
	}
}
