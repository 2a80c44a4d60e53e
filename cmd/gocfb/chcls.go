package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kjk/gocfb/cfb"
)

func newChclsCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "chcls <uuid> <file>:<storage>",
		Short:        "set a storage's CLSID",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChcls(args[0], args[1])
		},
	}
}

func runChcls(uuidStr, target string) error {
	clsid, err := parseCLSID(uuidStr)
	if err != nil {
		return err
	}
	filePath, inner, err := parseTarget(target)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cf, err := cfb.Open(f)
	if err != nil {
		return err
	}
	if err := cf.SetCLSID(inner, clsid); err != nil {
		return err
	}
	return cf.Flush()
}

// parseCLSID decodes a canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" GUID
// string into its 16-byte CFB on-disk form: the first three fields are
// little-endian, the last two are stored as-is (big-endian byte order).
func parseCLSID(s string) ([16]byte, error) {
	var out [16]byte
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return out, fmt.Errorf("malformed uuid %q", s)
	}
	raw := make([][]byte, 5)
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return out, fmt.Errorf("malformed uuid %q: %w", s, err)
		}
		raw[i] = b
	}
	if len(raw[0]) != 4 || len(raw[1]) != 2 || len(raw[2]) != 2 || len(raw[3]) != 2 || len(raw[4]) != 6 {
		return out, fmt.Errorf("malformed uuid %q", s)
	}
	reverse := func(b []byte) {
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
	reverse(raw[0])
	reverse(raw[1])
	reverse(raw[2])
	copy(out[0:4], raw[0])
	copy(out[4:6], raw[1])
	copy(out[6:8], raw[2])
	copy(out[8:10], raw[3])
	copy(out[10:16], raw[4])
	return out, nil
}
