package vnames

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// SectionName is the INI section holding the virtual name translations.
const SectionName = "Virtual names"

// ExpRange is an inclusive experiment ID range. A nil bound is open.
type ExpRange struct {
	Start *int64
	End   *int64
}

// Contains reports whether the numeric exp ID n lies within the range.
func (r ExpRange) Contains(n int64) bool {
	if r.Start != nil && n < *r.Start {
		return false
	}
	if r.End != nil && n > *r.End {
		return false
	}
	return true
}

// Entry is one line of the virtual name table. Value holds the raw
// translation; it is parsed into a PhysicalRef only when the entry is
// selected, so a broken translation does not affect unrelated names.
type Entry struct {
	Name  string
	Range ExpRange
	Value string
}

// Table is a parsed virtual name file.
//
// File format:
//
//	[Virtual names]
//	PCI-1-16 = \QOC::TOP.HARDWARE:ACQ196_...:INPUT_16
//	CR-B(20180101.001-) = complex(\QRN::...:CH1, \QRN::...:CH2)
//	CR-B(-20171231.999) = \QRN::...:OLD
type Table struct {
	Source  string
	Entries []Entry
}

// LoadFile reads and parses a virtual name file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading MDSPlus virtual name file %s: %w", common.ErrConfigIO, path, err)
	}
	return ParseTable(data, path)
}

// ParseTable parses the content of a virtual name file. source is only used
// in error messages.
func ParseTable(data []byte, source string) (*Table, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MDSPlus virtual name file %s: %w", common.ErrFormat, source, err)
	}
	sec, err := f.GetSection(SectionName)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MDSPlus virtual name file %s: no [%s] section",
			common.ErrFormat, source, SectionName)
	}

	t := &Table{Source: source}
	for _, key := range sec.Keys() {
		name, rng, err := parseEntryKey(key.Name())
		if err != nil {
			return nil, fmt.Errorf("%w in virtual name file %s", err, source)
		}
		t.Entries = append(t.Entries, Entry{Name: name, Range: rng, Value: key.Value()})
	}
	return t, nil
}

// parseEntryKey splits "name(start-end)" into the name and its range.
func parseEntryKey(key string) (string, ExpRange, error) {
	open := strings.IndexByte(key, '(')
	closing := strings.IndexByte(key, ')')
	if (open < 0) != (closing < 0) || closing < open {
		return "", ExpRange{}, fmt.Errorf("%w: invalid entry %q", common.ErrFormat, key)
	}
	if open < 0 {
		return strings.TrimSpace(key), ExpRange{}, nil
	}

	bounds := strings.Split(key[open+1:closing], "-")
	if len(bounds) != 2 {
		return "", ExpRange{}, fmt.Errorf("%w: invalid expID range in entry %q", common.ErrFormat, key)
	}
	start, err := parseBound(bounds[0])
	if err != nil {
		return "", ExpRange{}, fmt.Errorf("%w: invalid expID start in entry %q", common.ErrFormat, key)
	}
	end, err := parseBound(bounds[1])
	if err != nil {
		return "", ExpRange{}, fmt.Errorf("%w: invalid expID stop in entry %q", common.ErrFormat, key)
	}
	return strings.TrimSpace(key[:open]), ExpRange{Start: start, End: end}, nil
}

func parseBound(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := ParseExpID(s)
	if err != nil {
		return nil, err
	}
	n := id.Numeric()
	return &n, nil
}
