package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
)

// Status is the outcome of a cache lookup.
type Status int

const (
	Miss Status = iota
	Hit
	Corrupt
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Corrupt:
		return "corrupt"
	default:
		return "miss"
	}
}

// Result of Store.Get. Sample is only set on Hit, Err only on Corrupt.
type Result struct {
	Status Status
	Sample common.NodeSample
	Err    error
}

// Store keeps one file per (shot, node) in a flat directory. There is no
// locking between processes; a torn write is read back as Corrupt and
// refetched.
type Store struct {
	dir string
}

// New returns a store rooted at dir. A disabled store, or one without a
// directory, misses every lookup and drops every write.
func New(dir string, enabled bool) *Store {
	if !enabled {
		dir = ""
	}
	return &Store{dir: dir}
}

// Enabled reports whether the store reads and writes files.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// Dir returns the cache directory, empty when disabled.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// nameEscaper gives every character that cannot appear in a file name its
// own "_" sequence, so distinct nodes never share a file.
var nameEscaper = strings.NewReplacer("_", "__", `\`, "_b", "/", "_s", ":", "_c")

// FileName returns the cache file name for a node of a shot: the decimal
// shot, "_", then the node with "_", "\", "/" and ":" escaped.
func FileName(shot int32, node string) string {
	return strconv.FormatInt(int64(shot), 10) + "_" + nameEscaper.Replace(node)
}

// Path returns the full path of the cache file for a node of a shot.
func (s *Store) Path(shot int32, node string) string {
	return filepath.Join(s.dir, FileName(shot, node))
}

// Get looks up a node. It never fails: unreadable or undecodable files are
// reported as Corrupt so the caller can fall back to fetching.
func (s *Store) Get(shot int32, node string) Result {
	if !s.Enabled() {
		return Result{Status: Miss}
	}

	data, err := os.ReadFile(s.Path(shot, node))
	if errors.Is(err, fs.ErrNotExist) {
		return Result{Status: Miss}
	}
	if err != nil {
		return Result{Status: Corrupt, Err: err}
	}
	sample, err := decodeRecord(data)
	if err != nil {
		logger.Debug("Discarding cache file", "file", s.Path(shot, node), "err", err)
		return Result{Status: Corrupt, Err: err}
	}
	return Result{Status: Hit, Sample: sample}
}

// Put stores a node. The file is written under a temporary name and renamed
// into place, so readers see either the old file or the complete new one.
func (s *Store) Put(shot int32, node string, sample common.NodeSample) error {
	if !s.Enabled() {
		return nil
	}

	data, err := encodeRecord(sample)
	if err != nil {
		return fmt.Errorf("cannot encode cache record for %s: %w", node, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("cannot create cache directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+FileName(shot, node)+"-*")
	if err != nil {
		return fmt.Errorf("cannot open cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write cache file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot write cache file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.Path(shot, node)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot write cache file %s: %w", s.Path(shot, node), err)
	}
	return nil
}
