// Package disk opens block devices for the duration of a single command and
// enumerates the device nodes a scan should probe.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSectorSize is used when the kernel does not report a logical block size.
const DefaultSectorSize = 512

// DefaultPrefixes are the device-node name prefixes probed by a scan.
var DefaultPrefixes = []string{"sd", "nvme", "vd"}

// ErrUnsupported is returned by Open on platforms without block device support.
var ErrUnsupported = errors.New("block devices are not supported on this platform")

// Mode selects how a device is opened.
type Mode int

// Open modes.
const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}

	return "read-only"
}

// Device is an open device handle. It must be closed by the command that opened it.
type Device interface {
	io.ReaderAt
	io.Closer

	Path() string
	SectorSize() uint
	Size() (int64, error)
}

// Opener opens devices by path.
type Opener interface {
	Open(path string, mode Mode) (Device, error)
	Exists(path string) bool
}

// Exists reports whether path names an existing node.
func Exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// Candidates lists the entries of dir whose names start with one of prefixes,
// sorted by path.
func Candidates(dir string, prefixes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", dir, err)
	}

	var paths []string

	for _, entry := range entries {
		name := entry.Name()

		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				paths = append(paths, filepath.Join(dir, name))

				break
			}
		}
	}

	sort.Strings(paths)

	return paths, nil
}

// busyError rewrites an open failure on a busy device into an actionable message.
func busyError(path string, err error) error {
	errStr := err.Error()
	if strings.Contains(errStr, "resource busy") || strings.Contains(errStr, "device busy") {
		return fmt.Errorf("device %s is busy (may be mounted). Please unmount all partitions first: %w", path, err)
	}

	return fmt.Errorf("error opening disk %s: %w", path, err)
}
