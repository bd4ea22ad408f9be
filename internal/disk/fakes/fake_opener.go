// Package fakes provides in-memory devices for tests.
package fakes

import (
	"bytes"
	"fmt"
	"io/fs"
	"sync"

	"partix/internal/disk"
)

// FakeDisk is the backing store of a fake device.
type FakeDisk struct {
	Data       []byte
	Sectors    uint
	OpenErr    error
	WriteCount int
}

// Write replaces the disk contents and counts the write.
func (d *FakeDisk) Write(data []byte) {
	d.Data = append([]byte(nil), data...)
	d.WriteCount++
}

// OpenCall records a call to Open.
type OpenCall struct {
	Path string
	Mode disk.Mode
}

// FakeOpener serves FakeDisks by path.
type FakeOpener struct {
	mu sync.Mutex

	Disks map[string]*FakeDisk

	OpenCalls []OpenCall
	openCount int
}

// NewFakeOpener returns an opener with no disks.
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{Disks: map[string]*FakeDisk{}}
}

// Add registers a disk at path.
func (o *FakeOpener) Add(path string, d *FakeDisk) *FakeDisk {
	o.Disks[path] = d

	return d
}

// Open implements disk.Opener.
func (o *FakeOpener) Open(path string, mode disk.Mode) (disk.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.OpenCalls = append(o.OpenCalls, OpenCall{Path: path, Mode: mode})

	d, ok := o.Disks[path]
	if !ok {
		return nil, fmt.Errorf("error opening disk %s: %w", path, fs.ErrNotExist)
	}

	if d.OpenErr != nil {
		return nil, fmt.Errorf("error opening disk %s: %w", path, d.OpenErr)
	}

	o.openCount++

	return &FakeDevice{path: path, disk: d, opener: o}, nil
}

// Exists implements disk.Opener.
func (o *FakeOpener) Exists(path string) bool {
	_, ok := o.Disks[path]

	return ok
}

// OpenHandles returns the number of devices opened and not yet closed.
func (o *FakeOpener) OpenHandles() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.openCount
}

// FakeDevice is an open handle on a FakeDisk.
type FakeDevice struct {
	path   string
	disk   *FakeDisk
	opener *FakeOpener
	closed bool
}

// Disk returns the backing store.
func (d *FakeDevice) Disk() *FakeDisk { return d.disk }

// ReadAt implements io.ReaderAt.
func (d *FakeDevice) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(d.disk.Data).ReadAt(p, off)
}

// Path implements disk.Device.
func (d *FakeDevice) Path() string { return d.path }

// SectorSize implements disk.Device.
func (d *FakeDevice) SectorSize() uint {
	if d.disk.Sectors == 0 {
		return disk.DefaultSectorSize
	}

	return d.disk.Sectors
}

// Size implements disk.Device.
func (d *FakeDevice) Size() (int64, error) { return int64(len(d.disk.Data)), nil }

// Close implements io.Closer.
func (d *FakeDevice) Close() error {
	if d.closed {
		return fmt.Errorf("device %s already closed", d.path)
	}

	d.closed = true

	d.opener.mu.Lock()
	d.opener.openCount--
	d.opener.mu.Unlock()

	return nil
}
