// Package fakes provides an in-memory table codec for tests.
//
// Tables are stored on fake disks as text:
//
//	FAKEGPT
//	<index> used|free <start-lba> <size-lba>
package fakes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"partix/internal/disk"
	diskfakes "partix/internal/disk/fakes"
	"partix/internal/table"
)

const magic = "FAKEGPT"

// Encode renders entries in the fake on-disk format.
func Encode(entries ...table.Entry) []byte {
	var buf bytes.Buffer

	buf.WriteString(magic + "\n")

	for _, e := range entries {
		state := "free"
		if e.Used {
			state = "used"
		}

		fmt.Fprintf(&buf, "%d %s %d %d\n", e.Index, state, e.StartLBA, e.SizeLBA)
	}

	return buf.Bytes()
}

// Decode parses the fake on-disk format.
func Decode(data []byte) ([]table.Entry, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() || scanner.Text() != magic {
		return nil, errors.New("missing table signature")
	}

	var entries []table.Entry

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed entry %q", scanner.Text())
		}

		index, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed index: %w", err)
		}

		start, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed start: %w", err)
		}

		size, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed size: %w", err)
		}

		entries = append(entries, table.Entry{
			Index:    uint32(index),
			Used:     fields[1] == "used",
			StartLBA: start,
			SizeLBA:  size,
		})
	}

	return entries, scanner.Err()
}

// FakeCodec reads tables from diskfakes devices.
type FakeCodec struct {
	// RemoveErr makes Remove clear the entry in memory and then fail.
	RemoveErr error
	// WriteErr makes Write fail without touching the disk.
	WriteErr error

	ReadCount int
}

// Read implements table.Codec.
func (c *FakeCodec) Read(dev disk.Device) (table.Table, error) {
	c.ReadCount++

	size, err := dev.Size()
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if _, err = dev.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("error reading table: %w", err)
	}

	entries, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("error reading table: %w", err)
	}

	fd, ok := dev.(*diskfakes.FakeDevice)
	if !ok {
		return nil, fmt.Errorf("%s is not a fake device", dev.Path())
	}

	return &FakeTable{
		entries:    entries,
		sectorSize: uint64(dev.SectorSize()),
		disk:       fd.Disk(),
		codec:      c,
	}, nil
}

// FakeTable is an in-memory table bound to a FakeDisk.
type FakeTable struct {
	entries    []table.Entry
	sectorSize uint64
	disk       *diskfakes.FakeDisk
	codec      *FakeCodec
}

// SectorSize implements table.Table.
func (t *FakeTable) SectorSize() uint64 { return t.sectorSize }

// Entries implements table.Table.
func (t *FakeTable) Entries() []table.Entry {
	return append([]table.Entry(nil), t.entries...)
}

// Remove implements table.Table. The slot is kept and marked free.
func (t *FakeTable) Remove(index uint32) error {
	for i := range t.entries {
		if t.entries[i].Index != index {
			continue
		}

		t.entries[i] = table.Entry{Index: index}

		if t.codec.RemoveErr != nil {
			return t.codec.RemoveErr
		}

		return nil
	}

	return fmt.Errorf("partition index %d out of range", index)
}

// Write implements table.Table.
func (t *FakeTable) Write() error {
	if t.codec.WriteErr != nil {
		return t.codec.WriteErr
	}

	t.disk.Write(Encode(t.entries...))

	return nil
}
