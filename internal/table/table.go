// Package table is the partition table codec boundary: it parses a table from
// an open device, removes entries and writes the table back.
package table

import (
	"partix/internal/disk"
)

// Entry is one slot of the partition entry array.
type Entry struct {
	// Index is 1-based and stable within a table.
	Index uint32
	Used  bool

	StartLBA uint64
	// SizeLBA is zero when the slot is free or the size cannot be determined.
	SizeLBA uint64
}

// Table is a partition table loaded from one device by one operation.
type Table interface {
	// SectorSize is the logical block size in bytes.
	SectorSize() uint64
	// Entries returns all slots, used and free, in index order.
	Entries() []Entry
	// Remove clears the entry at index in memory.
	Remove(index uint32) error
	// Write serializes the table into the device it was read from.
	Write() error
}

// Codec loads tables from devices.
type Codec interface {
	Read(dev disk.Device) (Table, error)
}

// Lookup returns the entry with the given index, used or not.
func Lookup(t Table, index uint32) (Entry, bool) {
	for _, e := range t.Entries() {
		if e.Index == index {
			return e, true
		}
	}

	return Entry{}, false
}

// Used returns the used entries of t.
func Used(t Table) []Entry {
	var out []Entry

	for _, e := range t.Entries() {
		if e.Used {
			out = append(out, e)
		}
	}

	return out
}
