package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// maxEntries is the entry count go-blockdevice reads and writes.
	maxEntries = 128
	entrySize  = 128
	headerSize = 92
)

// layout is what the primary GPT header declares about the entry array.
type layout struct {
	numEntries uint32
	// used counts entries with a non-zero partition type GUID.
	used int
}

// readLayout decodes the entry array location from the primary header at
// LBA 1 and counts the used entries in it.
func readLayout(r io.ReaderAt, sectorSize uint) (layout, error) {
	if sectorSize == 0 {
		sectorSize = 512
	}

	header := make([]byte, headerSize)
	if _, err := r.ReadAt(header, int64(sectorSize)); err != nil {
		return layout{}, fmt.Errorf("error reading GPT header: %w", err)
	}

	entriesLBA := binary.LittleEndian.Uint64(header[72:80])
	numEntries := binary.LittleEndian.Uint32(header[80:84])
	size := binary.LittleEndian.Uint32(header[84:88])

	if size != entrySize {
		return layout{}, fmt.Errorf("unsupported partition entry size %d", size)
	}

	if numEntries == 0 || numEntries > maxEntries {
		return layout{}, fmt.Errorf("unsupported partition entry count %d", numEntries)
	}

	entries := make([]byte, int(numEntries)*entrySize)
	if _, err := r.ReadAt(entries, int64(entriesLBA)*int64(sectorSize)); err != nil {
		return layout{}, fmt.Errorf("error reading partition entries: %w", err)
	}

	l := layout{numEntries: numEntries}
	zeroGUID := make([]byte, 16)

	for i := range int(numEntries) {
		if !bytes.Equal(entries[i*entrySize:i*entrySize+16], zeroGUID) {
			l.used++
		}
	}

	return l, nil
}
