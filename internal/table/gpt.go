package table

import (
	"errors"
	"fmt"

	"github.com/siderolabs/go-blockdevice/v2/partitioning/gpt"

	"partix/internal/disk"
)

// gptSource is implemented by devices backed by a real block device.
type gptSource interface {
	GPTDevice() (gpt.Device, error)
}

// GPT reads GUID partition tables with go-blockdevice.
type GPT struct{}

// Read implements Codec.
func (GPT) Read(dev disk.Device) (Table, error) {
	src, ok := dev.(gptSource)
	if !ok {
		return nil, fmt.Errorf("%s is not a block device", dev.Path())
	}

	if !disk.HasGPTSignature(dev, dev.SectorSize()) {
		return nil, fmt.Errorf("no GPT signature found on %s", dev.Path())
	}

	gptdev, err := src.GPTDevice()
	if err != nil {
		return nil, fmt.Errorf("error getting GPT device: %w", err)
	}

	pt, err := gpt.Read(gptdev)
	if err != nil {
		return nil, fmt.Errorf("error reading GPT: %w", err)
	}

	t := &gptTable{
		pt:         pt,
		sectorSize: uint64(dev.SectorSize()),
		slots:      maxEntries,
	}

	l, err := readLayout(dev, dev.SectorSize())
	if err != nil {
		t.writeErr = err

		return t, nil
	}

	t.slots = int(l.numEntries)

	if parsed := countUsed(pt.Partitions()); parsed != l.used {
		t.writeErr = fmt.Errorf("%d of %d partition entries on %s lie outside the usable range", l.used-parsed, l.used, dev.Path())
	}

	return t, nil
}

func countUsed(parts []*gpt.Partition) int {
	n := 0

	for _, part := range parts {
		if part != nil {
			n++
		}
	}

	return n
}

type gptTable struct {
	pt         *gpt.Table
	sectorSize uint64

	// slots is the entry count declared by the on-disk header.
	slots int
	// writeErr is set when a rewrite would lose entries the library skipped.
	writeErr error
}

func (t *gptTable) SectorSize() uint64 { return t.sectorSize }

// Entries lists every slot the header declares; go-blockdevice trims the
// free slots after the last used one, they are reported here as free.
func (t *gptTable) Entries() []Entry {
	parts := t.pt.Partitions()
	entries := make([]Entry, 0, max(len(parts), t.slots))

	for i, part := range parts {
		entry := Entry{Index: uint32(i + 1)}

		if part != nil {
			entry.Used = true
			entry.StartLBA = part.FirstLBA

			if part.LastLBA >= part.FirstLBA {
				entry.SizeLBA = part.LastLBA - part.FirstLBA + 1
			}
		}

		entries = append(entries, entry)
	}

	for i := len(parts); i < t.slots; i++ {
		entries = append(entries, Entry{Index: uint32(i + 1)})
	}

	return entries
}

// Remove drops the entry; go-blockdevice indexes partitions from 0.
func (t *gptTable) Remove(index uint32) error {
	if index == 0 {
		return errors.New("partition index must start at 1")
	}

	return t.pt.DeletePartition(int(index) - 1)
}

func (t *gptTable) Write() error {
	if t.writeErr != nil {
		return fmt.Errorf("refusing to rewrite partition table: %w", t.writeErr)
	}

	return t.pt.Write()
}
