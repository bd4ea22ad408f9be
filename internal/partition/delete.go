package partition

import (
	"github.com/siderolabs/gen/xerrors"
	"go.uber.org/zap"

	"partix/internal/disk"
	"partix/internal/table"
)

// Backuper saves a copy of the on-disk table before it is rewritten.
type Backuper interface {
	Save(dev disk.Device) (string, int64, error)
}

// Deleter removes partition entries from a device's table.
type Deleter struct {
	Opener disk.Opener
	Codec  table.Codec
	Logger *zap.Logger

	// Backup is optional.
	Backup Backuper
	// Saved, if set, is called after a successful backup.
	Saved func(file string, size int64)
}

// Delete removes entry index from the table on path and writes the table back.
// Nothing is written unless the entry exists and is in use.
func (d *Deleter) Delete(path string, index uint32) error {
	dev, err := d.Opener.Open(path, disk.ReadWrite)
	if err != nil {
		return xerrors.NewTaggedf[IOError]("%w", err)
	}

	defer dev.Close() //nolint:errcheck

	pt, err := d.Codec.Read(dev)
	if err != nil {
		return xerrors.NewTaggedf[CodecLoadError]("%s is not a valid GPT device: %w", path, err)
	}

	entry, ok := table.Lookup(pt, index)
	if !ok {
		return xerrors.NewTaggedf[NotFoundError]("partition #%d not found", index)
	}

	if !entry.Used {
		return xerrors.NewTaggedf[NotInUseError]("partition #%d not in use or deleted", index)
	}

	if d.Backup != nil {
		file, size, err := d.Backup.Save(dev)
		if err != nil {
			return xerrors.NewTaggedf[IOError]("error saving table backup: %w", err)
		}

		if d.Saved != nil {
			d.Saved(file, size)
		}
	}

	if err = pt.Remove(index); err != nil {
		return xerrors.NewTaggedf[CodecMutationError]("error removing partition #%d: %w", index, err)
	}

	if err = pt.Write(); err != nil {
		return xerrors.NewTaggedf[CodecMutationError]("error writing partition table to %s: %w", path, err)
	}

	d.Logger.Info("partition removed",
		zap.String("device", path),
		zap.Uint32("partition", index),
		zap.Uint64("start_lba", entry.StartLBA),
		zap.Uint64("size_lba", entry.SizeLBA),
	)

	return nil
}
