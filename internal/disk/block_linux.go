//go:build linux

package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/siderolabs/go-blockdevice/v2/block"
	"github.com/siderolabs/go-blockdevice/v2/partitioning/gpt"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// BlockOpener opens device nodes through go-blockdevice.
type BlockOpener struct {
	Logger *zap.Logger
}

// NewBlockOpener returns an Opener for real block devices.
func NewBlockOpener(logger *zap.Logger) *BlockOpener {
	return &BlockOpener{Logger: logger}
}

// Open implements Opener.
func (o *BlockOpener) Open(path string, mode Mode) (Device, error) {
	var (
		bd  *block.Device
		err error
	)

	if mode == ReadWrite {
		bd, err = block.NewFromPath(path, block.OpenForWrite())
	} else {
		bd, err = block.NewFromPath(path)
	}

	if err != nil {
		return nil, busyError(path, err)
	}

	o.Logger.Debug("opened device", zap.String("device", path), zap.Stringer("mode", mode))

	return &blockDevice{
		path:       path,
		bd:         bd,
		sectorSize: getSectorSize(bd.File()),
		logger:     o.Logger,
	}, nil
}

// Exists implements Opener.
func (o *BlockOpener) Exists(path string) bool {
	return Exists(path)
}

type blockDevice struct {
	path       string
	bd         *block.Device
	sectorSize uint
	logger     *zap.Logger
}

func (d *blockDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.bd.File().ReadAt(p, off)
}

func (d *blockDevice) Path() string { return d.path }

func (d *blockDevice) SectorSize() uint { return d.sectorSize }

func (d *blockDevice) Size() (int64, error) {
	return getBlockDeviceSize(d.bd.File())
}

// GPTDevice exposes the handle to the GPT codec.
func (d *blockDevice) GPTDevice() (gpt.Device, error) {
	return gpt.DeviceFromBlockDevice(d.bd)
}

func (d *blockDevice) Close() error {
	d.logger.Debug("closing device", zap.String("device", d.path))

	return d.bd.Close()
}

// getSectorSize asks the kernel for the logical block size, then sysfs, then
// falls back to 512 bytes (regular image files end up here).
func getSectorSize(file *os.File) uint {
	sectorSize, err := unix.IoctlGetInt(int(file.Fd()), unix.BLKSSZGET)
	if err == nil && sectorSize > 0 {
		return uint(sectorSize)
	}

	devName := filepath.Base(file.Name())
	hwSectorSizePath := "/sys/class/block/" + devName + "/queue/hw_sector_size"

	data, err := os.ReadFile(hwSectorSizePath)
	if err == nil {
		sz, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && sz > 0 {
			return uint(sz)
		}
	}

	return DefaultSectorSize
}

// getBlockDeviceSize retrieves the total size of the block device using an ioctl call.
func getBlockDeviceSize(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("error stating disk: %w", err)
	}

	if info.Mode().IsRegular() {
		return info.Size(), nil
	}

	var size int64

	_, _, e := unix.Syscall(unix.SYS_IOCTL, file.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if e != 0 {
		return 0, fmt.Errorf("ioctl BLKGETSIZE64 failed: %v", e)
	}

	return size, nil
}
