//go:build !linux

package disk

import (
	"go.uber.org/zap"
)

// BlockOpener opens device nodes. Only Linux is supported.
type BlockOpener struct {
	Logger *zap.Logger
}

// NewBlockOpener returns an Opener for real block devices.
func NewBlockOpener(logger *zap.Logger) *BlockOpener {
	return &BlockOpener{Logger: logger}
}

// Open implements Opener.
func (o *BlockOpener) Open(path string, _ Mode) (Device, error) {
	return nil, busyError(path, ErrUnsupported)
}

// Exists implements Opener.
func (o *BlockOpener) Exists(path string) bool {
	return Exists(path)
}
