package disk

import (
	"bytes"
	"io"
)

var gptSignature = []byte("EFI PART")

// HasGPTSignature checks for the primary GPT header signature at LBA 1.
// It is a cheap filter only; the codec does the real validation.
func HasGPTSignature(r io.ReaderAt, sectorSize uint) bool {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}

	buf := make([]byte, len(gptSignature))

	if _, err := r.ReadAt(buf, int64(sectorSize)); err != nil {
		return false
	}

	return bytes.Equal(buf, gptSignature)
}
