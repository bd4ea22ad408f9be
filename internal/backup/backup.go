// Package backup saves compressed copies of the GPT regions of a device before
// the table is rewritten.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"partix/internal/disk"
)

// entryArrayBytes is the size of a standard 128-entry GPT partition array.
const entryArrayBytes = 128 * 128

// codec is a compression algorithm a backup can be written with.
type codec struct {
	name      string
	extension string
	// open wraps output; closing the result finishes the stream but leaves
	// output open.
	open func(output io.Writer) (io.WriteCloser, error)
}

var codecs = []codec{
	{"gzip", ".gz", func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }},
	{"zlib", ".zlib", func(w io.Writer) (io.WriteCloser, error) { return zlib.NewWriter(w), nil }},
	{"bzip2", ".bz2", func(w io.Writer) (io.WriteCloser, error) { return bzip2.NewWriter(w, &bzip2.WriterConfig{}) }},
	{"snappy", ".snappy", func(w io.Writer) (io.WriteCloser, error) { return snappy.NewBufferedWriter(w), nil }},
	{"s2", ".s2", func(w io.Writer) (io.WriteCloser, error) { return s2.NewWriter(w), nil }},
	{"zstd", ".zst", func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) }},
	{"zip", ".zip", newZipEntry},
}

// Algorithms lists the supported compression algorithms.
var Algorithms = func() []string {
	names := make([]string, 0, len(codecs))
	for _, c := range codecs {
		names = append(names, c.name)
	}

	return names
}()

func lookup(algorithm string) (codec, error) {
	for _, c := range codecs {
		if c.name == algorithm {
			return c, nil
		}
	}

	return codec{}, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
}

type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)

	return n, err
}

// Extension returns the backup file extension for algorithm.
func Extension(algorithm string) (string, error) {
	c, err := lookup(algorithm)
	if err != nil {
		return "", err
	}

	return c.extension, nil
}

// newZipEntry stores the backup as the single member of a zip archive.
func newZipEntry(output io.Writer) (io.WriteCloser, error) {
	zipWriter := zip.NewWriter(output)

	zipFile, err := zipWriter.Create("table.gpt")
	if err != nil {
		_ = zipWriter.Close()

		return nil, fmt.Errorf("failed to create zip entry: %w", err)
	}

	return zipEntry{Writer: zipFile, zw: zipWriter}, nil
}

type zipEntry struct {
	io.Writer

	zw *zip.Writer
}

func (z zipEntry) Close() error { return z.zw.Close() }

// Region is a byte range of the device saved in a backup.
type Region struct {
	Offset int64
	Length int64
}

// Regions returns the primary (protective MBR, header, entry array) and
// backup (entry array, header) GPT regions of a device.
func Regions(sectorSize uint, size int64) []Region {
	if sectorSize == 0 {
		sectorSize = disk.DefaultSectorSize
	}

	ss := int64(sectorSize)
	primary := 2*ss + entryArrayBytes
	secondary := entryArrayBytes + ss

	if size <= primary+secondary {
		return []Region{{Offset: 0, Length: size}}
	}

	return []Region{
		{Offset: 0, Length: primary},
		{Offset: size - secondary, Length: secondary},
	}
}

// Snapshotter writes table backups into Dir.
type Snapshotter struct {
	Dir       string
	Algorithm string
	Logger    *zap.Logger

	Now func() time.Time
}

// NewSnapshotter validates algorithm and returns a Snapshotter.
func NewSnapshotter(dir, algorithm string, logger *zap.Logger) (*Snapshotter, error) {
	if _, err := Extension(algorithm); err != nil {
		return nil, err
	}

	return &Snapshotter{
		Dir:       dir,
		Algorithm: algorithm,
		Logger:    logger,
		Now:       time.Now,
	}, nil
}

// Save copies the GPT regions of dev into a new compressed file and returns
// its path and compressed size. The device is only read.
func (s *Snapshotter) Save(dev disk.Device) (string, int64, error) {
	extension, err := Extension(s.Algorithm)
	if err != nil {
		return "", 0, err
	}

	size, err := dev.Size()
	if err != nil {
		return "", 0, fmt.Errorf("error getting size of %s: %w", dev.Path(), err)
	}

	if err = os.MkdirAll(s.Dir, 0o700); err != nil {
		return "", 0, fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.gpt%s", filepath.Base(dev.Path()), s.Now().UTC().Format("20060102T150405.000000000"), extension)
	outputfile := filepath.Join(s.Dir, name)

	output, err := os.OpenFile(outputfile, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create output file: %w", err)
	}

	cw := &countingWriter{w: output}

	if err = s.copyRegions(dev, size, cw); err != nil {
		_ = output.Close()
		_ = os.Remove(outputfile)

		return "", 0, err
	}

	if err = output.Close(); err != nil {
		_ = os.Remove(outputfile)

		return "", 0, fmt.Errorf("failed to close output file: %w", err)
	}

	s.Logger.Info("saved table backup",
		zap.String("device", dev.Path()),
		zap.String("file", outputfile),
		zap.Int64("bytes", cw.count),
	)

	return outputfile, cw.count, nil
}

func (s *Snapshotter) copyRegions(dev disk.Device, size int64, output io.Writer) error {
	c, err := lookup(s.Algorithm)
	if err != nil {
		return err
	}

	compressedWriter, err := c.open(output)
	if err != nil {
		return fmt.Errorf("failed to create compression writer: %w", err)
	}

	for _, region := range Regions(dev.SectorSize(), size) {
		if _, err = io.Copy(compressedWriter, io.NewSectionReader(dev, region.Offset, region.Length)); err != nil {
			_ = compressedWriter.Close()

			return fmt.Errorf("error reading %s at offset %d: %w", dev.Path(), region.Offset, err)
		}
	}

	if err = compressedWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed stream: %w", err)
	}

	return nil
}
