package partition

import (
	"iter"

	"go.uber.org/zap"

	"partix/internal/disk"
	"partix/internal/table"
)

// Scanner probes candidate device nodes for partition tables.
type Scanner struct {
	Opener disk.Opener
	Codec  table.Codec
	Logger *zap.Logger

	// Candidates lists the paths to probe, in order.
	Candidates func() ([]string, error)
	// Progress, if set, is called before each probe.
	Progress func(path string, n, total int)
}

// NewScanner scans dir for the default device-node prefixes.
func NewScanner(opener disk.Opener, codec table.Codec, dir string, logger *zap.Logger) *Scanner {
	return &Scanner{
		Opener: opener,
		Codec:  codec,
		Logger: logger,
		Candidates: func() ([]string, error) {
			return disk.Candidates(dir, disk.DefaultPrefixes)
		},
	}
}

// Scan lists the candidates and returns a sequence of the ones holding a valid
// table. Candidates that cannot be opened or parsed are skipped.
func (s *Scanner) Scan() (iter.Seq2[string, table.Table], error) {
	paths, err := s.Candidates()
	if err != nil {
		return nil, err
	}

	return func(yield func(string, table.Table) bool) {
		for i, path := range paths {
			if s.Progress != nil {
				s.Progress(path, i+1, len(paths))
			}

			pt, err := s.probe(path)
			if err != nil {
				s.Logger.Debug("skipping device", zap.String("device", path), zap.Error(err))

				continue
			}

			if !yield(path, pt) {
				return
			}
		}
	}, nil
}

func (s *Scanner) probe(path string) (table.Table, error) {
	dev, err := s.Opener.Open(path, disk.ReadOnly)
	if err != nil {
		return nil, err
	}

	defer dev.Close() //nolint:errcheck

	return s.Codec.Read(dev)
}
