// Package partition lists, scans and deletes partition table entries.
package partition

import (
	"fmt"
	"io"
	"text/template"

	"github.com/siderolabs/gen/xerrors"

	"partix/internal/disk"
	"partix/internal/table"
	"partix/internal/units"
)

const partitionTmpl = `GPT detected on {{ .Label }}

{{ printf "  %-11s %-14s %-14s %-21s" "PART:" "START:" "END:" "SIZE:" }}
{{ range .Rows }}{{ printf "  #%-10d %-14s %-14s %-21s" .Index .Start .End .Size }}
{{ end }}
`

var listing = template.Must(template.New("partition").Parse(partitionTmpl))

// Row is one rendered line of the listing.
type Row struct {
	Index uint32
	Start string
	End   string
	Size  string
}

// Rows converts the used entries of t to display rows.
func Rows(t table.Table, unit units.Unit) []Row {
	sectorSize := t.SectorSize()
	used := table.Used(t)
	rows := make([]Row, 0, len(used))

	for _, e := range used {
		start := e.StartLBA * sectorSize
		size := e.SizeLBA * sectorSize

		var end uint64
		if e.StartLBA+e.SizeLBA > 0 {
			end = (e.StartLBA + e.SizeLBA - 1) * sectorSize
		}

		rows = append(rows, Row{
			Index: e.Index,
			Start: units.Format(start, unit),
			End:   units.Format(end, unit),
			Size:  units.Format(size, unit),
		})
	}

	return rows
}

// Render writes the listing of t, labelled with the device path.
func Render(w io.Writer, t table.Table, label string, unit units.Unit) error {
	return listing.Execute(w, struct {
		Label string
		Rows  []Row
	}{
		Label: label,
		Rows:  Rows(t, unit),
	})
}

// Load opens path read-only and reads its table. The device is closed before
// returning; the table stays usable for reading.
func Load(opener disk.Opener, codec table.Codec, path string) (table.Table, error) {
	dev, err := opener.Open(path, disk.ReadOnly)
	if err != nil {
		return nil, xerrors.NewTaggedf[IOError]("%w", err)
	}

	defer dev.Close() //nolint:errcheck

	pt, err := codec.Read(dev)
	if err != nil {
		return nil, xerrors.NewTaggedf[CodecLoadError]("%s is not a valid GPT device: %w", path, err)
	}

	return pt, nil
}

// Show loads path and renders its table to w.
func Show(w io.Writer, opener disk.Opener, codec table.Codec, path string, unit units.Unit) error {
	pt, err := Load(opener, codec, path)
	if err != nil {
		return err
	}

	if err = Render(w, pt, path, unit); err != nil {
		return fmt.Errorf("error rendering partition table: %w", err)
	}

	return nil
}
