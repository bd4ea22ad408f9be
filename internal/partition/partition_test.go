package partition_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/siderolabs/gen/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"partix/internal/disk"
	diskfakes "partix/internal/disk/fakes"
	"partix/internal/partition"
	"partix/internal/table"
	tablefakes "partix/internal/table/fakes"
	"partix/internal/units"
)

func threeSlots() []byte {
	return tablefakes.Encode(
		table.Entry{Index: 1, Used: true, StartLBA: 2048, SizeLBA: 2048},
		table.Entry{Index: 2},
		table.Entry{Index: 3, Used: true, StartLBA: 4096, SizeLBA: 8192},
	)
}

func TestShow(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	opener.Add("/dev/testdisk", &diskfakes.FakeDisk{
		Data: tablefakes.Encode(table.Entry{Index: 1, Used: true, StartLBA: 2048, SizeLBA: 2048}),
	})

	var out bytes.Buffer

	require.NoError(t, partition.Show(&out, opener, &tablefakes.FakeCodec{}, "/dev/testdisk", units.Bytes))

	expected := "GPT detected on /dev/testdisk\n" +
		"\n" +
		fmt.Sprintf("  %-11s %-14s %-14s %-21s\n", "PART:", "START:", "END:", "SIZE:") +
		fmt.Sprintf("  #%-10d %-14s %-14s %-21s\n", 1, "1048576 B", "2096640 B", "1048576 B") +
		"\n"

	assert.Equal(t, expected, out.String())
	assert.Zero(t, opener.OpenHandles())
	assert.Equal(t, []diskfakes.OpenCall{{Path: "/dev/testdisk", Mode: disk.ReadOnly}}, opener.OpenCalls)
}

func TestShowIsIdempotent(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	d := opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: threeSlots()})
	before := append([]byte(nil), d.Data...)

	var first, second bytes.Buffer

	require.NoError(t, partition.Show(&first, opener, &tablefakes.FakeCodec{}, "/dev/sda", units.Auto))
	require.NoError(t, partition.Show(&second, opener, &tablefakes.FakeCodec{}, "/dev/sda", units.Auto))

	assert.Equal(t, first.String(), second.String())
	assert.NotContains(t, first.String(), "#2 ")
	assert.Equal(t, before, d.Data)
	assert.Zero(t, d.WriteCount)
}

func TestRowsSkipsFreeEntries(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: tablefakes.Encode(
		table.Entry{Index: 1},
		table.Entry{Index: 2, Used: true, StartLBA: 0, SizeLBA: 0},
		table.Entry{Index: 3, Used: true, StartLBA: 34, SizeLBA: 1},
	)})

	pt, err := partition.Load(opener, &tablefakes.FakeCodec{}, "/dev/sda")
	require.NoError(t, err)

	rows := partition.Rows(pt, units.Bytes)
	require.Len(t, rows, 2)

	assert.Equal(t, partition.Row{Index: 2, Start: "0 B", End: "0 B", Size: "0 B"}, rows[0])
	assert.Equal(t, partition.Row{Index: 3, Start: "17408 B", End: "17408 B", Size: "512 B"}, rows[1])
}

func TestLoadErrors(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	opener.Add("/dev/garbage", &diskfakes.FakeDisk{Data: []byte("not a table")})
	opener.Add("/dev/busy", &diskfakes.FakeDisk{OpenErr: errors.New("device or resource busy")})

	for _, tc := range []struct {
		name  string
		path  string
		check func(error) bool
	}{
		{"missing", "/dev/missing", xerrors.TagIs[partition.IOError]},
		{"open failure", "/dev/busy", xerrors.TagIs[partition.IOError]},
		{"invalid table", "/dev/garbage", xerrors.TagIs[partition.CodecLoadError]},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := partition.Load(opener, &tablefakes.FakeCodec{}, tc.path)
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error: %v", err)
			assert.Zero(t, opener.OpenHandles())
		})
	}
}

func TestScan(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: threeSlots()})
	opener.Add("/dev/sdb", &diskfakes.FakeDisk{Data: []byte("garbage")})
	opener.Add("/dev/sdc", &diskfakes.FakeDisk{OpenErr: errors.New("permission denied")})

	var progress []string

	scanner := &partition.Scanner{
		Opener: opener,
		Codec:  &tablefakes.FakeCodec{},
		Logger: zaptest.NewLogger(t),
		Candidates: func() ([]string, error) {
			return []string{"/dev/sda", "/dev/sdb", "/dev/sdc"}, nil
		},
		Progress: func(path string, _, _ int) { progress = append(progress, path) },
	}

	seq, err := scanner.Scan()
	require.NoError(t, err)

	var found []string

	for path, pt := range seq {
		found = append(found, path)
		assert.Len(t, table.Used(pt), 2)
	}

	assert.Equal(t, []string{"/dev/sda"}, found)
	assert.Equal(t, []string{"/dev/sda", "/dev/sdb", "/dev/sdc"}, progress)
	assert.Zero(t, opener.OpenHandles())

	for _, call := range opener.OpenCalls {
		assert.Equal(t, disk.ReadOnly, call.Mode)
	}
}

func TestScanStopsEarly(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: threeSlots()})
	opener.Add("/dev/sdb", &diskfakes.FakeDisk{Data: threeSlots()})

	scanner := &partition.Scanner{
		Opener: opener,
		Codec:  &tablefakes.FakeCodec{},
		Logger: zaptest.NewLogger(t),
		Candidates: func() ([]string, error) {
			return []string{"/dev/sda", "/dev/sdb"}, nil
		},
	}

	seq, err := scanner.Scan()
	require.NoError(t, err)

	for range seq {
		break
	}

	assert.Len(t, opener.OpenCalls, 1)
}

func TestScanCandidatesError(t *testing.T) {
	scanner := partition.NewScanner(diskfakes.NewFakeOpener(), &tablefakes.FakeCodec{}, t.TempDir()+"/missing", zaptest.NewLogger(t))

	_, err := scanner.Scan()
	require.Error(t, err)
}

type fakeBackup struct {
	err   error
	saved []string
}

func (b *fakeBackup) Save(dev disk.Device) (string, int64, error) {
	if b.err != nil {
		return "", 0, b.err
	}

	b.saved = append(b.saved, dev.Path())

	return "/backups/" + dev.Path(), 42, nil
}

func TestDelete(t *testing.T) {
	for _, tc := range []struct {
		name     string
		index    uint32
		codec    *tablefakes.FakeCodec
		backup   *fakeBackup
		check    func(error) bool
		errorMsg string
	}{
		{
			name:     "free slot",
			index:    2,
			codec:    &tablefakes.FakeCodec{},
			check:    xerrors.TagIs[partition.NotInUseError],
			errorMsg: "partition #2 not in use or deleted",
		},
		{
			name:     "absent slot",
			index:    4,
			codec:    &tablefakes.FakeCodec{},
			check:    xerrors.TagIs[partition.NotFoundError],
			errorMsg: "partition #4 not found",
		},
		{
			name:     "zero index",
			index:    0,
			codec:    &tablefakes.FakeCodec{},
			check:    xerrors.TagIs[partition.NotFoundError],
			errorMsg: "partition #0 not found",
		},
		{
			name:     "remove failure",
			index:    1,
			codec:    &tablefakes.FakeCodec{RemoveErr: errors.New("entry locked")},
			check:    xerrors.TagIs[partition.CodecMutationError],
			errorMsg: "error removing partition #1: entry locked",
		},
		{
			name:     "write failure",
			index:    1,
			codec:    &tablefakes.FakeCodec{WriteErr: errors.New("short write")},
			check:    xerrors.TagIs[partition.CodecMutationError],
			errorMsg: "short write",
		},
		{
			name:     "backup failure",
			index:    1,
			codec:    &tablefakes.FakeCodec{},
			backup:   &fakeBackup{err: errors.New("disk full")},
			check:    xerrors.TagIs[partition.IOError],
			errorMsg: "error saving table backup: disk full",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opener := diskfakes.NewFakeOpener()
			d := opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: threeSlots()})
			before := append([]byte(nil), d.Data...)

			deleter := &partition.Deleter{
				Opener: opener,
				Codec:  tc.codec,
				Logger: zaptest.NewLogger(t),
			}

			if tc.backup != nil {
				deleter.Backup = tc.backup
			}

			err := deleter.Delete("/dev/sda", tc.index)
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error: %v", err)
			assert.Contains(t, err.Error(), tc.errorMsg)

			assert.Equal(t, before, d.Data)
			assert.Zero(t, d.WriteCount)
			assert.Zero(t, opener.OpenHandles())
		})
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	d := opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: threeSlots()})
	codec := &tablefakes.FakeCodec{}
	backup := &fakeBackup{}

	var savedFile string

	deleter := &partition.Deleter{
		Opener: opener,
		Codec:  codec,
		Logger: zaptest.NewLogger(t),
		Backup: backup,
		Saved:  func(file string, _ int64) { savedFile = file },
	}

	require.NoError(t, deleter.Delete("/dev/sda", 1))

	assert.Equal(t, 1, d.WriteCount)
	assert.Equal(t, []string{"/dev/sda"}, backup.saved)
	assert.Equal(t, "/backups//dev/sda", savedFile)
	assert.Zero(t, opener.OpenHandles())
	assert.Equal(t, disk.ReadWrite, opener.OpenCalls[0].Mode)

	pt, err := partition.Load(opener, codec, "/dev/sda")
	require.NoError(t, err)

	used := table.Used(pt)
	require.Len(t, used, 1)
	assert.EqualValues(t, 3, used[0].Index)

	var out bytes.Buffer

	require.NoError(t, partition.Render(&out, pt, "/dev/sda", units.Bytes))
	assert.NotContains(t, out.String(), "#1 ")
	assert.Contains(t, out.String(), "#3 ")

	err = deleter.Delete("/dev/sda", 1)
	require.Error(t, err)
	assert.True(t, xerrors.TagIs[partition.NotInUseError](err))
	assert.Equal(t, 1, d.WriteCount)
}

func TestDeleteOpenFailure(t *testing.T) {
	opener := diskfakes.NewFakeOpener()

	deleter := &partition.Deleter{
		Opener: opener,
		Codec:  &tablefakes.FakeCodec{},
		Logger: zaptest.NewLogger(t),
	}

	err := deleter.Delete("/dev/nothing", 1)
	require.Error(t, err)
	assert.True(t, xerrors.TagIs[partition.IOError](err))
}

func TestDeleteInvalidTable(t *testing.T) {
	opener := diskfakes.NewFakeOpener()
	d := opener.Add("/dev/sda", &diskfakes.FakeDisk{Data: []byte("garbage")})

	deleter := &partition.Deleter{
		Opener: opener,
		Codec:  &tablefakes.FakeCodec{},
		Logger: zaptest.NewLogger(t),
	}

	err := deleter.Delete("/dev/sda", 1)
	require.Error(t, err)
	assert.True(t, xerrors.TagIs[partition.CodecLoadError](err))
	assert.Contains(t, err.Error(), "/dev/sda is not a valid GPT device")
	assert.Zero(t, d.WriteCount)
	assert.Zero(t, opener.OpenHandles())
}
