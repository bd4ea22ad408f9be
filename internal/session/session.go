// Package session holds the interactive state of partix: the selected device,
// the display unit, and the commands that act on them.
package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uilive"
	"github.com/siderolabs/gen/xerrors"
	"go.uber.org/zap"

	"partix/internal/disk"
	"partix/internal/partition"
	"partix/internal/table"
	"partix/internal/units"
)

// Error tags, checked with xerrors.TagIs.
type (
	// UserInputError tags malformed commands and arguments.
	UserInputError struct{}
	// SelectionError tags commands that need a device which is missing or unset.
	SelectionError struct{}
)

// ErrUnknownCommand is reported for lines that match no command.
var ErrUnknownCommand = xerrors.NewTaggedf[UserInputError]("Unknown command. Type 'help' for available commands.")

var errNoDevice = xerrors.NewTaggedf[SelectionError]("No device selected. Use 'select /dev/sdX' to select one.")

// State is the selection state of a session.
type State int

// Session states.
const (
	NoDeviceSelected State = iota
	DeviceSelected
)

func (s State) String() string {
	if s == DeviceSelected {
		return "DeviceSelected"
	}

	return "NoDeviceSelected"
}

// Config wires a Session to its collaborators.
type Config struct {
	Opener  disk.Opener
	Codec   table.Codec
	Scanner *partition.Scanner
	Deleter *partition.Deleter
	Logger  *zap.Logger
	Out     io.Writer

	// Color enables the red error prefix.
	Color bool
	// Live shows scan progress on a refreshing line.
	Live bool
}

// Session is the state of one interactive run.
type Session struct {
	device string
	unit   units.Unit

	out      io.Writer
	opener   disk.Opener
	codec    table.Codec
	scanner  *partition.Scanner
	deleter  *partition.Deleter
	logger   *zap.Logger
	errColor *color.Color
	live     bool
}

// New returns a session with device preselected when it is non-empty. The
// device is not checked for existence.
func New(cfg Config, device string) *Session {
	s := &Session{
		device:   device,
		unit:     units.Auto,
		out:      cfg.Out,
		opener:   cfg.Opener,
		codec:    cfg.Codec,
		scanner:  cfg.Scanner,
		logger:   cfg.Logger,
		errColor: color.New(color.FgRed),
		live:     cfg.Live,
	}

	if cfg.Color {
		s.errColor.EnableColor()
	} else {
		s.errColor.DisableColor()
	}

	if cfg.Deleter != nil {
		deleter := *cfg.Deleter
		deleter.Saved = s.reportBackup
		s.deleter = &deleter
	}

	return s
}

// State returns the selection state.
func (s *Session) State() State {
	if s.device == "" {
		return NoDeviceSelected
	}

	return DeviceSelected
}

// Device returns the selected device path, or "" when none is selected.
func (s *Session) Device() string { return s.device }

// Unit returns the display unit.
func (s *Session) Unit() units.Unit { return s.unit }

// Greet prints the startup selection line.
func (s *Session) Greet() {
	if s.device == "" {
		fmt.Fprintln(s.out, errNoDevice.Error())

		return
	}

	fmt.Fprintf(s.out, "Selected device: %s\n", s.device)
}

// Select makes path the current device if it exists.
func (s *Session) Select(path string) error {
	if !s.opener.Exists(path) {
		return xerrors.NewTaggedf[SelectionError]("Device not found: %s", path)
	}

	s.device = path
	s.logger.Debug("device selected", zap.String("device", path))

	fmt.Fprintf(s.out, "Selected device: %s\n", path)

	return nil
}

// Show lists the selected device, or every GPT device found by a scan.
func (s *Session) Show() error {
	if s.device != "" {
		return partition.Show(s.out, s.opener, s.codec, s.device, s.unit)
	}

	fmt.Fprint(s.out, "Scanning all disks for GPT...\n\n")

	scanner := *s.scanner
	out := s.out

	if s.live {
		writer := uilive.New()
		writer.Out = s.out
		writer.Start()

		defer stopLive(writer)

		scanner.Progress = func(path string, n, total int) {
			fmt.Fprintf(writer, "Probing %s (%d/%d)\n", path, n, total)
		}
		out = writer.Bypass()
	}

	tables, err := scanner.Scan()
	if err != nil {
		return xerrors.NewTaggedf[partition.IOError]("error listing devices: %w", err)
	}

	for path, pt := range tables {
		if err = partition.Render(out, pt, path, s.unit); err != nil {
			return fmt.Errorf("error rendering partition table: %w", err)
		}

		fmt.Fprintln(out)
	}

	return nil
}

// stopLive erases the progress line and stops the writer.
func stopLive(writer *uilive.Writer) {
	writer.Flush() //nolint:errcheck

	// a bypass write clears the lines uilive drew last
	writer.Bypass().Write(nil) //nolint:errcheck

	writer.Stop()
}

// SetUnit changes the display unit.
func (s *Session) SetUnit(name string) error {
	u, err := units.Parse(name)
	if err != nil {
		return xerrors.NewTaggedf[UserInputError]("%w", err)
	}

	s.unit = u

	fmt.Fprintf(s.out, "Unit set to %s\n", u)

	return nil
}

// ShowUnit prints the display unit.
func (s *Session) ShowUnit() {
	fmt.Fprintf(s.out, "Current unit: %s\n", s.unit)
}

// Delete removes partition index from the selected device.
func (s *Session) Delete(index uint32) error {
	if s.device == "" {
		return errNoDevice
	}

	fmt.Fprintf(s.out, "Removing partition #%d from device %s\n", index, s.device)

	if err := s.deleter.Delete(s.device, index); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "Partition #%d successfully removed from the device %s.\n", index, s.device)

	return nil
}

func (s *Session) reportBackup(file string, size int64) {
	fmt.Fprintf(s.out, "Saved table backup to %s (%s)\n", file, humanize.Bytes(uint64(size)))
}

// report prints a command error. Selection hints and the unknown command
// message are printed as is.
func (s *Session) report(err error) {
	s.logger.Debug("command failed", zap.Error(err))

	if errors.Is(err, ErrUnknownCommand) || xerrors.TagIs[SelectionError](err) {
		fmt.Fprintln(s.out, err.Error())

		return
	}

	s.errColor.Fprintf(s.out, "Error: %s\n", err) //nolint:errcheck
}
