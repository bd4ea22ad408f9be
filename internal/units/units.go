// Package units formats byte counts for the partition listing.
package units

import (
	"fmt"
	"strings"
)

const (
	kb = 1 << 10
	mb = 1 << 20
	gb = 1 << 30
)

// Unit is the display unit used for partition offsets and sizes.
type Unit int

// Display units. Auto picks the largest unit the value reaches.
const (
	Auto Unit = iota
	Bytes
	Kilobytes
	Megabytes
	Gigabytes
)

// all lists the units in operator-name order.
var all = []struct {
	unit  Unit
	name  string
	label string
}{
	{Auto, "a", "A"},
	{Bytes, "b", "B"},
	{Kilobytes, "kb", "KB"},
	{Megabytes, "mb", "MB"},
	{Gigabytes, "g", "G"},
}

// All returns every unit.
func All() []Unit {
	out := make([]Unit, 0, len(all))
	for _, u := range all {
		out = append(out, u.unit)
	}

	return out
}

// Names returns the operator names accepted by Parse.
func Names() []string {
	out := make([]string, 0, len(all))
	for _, u := range all {
		out = append(out, u.name)
	}

	return out
}

// Parse maps an operator name (a, b, kb, mb, g) to a Unit.
func Parse(name string) (Unit, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for _, u := range all {
		if u.name == name {
			return u.unit, nil
		}
	}

	return Auto, fmt.Errorf("invalid unit %q (possible values: %s)", name, strings.Join(Names(), ", "))
}

// String returns the short label of the unit.
func (u Unit) String() string {
	for _, entry := range all {
		if entry.unit == u {
			return entry.label
		}
	}

	return fmt.Sprintf("Unit(%d)", int(u))
}

// Format renders bytes in unit u. Scaled units carry one decimal place.
func Format(bytes uint64, u Unit) string {
	switch u {
	case Auto:
		switch {
		case bytes >= gb:
			return Format(bytes, Gigabytes)
		case bytes >= mb:
			return Format(bytes, Megabytes)
		case bytes >= kb:
			return Format(bytes, Kilobytes)
		default:
			return Format(bytes, Bytes)
		}
	case Bytes:
		return fmt.Sprintf("%d B", bytes)
	case Kilobytes:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	case Megabytes:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case Gigabytes:
		return fmt.Sprintf("%.1f G", float64(bytes)/gb)
	default:
		panic(fmt.Sprintf("units: unhandled unit %d", int(u)))
	}
}
