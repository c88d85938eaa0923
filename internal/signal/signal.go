// Package signal models the four logical control lines between the adapter
// and the target's in-circuit programming header. It knows nothing about the
// programming protocol; it only switches lines between tri-stated input and
// driven output and sets or samples their levels.
package signal

// Signal identifies one of the four programming lines.
type Signal int

const (
	// Clock strobes bits on the Data line.
	Clock Signal = iota
	// Data carries command and memory bits, LSB first.
	Data
	// Prog enables the target's programming voltage.
	Prog
	// Reset is the target's MCLR line, active low.
	Reset

	numSignals = 4
)

// String returns the schematic name of the signal.
func (s Signal) String() string {
	switch s {
	case Clock:
		return "CLK"
	case Data:
		return "DAT"
	case Prog:
		return "VPP"
	case Reset:
		return "MCLR"
	}
	return "?"
}

// Signals lists all four lines in a fixed order, for code that walks them.
var Signals = [numSignals]Signal{Clock, Data, Prog, Reset}

// Direction is a line's drive mode.
type Direction int

const (
	// Input tri-states the line; a pull resistor holds its idle level.
	Input Direction = iota
	// Output drives the line.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Level is a line's logic level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Bus gives access to the four lines. Implementations perform no validation:
// reading a line configured as output, or driving one configured as input,
// is undefined at the hardware level and the caller's responsibility to
// avoid. The wire protocol has no acknowledgment, so none of the methods
// can fail in a reportable way.
type Bus interface {
	SetDirection(s Signal, d Direction)
	SetLevel(s Signal, l Level)
	ReadLevel(s Signal) Level

	// State reports the line's configured direction and last driven level.
	// Diagnostic use only; it does not touch the hardware.
	State(s Signal) (Direction, Level)
}

// ReleaseAll tri-states all four lines. This is the safe idle configuration
// and must be reachable from any other state.
func ReleaseAll(b Bus) {
	for _, s := range Signals {
		b.SetDirection(s, Input)
	}
}
