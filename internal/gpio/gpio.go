// Package gpio implements the signal bus on real GPIO lines via periph.io.
// It is the hardware half of the adapter: the dispatcher and engine only
// ever see the signal.Bus interface.
package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/tmcnally/icsp-bridge/internal/signal"
)

// Bus drives the four programming lines through GPIO pins. Pin driver
// errors have nowhere to report to: the wire protocol has no failure path,
// so a failed pin access is indistinguishable from an unwired target.
type Bus struct {
	pins   [4]pgpio.PinIO
	dirs   [4]signal.Direction
	levels [4]signal.Level
}

// Open initializes the host's GPIO drivers and resolves the four pins by
// name (for example "GPIO4"). All lines start tri-stated.
func Open(clock, data, prog, reset string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize gpio host: %w", err)
	}

	b := &Bus{}
	for i, name := range []string{clock, data, prog, reset} {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no such pin %q for %s", name, signal.Signal(i))
		}
		b.pins[i] = p
	}

	signal.ReleaseAll(b)
	return b, nil
}

func (b *Bus) SetDirection(s signal.Signal, d signal.Direction) {
	b.dirs[s] = d
	if d == signal.Output {
		// Drive the last set level; external pull resistors define the
		// idle state while tri-stated.
		b.pins[s].Out(pgpio.Level(b.levels[s]))
		return
	}
	b.pins[s].In(pgpio.Float, pgpio.NoEdge)
}

func (b *Bus) SetLevel(s signal.Signal, l signal.Level) {
	b.levels[s] = l
	b.pins[s].Out(pgpio.Level(l))
}

func (b *Bus) ReadLevel(s signal.Signal) signal.Level {
	return signal.Level(b.pins[s].Read())
}

func (b *Bus) State(s signal.Signal) (signal.Direction, signal.Level) {
	return b.dirs[s], b.levels[s]
}
