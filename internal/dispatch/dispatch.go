// Package dispatch maps the host's single-byte serial command protocol onto
// the programming engine. One goroutine owns the link and the engine: a
// command byte is read, its fixed-size arguments are read, the operation
// runs to completion, any result bytes are written back, and a ready prompt
// tells the host to send the next command.
package dispatch

import (
	"bufio"
	"errors"
	"io"

	"github.com/tmcnally/icsp-bridge/internal/icsp"
	"github.com/tmcnally/icsp-bridge/internal/signal"
)

// Version is the identification string sent for the V command,
// zero-terminated on the wire.
const Version = "ICSP-BRIDGE V1.8"

// Prompt is written after every command, successful or not, to signal the
// host may send the next one.
const Prompt = 'K'

// Unrecognized command bytes are answered with this marker, then the prompt.
var errMarker = []byte{'[', ']'}

// Engine is the programming engine surface the dispatcher drives.
// *icsp.Engine implements it.
type Engine interface {
	Bus() signal.Bus
	PulseClock()
	SendCommand(op byte)
	SendWord(v uint16)
	LoadConfig(w uint16)
	LoadProgram(w uint16)
	LoadData(w uint16)
	ReadProgram() uint16
	ReadData() uint16
	ResetAddress()
	IncrementAddress(count int)
	Program(mode icsp.Mode)
	BulkEraseProgram(mode icsp.Mode)
	BulkEraseData(mode icsp.Mode)
	EnterSession()
	ExitSession()
	HardwareReset()
}

// Dispatcher runs the serial command loop.
type Dispatcher struct {
	r   *bufio.Reader
	w   io.Writer
	eng Engine
}

// New returns a Dispatcher reading commands from r and writing results to w.
func New(r io.Reader, w io.Writer, eng Engine) *Dispatcher {
	return &Dispatcher{
		r:   bufio.NewReader(r),
		w:   w,
		eng: eng,
	}
}

// command is one row of the dispatch table: how many argument bytes to
// read after the command byte, and what to do with them.
type command struct {
	argLen int
	run    func(d *Dispatcher, args []byte) error
}

var commands = map[byte]command{
	'S': {1, func(d *Dispatcher, args []byte) error {
		// The mode byte is read for framing but session entry timing
		// does not depend on it.
		d.eng.EnterSession()
		return nil
	}},
	'E': {1, func(d *Dispatcher, args []byte) error {
		d.eng.ExitSession()
		return nil
	}},
	'C': {2, func(d *Dispatcher, args []byte) error {
		d.eng.LoadConfig(word(args))
		return nil
	}},
	'D': {2, func(d *Dispatcher, args []byte) error {
		d.eng.LoadData(word(args))
		return nil
	}},
	'L': {2, func(d *Dispatcher, args []byte) error {
		d.eng.LoadProgram(word(args))
		return nil
	}},
	'M': {2, func(d *Dispatcher, args []byte) error {
		d.eng.LoadProgram(word(args))
		d.eng.IncrementAddress(1)
		return nil
	}},
	'I': {0, func(d *Dispatcher, args []byte) error {
		d.eng.IncrementAddress(1)
		return nil
	}},
	'J': {2, func(d *Dispatcher, args []byte) error {
		d.eng.IncrementAddress(int(args[0]))
		return nil
	}},
	'B': {1, func(d *Dispatcher, args []byte) error {
		d.eng.BulkEraseProgram(icsp.ModeFromByte(args[0]))
		return nil
	}},
	'A': {1, func(d *Dispatcher, args []byte) error {
		d.eng.BulkEraseData(icsp.ModeFromByte(args[0]))
		return nil
	}},
	'P': {1, func(d *Dispatcher, args []byte) error {
		d.eng.Program(icsp.ModeFromByte(args[0]))
		return nil
	}},
	'R': {0, func(d *Dispatcher, args []byte) error {
		return d.writeWord(d.eng.ReadProgram())
	}},
	'F': {2, func(d *Dispatcher, args []byte) error {
		// Count is carried as a 16-bit word but only the low byte is
		// honored.
		for i := 0; i < int(args[0]); i++ {
			if err := d.writeWord(d.eng.ReadProgram()); err != nil {
				return err
			}
			d.eng.IncrementAddress(1)
		}
		return nil
	}},
	'G': {2, func(d *Dispatcher, args []byte) error {
		for i := 0; i < int(args[0]); i++ {
			if err := d.writeByte(byte(d.eng.ReadData())); err != nil {
				return err
			}
			d.eng.IncrementAddress(1)
		}
		return nil
	}},
	'X': {0, func(d *Dispatcher, args []byte) error {
		d.eng.ResetAddress()
		return nil
	}},
	'Z': {0, func(d *Dispatcher, args []byte) error {
		d.eng.HardwareReset()
		return nil
	}},
	'T': {1, func(d *Dispatcher, args []byte) error {
		d.primitive(args[0])
		return nil
	}},
	'V': {0, func(d *Dispatcher, args []byte) error {
		if _, err := d.w.Write([]byte(Version)); err != nil {
			return err
		}
		return d.writeByte(0)
	}},
	'Q': {0, func(d *Dispatcher, args []byte) error {
		return d.writeStatus()
	}},
	'K': {0, func(d *Dispatcher, args []byte) error {
		// Sync no-op; the prompt alone is the response.
		return nil
	}},
	'1': {1, func(d *Dispatcher, args []byte) error {
		d.eng.SendCommand(args[0])
		return nil
	}},
	'2': {2, func(d *Dispatcher, args []byte) error {
		d.eng.SendWord(word(args))
		return nil
	}},
	'3': {1, func(d *Dispatcher, args []byte) error {
		d.eng.SendWord(uint16(args[0]))
		return nil
	}},
}

// Run executes the command loop until the link closes or fails. One prompt
// is emitted before the first command is read. Reads block without timeout:
// a host that stops sending mid-command stalls the loop for good.
func (d *Dispatcher) Run() error {
	if err := d.writeByte(Prompt); err != nil {
		return err
	}

	for {
		op, err := d.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := d.execute(op); err != nil {
			return err
		}
		if err := d.writeByte(Prompt); err != nil {
			return err
		}
	}
}

// execute runs a single command. Unknown command bytes get the error marker
// and touch no signals; the returned error is reserved for link failures.
func (d *Dispatcher) execute(op byte) error {
	cmd, ok := commands[op]
	if !ok {
		_, err := d.w.Write(errMarker)
		return err
	}

	var args []byte
	if cmd.argLen > 0 {
		args = make([]byte, cmd.argLen)
		if _, err := io.ReadFull(d.r, args); err != nil {
			return err
		}
	}

	return cmd.run(d, args)
}

// primitive runs one named low-level line operation for the T diagnostic
// command. Unknown selectors are ignored.
func (d *Dispatcher) primitive(sel byte) {
	bus := d.eng.Bus()
	switch sel {
	case 'E':
		bus.SetDirection(signal.Reset, signal.Output)
	case 'F':
		bus.SetLevel(signal.Reset, signal.Low)
	case 'G':
		bus.SetLevel(signal.Reset, signal.High)
	case 'L':
		bus.SetDirection(signal.Clock, signal.Output)
	case 'M':
		bus.SetLevel(signal.Clock, signal.Low)
	case 'N':
		bus.SetLevel(signal.Clock, signal.High)
	case 'O':
		d.eng.PulseClock()
	case 'P':
		bus.SetDirection(signal.Data, signal.Input)
	case 'Q':
		bus.SetDirection(signal.Data, signal.Output)
	case 'R':
		bus.SetLevel(signal.Data, signal.Low)
	case 'S':
		bus.SetLevel(signal.Data, signal.High)
	case 'T':
		bus.SetLevel(signal.Prog, signal.Low)
	case 'U':
		bus.SetLevel(signal.Prog, signal.High)
	}
}

// writeStatus emits one direction/level ASCII pair per line, in the fixed
// CLK, DAT, VPP, MCLR order: 8 bytes total.
func (d *Dispatcher) writeStatus() error {
	bus := d.eng.Bus()
	status := make([]byte, 0, 2*len(signal.Signals))
	for _, s := range signal.Signals {
		dir, lvl := bus.State(s)
		dirByte := byte('I')
		if dir == signal.Output {
			dirByte = 'O'
		}
		lvlByte := byte('0')
		if lvl == signal.High {
			lvlByte = '1'
		}
		status = append(status, dirByte, lvlByte)
	}
	_, err := d.w.Write(status)
	return err
}

func (d *Dispatcher) writeByte(b byte) error {
	_, err := d.w.Write([]byte{b})
	return err
}

func (d *Dispatcher) writeWord(w uint16) error {
	_, err := d.w.Write([]byte{byte(w), byte(w >> 8)})
	return err
}

// word decodes a little-endian 16-bit argument.
func word(args []byte) uint16 {
	return uint16(args[0]) | uint16(args[1])<<8
}
