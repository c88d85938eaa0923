// Package icsp implements the synchronous bit-banged in-circuit programming
// protocol: bit and word framing on the clock/data pair, the 6-bit command
// set, the mode-dependent program and erase timing sequences, and the
// session entry/exit signal sequencing.
package icsp

import (
	"time"

	"github.com/tmcnally/icsp-bridge/internal/signal"
)

// Mode selects the target device family's programming timing.
type Mode byte

const (
	// ModeMid uses the externally timed begin/end programming pulse pair.
	ModeMid Mode = 0x00
	// ModeEnhanced uses a single internally timed programming pulse.
	ModeEnhanced Mode = 0x01
)

// ModeFromByte decodes the mode byte supplied by the host on every command
// whose timing depends on it. Zero selects mid-range, anything else enhanced.
func ModeFromByte(b byte) Mode {
	if b == 0 {
		return ModeMid
	}
	return ModeEnhanced
}

func (m Mode) String() string {
	if m == ModeMid {
		return "mid"
	}
	return "enhanced"
}

// The 6-bit programming command set.
const (
	opLoadConfig       = 0x00
	opLoadProgram      = 0x02
	opLoadData         = 0x03
	opReadProgram      = 0x04
	opReadData         = 0x05
	opIncrementAddress = 0x06
	opProgramInternal  = 0x08
	opEraseProgram     = 0x09
	opEraseData        = 0x0B
	opResetAddress     = 0x16
	opEndProgram       = 0x17
	opBeginProgram     = 0x18
)

// CommandBits is the width of a programming command opcode.
const CommandBits = 6

// WordMask keeps the 14 payload bits of a memory word.
const WordMask = 0x3FFF

// Protocol timing. These are fixed by the target families, not configurable.
const (
	// settleDelay separates the steps of the session entry/exit sequence.
	settleDelay = 1 * time.Millisecond
	// midProgramPulse is the externally timed programming pulse width.
	midProgramPulse = 2 * time.Millisecond
	// eraseSettle covers bulk erase completion and the mid-range erase
	// programming pulse.
	eraseSettle = 5 * time.Millisecond
	// enhancedProgramPulse is the internally timed pulse completion wait.
	enhancedProgramPulse = 5 * time.Millisecond
	// clockHold keeps clock high long enough for the target to sample;
	// the target needs at least 100ns.
	clockHold = time.Microsecond
)

// Engine drives the programming protocol over a signal bus. It is
// open-loop: the wire protocol has no acknowledgment, so no operation can
// detect a non-responsive target.
type Engine struct {
	bus   signal.Bus
	sleep func(time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the delay function, letting tests record the protocol's
// timing sequences instead of waiting them out.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// New returns an Engine driving the given bus.
func New(bus signal.Bus, opts ...Option) *Engine {
	e := &Engine{
		bus:   bus,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bus exposes the underlying signal bus for diagnostic commands.
func (e *Engine) Bus() signal.Bus {
	return e.bus
}
