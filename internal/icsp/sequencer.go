package icsp

import "github.com/tmcnally/icsp-bridge/internal/signal"

// Session entry and exit sequencing. The ordering is mandatory: MCLR must
// go low before the programming voltage is enabled, and the exit sequence
// is the exact reverse. Each step settles before the next.

// EnterSession puts the target into programming mode.
func (e *Engine) EnterSession() {
	signal.ReleaseAll(e.bus)

	e.bus.SetDirection(signal.Clock, signal.Output)
	e.bus.SetLevel(signal.Clock, signal.Low)
	e.bus.SetDirection(signal.Data, signal.Output)
	e.bus.SetLevel(signal.Data, signal.Low)
	e.sleep(settleDelay)

	e.bus.SetDirection(signal.Reset, signal.Output)
	e.bus.SetLevel(signal.Reset, signal.Low)
	e.sleep(settleDelay)

	e.bus.SetDirection(signal.Prog, signal.Output)
	e.bus.SetLevel(signal.Prog, signal.High)
	e.sleep(settleDelay)
}

// ExitSession takes the target out of programming mode and releases all
// lines to their pulled idle state.
func (e *Engine) ExitSession() {
	e.bus.SetLevel(signal.Prog, signal.Low)
	e.sleep(settleDelay)

	e.bus.SetLevel(signal.Reset, signal.High)
	e.sleep(settleDelay)

	signal.ReleaseAll(e.bus)
}

// HardwareReset is a declared no-op. The adapter's own reset line is not
// wired up; callers must treat this as doing nothing rather than as an
// error.
func (e *Engine) HardwareReset() {
}
