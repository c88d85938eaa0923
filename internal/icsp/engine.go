package icsp

import "github.com/tmcnally/icsp-bridge/internal/signal"

// SendCommand transmits a 6-bit programming command opcode.
func (e *Engine) SendCommand(op byte) {
	e.bus.SetDirection(signal.Data, signal.Output)
	e.SendByte(op, CommandBits)
}

// LoadConfig switches the target to the configuration segment and loads a
// word into it.
func (e *Engine) LoadConfig(w uint16) {
	e.SendCommand(opLoadConfig)
	e.SendWord(w)
}

// LoadProgram loads a word into the program memory latch at the current
// address.
func (e *Engine) LoadProgram(w uint16) {
	e.SendCommand(opLoadProgram)
	e.SendWord(w)
}

// LoadData loads a word into the data memory latch at the current address.
func (e *Engine) LoadData(w uint16) {
	e.SendCommand(opLoadData)
	e.SendWord(w)
}

// ReadProgram reads the program memory word at the current address.
func (e *Engine) ReadProgram() uint16 {
	e.SendCommand(opReadProgram)
	return e.ReadWord()
}

// ReadData reads the data memory word at the current address.
func (e *Engine) ReadData() uint16 {
	e.SendCommand(opReadData)
	return e.ReadWord()
}

// ResetAddress returns the target's address counter to zero.
func (e *Engine) ResetAddress() {
	e.SendCommand(opResetAddress)
}

// IncrementAddress advances the target's address counter count times.
// A count of zero transmits nothing.
func (e *Engine) IncrementAddress(count int) {
	for i := 0; i < count; i++ {
		e.SendCommand(opIncrementAddress)
	}
}

// Program commits the loaded latches to memory. Mid-range targets need an
// externally timed pulse bracketed by begin/end commands; enhanced targets
// time the pulse internally.
func (e *Engine) Program(mode Mode) {
	if mode == ModeMid {
		e.SendCommand(opBeginProgram)
		e.sleep(midProgramPulse)
		e.SendCommand(opEndProgram)
		return
	}
	e.SendCommand(opProgramInternal)
	e.sleep(enhancedProgramPulse)
}

// BulkEraseProgram erases all of program memory.
func (e *Engine) BulkEraseProgram(mode Mode) {
	e.bulkErase(opEraseProgram, mode)
}

// BulkEraseData erases all of data memory.
func (e *Engine) BulkEraseData(mode Mode) {
	e.bulkErase(opEraseData, mode)
}

// bulkErase issues an erase opcode. Mid-range targets additionally need an
// externally timed programming pulse to execute the erase. Both families
// get a settle delay before the next command.
func (e *Engine) bulkErase(op byte, mode Mode) {
	e.SendCommand(op)
	if mode == ModeMid {
		e.sleep(eraseSettle)
		e.SendCommand(opBeginProgram)
		e.sleep(eraseSettle)
		e.SendCommand(opEndProgram)
	}
	e.sleep(eraseSettle)
}
