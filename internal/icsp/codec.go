package icsp

import "github.com/tmcnally/icsp-bridge/internal/signal"

// Bit and word framing on the clock/data pair. Bits travel LSB first; a
// memory word is one 16-bit frame: a 0 start bit, 14 data bits, a 0 stop
// bit. The target clocks data on the falling edge of clock during sends and
// presents data while clock is high during reads.

// PulseClock strobes the clock line once: high, hold, low.
func (e *Engine) PulseClock() {
	e.bus.SetLevel(signal.Clock, signal.High)
	e.sleep(clockHold)
	e.bus.SetLevel(signal.Clock, signal.Low)
}

// SendByte shifts the low `bits` bits of v onto the data line, LSB first,
// one clock pulse per bit. Commands use 6 bits, frame halves 8. The data
// line is driven low afterwards, which doubles as the frame's trailing
// idle level.
func (e *Engine) SendByte(v byte, bits int) {
	e.bus.SetDirection(signal.Data, signal.Output)
	for i := 0; i < bits; i++ {
		e.bus.SetLevel(signal.Data, signal.Level(v&1 == 1))
		e.PulseClock()
		v >>= 1
	}
	e.bus.SetLevel(signal.Data, signal.Low)
}

// SendWord transmits one 14-bit memory word as a full 16-bit frame.
// Shifting the masked value left one place puts a 0 start bit in front of
// the LSB-first payload and leaves a 0 stop bit at the top.
func (e *Engine) SendWord(v uint16) {
	frame := (v & WordMask) << 1
	e.SendByte(byte(frame), 8)
	e.SendByte(byte(frame>>8), 8)
}

// ReadByte samples 8 bits from the data line, LSB first. The accumulator
// shifts right each bit so the first bit sampled lands in bit 0.
func (e *Engine) ReadByte() byte {
	e.bus.SetDirection(signal.Data, signal.Input)
	var v byte
	for i := 0; i < 8; i++ {
		v >>= 1
		e.bus.SetLevel(signal.Clock, signal.High)
		e.sleep(clockHold)
		if e.bus.ReadLevel(signal.Data) == signal.High {
			v |= 0x80
		}
		e.bus.SetLevel(signal.Clock, signal.Low)
	}
	return v
}

// ReadWord receives one 16-bit frame and unpacks the 14-bit word: shift
// right once to drop the start bit, mask off the stop bit and the unused
// top bits.
func (e *Engine) ReadWord() uint16 {
	lo := e.ReadByte()
	hi := e.ReadByte()
	frame := uint16(hi)<<8 | uint16(lo)
	return (frame >> 1) & WordMask
}
