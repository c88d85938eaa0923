// Package host speaks the adapter's serial command protocol from the PC
// side: session control, bulk erase, latch-buffered program writes, and
// batched memory reads.
package host

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tmcnally/icsp-bridge/internal/icsp"
)

// ProgressCallback is called to report per-word programming progress.
type ProgressCallback func(current, total int)

// Client drives an adapter over a byte link.
type Client struct {
	r        *bufio.Reader
	w        io.Writer
	mode     icsp.Mode
	latches  int
	progress ProgressCallback
}

// Option configures a Client.
type Option func(*Client)

// WithMode selects the target family's programming mode. Default is mid.
func WithMode(mode icsp.Mode) Option {
	return func(c *Client) {
		c.mode = mode
	}
}

// WithLatches sets the number of program data latches per commit.
// Default is 1: one program pulse per word.
func WithLatches(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.latches = n
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(c *Client) {
		c.progress = cb
	}
}

// New returns a Client over the given link.
func New(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		r:       bufio.NewReader(rw),
		w:       rw,
		mode:    icsp.ModeMid,
		latches: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) reportProgress(current, total int) {
	if c.progress != nil {
		c.progress(current, total)
	}
}

// send writes a command byte and its argument bytes.
func (c *Client) send(cmd byte, args ...byte) error {
	if _, err := c.w.Write(append([]byte{cmd}, args...)); err != nil {
		return fmt.Errorf("command %c: %w", cmd, err)
	}
	return nil
}

// prompt consumes the adapter's ready prompt. Anything else means the
// command stream is out of step.
func (c *Client) prompt() error {
	b, err := c.r.ReadByte()
	if err != nil {
		return fmt.Errorf("waiting for prompt: %w", err)
	}
	if b != 'K' {
		return fmt.Errorf("expected prompt, got 0x%02X", b)
	}
	return nil
}

// roundTrip sends a command with no result bytes and waits for the prompt.
func (c *Client) roundTrip(cmd byte, args ...byte) error {
	if err := c.send(cmd, args...); err != nil {
		return err
	}
	return c.prompt()
}

// WaitReady consumes one ready prompt. Use it right after opening the link
// to eat the adapter's boot prompt.
func (c *Client) WaitReady() error {
	return c.prompt()
}

// Sync consumes any stale bytes in flight, including the adapter's boot
// prompt, by issuing a no-op and reading until its prompt arrives.
func (c *Client) Sync() error {
	if err := c.send('K'); err != nil {
		return err
	}
	// Discard strays; the prompt for the no-op is the last byte pending.
	for i := 0; i < 64; i++ {
		b, err := c.r.ReadByte()
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if b == 'K' && c.r.Buffered() == 0 {
			return nil
		}
	}
	return fmt.Errorf("sync: no prompt in stream")
}

// Version reads the adapter's identification string.
func (c *Client) Version() (string, error) {
	if err := c.send('V'); err != nil {
		return "", err
	}
	ver, err := c.r.ReadString(0)
	if err != nil {
		return "", fmt.Errorf("reading version: %w", err)
	}
	ver = ver[:len(ver)-1]
	return ver, c.prompt()
}

// EnterSession puts the target into programming mode.
func (c *Client) EnterSession() error {
	return c.roundTrip('S', byte(c.mode))
}

// ExitSession takes the target out of programming mode.
func (c *Client) ExitSession() error {
	return c.roundTrip('E', byte(c.mode))
}

// EraseProgram bulk erases program memory.
func (c *Client) EraseProgram() error {
	return c.roundTrip('B', byte(c.mode))
}

// EraseData bulk erases data memory.
func (c *Client) EraseData() error {
	return c.roundTrip('A', byte(c.mode))
}

// LoadConfig switches the target to its configuration segment.
func (c *Client) LoadConfig(w uint16) error {
	return c.roundTrip('C', byte(w), byte(w>>8))
}

// ResetAddress returns the target's address counter to zero.
func (c *Client) ResetAddress() error {
	return c.roundTrip('X')
}

// JumpAddress advances the target's address counter by count locations.
func (c *Client) JumpAddress(count int) error {
	return c.roundTrip('J', byte(count), byte(count>>8))
}

// WriteProgram programs words starting at the current address. Words are
// loaded into the target's data latches and committed with one program
// pulse per full latch set, or at the final word.
func (c *Client) WriteProgram(words []uint16) error {
	for i, w := range words {
		last := i == len(words)-1
		commit := (i+1)%c.latches == 0 || last

		if commit {
			if err := c.roundTrip('L', byte(w), byte(w>>8)); err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			if err := c.roundTrip('P', byte(c.mode)); err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			if err := c.roundTrip('I'); err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
		} else {
			// Load and advance without committing; the latch set is
			// flushed by a later commit.
			if err := c.roundTrip('M', byte(w), byte(w>>8)); err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
		}

		c.reportProgress(i+1, len(words))
	}
	return nil
}

// WriteData programs data memory words starting at the current address.
// Data memory has no latch buffering: every word gets its own pulse.
func (c *Client) WriteData(words []uint16) error {
	for i, w := range words {
		if err := c.roundTrip('D', byte(w), byte(w>>8)); err != nil {
			return fmt.Errorf("data word %d: %w", i, err)
		}
		if err := c.roundTrip('P', byte(c.mode)); err != nil {
			return fmt.Errorf("data word %d: %w", i, err)
		}
		if err := c.roundTrip('I'); err != nil {
			return fmt.Errorf("data word %d: %w", i, err)
		}

		c.reportProgress(i+1, len(words))
	}
	return nil
}

// ReadProgram fetches count program words from the current address,
// advancing after each.
func (c *Client) ReadProgram(count int) ([]uint16, error) {
	if err := c.send('F', byte(count), byte(count>>8)); err != nil {
		return nil, err
	}

	buf := make([]byte, 2*count)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("reading %d program words: %w", count, err)
	}
	if err := c.prompt(); err != nil {
		return nil, err
	}

	words := make([]uint16, count)
	for i := range words {
		words[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
	}
	return words, nil
}

// ReadData fetches count data memory bytes from the current address,
// advancing after each.
func (c *Client) ReadData(count int) ([]byte, error) {
	if err := c.send('G', byte(count), byte(count>>8)); err != nil {
		return nil, err
	}

	buf := make([]byte, count)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("reading %d data bytes: %w", count, err)
	}
	return buf, c.prompt()
}

// Status reads the adapter's line-status report: a direction and level
// pair for each of the four programming lines.
func (c *Client) Status() ([]byte, error) {
	if err := c.send('Q'); err != nil {
		return nil, err
	}

	buf := make([]byte, 8)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	return buf, c.prompt()
}
