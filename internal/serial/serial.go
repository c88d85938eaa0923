// Package serial wraps the serial link between host and adapter.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the adapter's fixed link speed.
const DefaultBaudRate = 38400

// Port wraps a serial port with adapter-specific functionality.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
}

// Open opens a serial port with the specified baud rate. Reads time out
// after 100ms by default; see SetBlocking for the adapter-side behavior.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Write writes data to the serial port.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// Read reads data from the serial port.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// SetBlocking removes the read timeout. The command dispatcher requires
// blocking reads: it waits indefinitely for the host's next byte.
func (p *Port) SetBlocking() error {
	return p.port.SetReadTimeout(serial.NoTimeout)
}

// ReadWithTimeout reads data with a specific timeout.
func (p *Port) ReadWithTimeout(buf []byte, timeout time.Duration) (int, error) {
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	defer p.port.SetReadTimeout(100 * time.Millisecond)

	return p.port.Read(buf)
}

// ReadAll reads all available data until the timeout elapses or the read
// comes back empty.
func (p *Port) ReadAll(timeout time.Duration) ([]byte, error) {
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return nil, err
	}
	defer p.port.SetReadTimeout(100 * time.Millisecond)

	var result []byte
	buf := make([]byte, 1024)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		n, err := p.port.Read(buf)
		if n > 0 {
			result = append(result, buf[:n]...)
		}
		if err != nil || n == 0 {
			break
		}
	}

	return result, nil
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// PulseDTR pulses the DTR line for the given duration. Adapter boards wire
// DTR to the controller's reset circuit, so this restarts the adapter
// itself, not the target.
func (p *Port) PulseDTR(duration time.Duration) error {
	if err := p.port.SetDTR(true); err != nil {
		return err
	}
	time.Sleep(duration)
	return p.port.SetDTR(false)
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
