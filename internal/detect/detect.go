// Package detect scans serial ports for an attached programming adapter.
package detect

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/tmcnally/icsp-bridge/internal/serial"
)

// Result describes a detected adapter.
type Result struct {
	Port    string
	Version string
}

// DetectAdapter tries every serial port and returns the first adapter
// found.
func DetectAdapter(baudRate int) (*Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, portName := range ports {
		result, err := tryPort(portName, baudRate)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no adapter found (last error: %w)", lastErr)
	}
	return nil, fmt.Errorf("no adapter found")
}

// DetectOnPort probes a specific port.
func DetectOnPort(portName string, baudRate int) (*Result, error) {
	return tryPort(portName, baudRate)
}

// ListAdapters scans all ports and returns every adapter that answers.
func ListAdapters(baudRate int) ([]Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	var results []Result
	for _, portName := range ports {
		result, err := tryPort(portName, baudRate)
		if err == nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

func tryPort(portName string, baudRate int) (*Result, error) {
	port, err := serial.Open(portName, baudRate)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	port.Flush()

	// A sync no-op answers with the ready prompt.
	if _, err := port.Write([]byte{'K'}); err != nil {
		return nil, fmt.Errorf("probe write failed: %w", err)
	}
	response, err := port.ReadAll(500 * time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("probe read failed: %w", err)
	}
	if !bytes.Contains(response, []byte{'K'}) {
		return nil, fmt.Errorf("no prompt from %s", portName)
	}

	version, err := readVersion(port)
	if err != nil {
		return nil, err
	}

	return &Result{Port: portName, Version: version}, nil
}

func readVersion(port *serial.Port) (string, error) {
	if _, err := port.Write([]byte{'V'}); err != nil {
		return "", err
	}

	response, err := port.ReadAll(500 * time.Millisecond)
	if err != nil {
		return "", err
	}

	// Version string, zero terminator, ready prompt.
	end := bytes.IndexByte(response, 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated version response")
	}

	version := string(response[:end])
	if !strings.Contains(version, "ICSP") {
		return "", fmt.Errorf("unexpected identification %q", version)
	}
	return version, nil
}
